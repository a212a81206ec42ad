package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags
var Version = "dev"

const (
	appName   = "screend"
	envPrefix = "SCREEND"
)

// Configuration keys
const (
	KeyAPIURL              = "api.url"
	KeyAPIKey              = "api.key"
	KeyStateDir            = "state.dir"
	KeyCacheDir            = "cache.dir"
	KeyBundleMaxAge        = "cache.bundle_max_age"
	KeyPrefetchConcurrency = "cache.prefetch_concurrency"
	KeySyncInterval        = "sync.interval"
	KeyHeartbeatInterval   = "heartbeat.interval"
	KeyCommandInterval     = "commands.interval"
	KeyRebootDelay         = "commands.reboot_delay"
	KeyWatchdogInterval    = "watchdog.interval"
	KeyStallThreshold      = "watchdog.stall_threshold"
	KeyInactivityThreshold = "watchdog.inactivity_threshold"
	KeyRetryBase           = "retry.base"
	KeyRetryMaxDelay       = "retry.max_delay"
	KeyRetryMaxAttempts    = "retry.max_attempts"
	KeyDefaultDuration     = "playback.default_duration"
	KeyKioskReassertDelay  = "kiosk.reassert_delay"
	KeyKioskExitKey        = "kiosk.exit_key"
	KeyControlAddr         = "control.addr"
	KeyMPVBinary           = "renderer.mpv"
	KeyBrowserBinary       = "renderer.browser"
	KeySplashURL           = "display.splash_url"
	KeyLogLevel            = "log.level"
)

// EnvKeyReplacer maps configuration keys to environment variable names
var EnvKeyReplacer = strings.NewReplacer(".", "_")

func defaults() map[string]any {
	return map[string]any{
		KeyAPIURL:              "",
		KeyAPIKey:              "",
		KeyStateDir:            defaultDir(os.UserConfigDir),
		KeyCacheDir:            defaultDir(os.UserCacheDir),
		KeyBundleMaxAge:        30 * 24 * time.Hour,
		KeyPrefetchConcurrency: 4,
		KeySyncInterval:        30 * time.Second,
		KeyHeartbeatInterval:   30 * time.Second,
		KeyCommandInterval:     10 * time.Second,
		KeyRebootDelay:         2 * time.Second,
		KeyWatchdogInterval:    10 * time.Second,
		KeyStallThreshold:      30 * time.Second,
		KeyInactivityThreshold: 5 * time.Minute,
		KeyRetryBase:           2 * time.Second,
		KeyRetryMaxDelay:       60 * time.Second,
		KeyRetryMaxAttempts:    5,
		KeyDefaultDuration:     10 * time.Second,
		KeyKioskReassertDelay:  2 * time.Second,
		KeyKioskExitKey:        "Ctrl+Shift+q",
		KeyControlAddr:         "127.0.0.1:7361",
		KeyMPVBinary:           "mpv",
		KeyBrowserBinary:       "",
		KeySplashURL:           "",
		KeyLogLevel:            "info",
	}
}

func defaultDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(dir, appName)
}

// NewViper builds the viper instance: registered defaults, SCREEND_* environment
// overrides and an optional screend.toml in the state directory.
func NewViper(fs afero.Fs) (*viper.Viper, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigName(appName)
	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	v.SetTypeByDefaultValue(true)
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.AddConfigPath(v.GetString(KeyStateDir))
	if custom, ok := os.LookupEnv(envPrefix + "_CONFIG_PATH"); ok {
		v.AddConfigPath(custom)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

// NewFs returns the filesystem backing state and cache
func NewFs() afero.Fs {
	return afero.NewOsFs()
}

// AppConfig holds application configuration
type AppConfig struct {
	logger *zap.Logger
	v      *viper.Viper
}

// NewAppConfig creates a new application configuration instance
func NewAppConfig(logger *zap.Logger, v *viper.Viper) *AppConfig {
	c := &AppConfig{logger: logger, v: v}

	logger.Info("Configuration loaded",
		zap.String("apiURL", c.APIURL()),
		zap.String("stateDir", c.StateDir()),
		zap.String("cacheDir", c.CacheDir()),
		zap.String("version", Version))

	return c
}

// Viper exposes the underlying viper instance for flag binding
func (c *AppConfig) Viper() *viper.Viper { return c.v }

func (c *AppConfig) APIURL() string { return strings.TrimRight(c.v.GetString(KeyAPIURL), "/") }
func (c *AppConfig) APIKey() string { return c.v.GetString(KeyAPIKey) }

// StateDir is where the key-value store lives
func (c *AppConfig) StateDir() string { return expandHome(c.v.GetString(KeyStateDir)) }

// CacheDir is the root of the offline cache
func (c *AppConfig) CacheDir() string { return expandHome(c.v.GetString(KeyCacheDir)) }

func (c *AppConfig) BundleMaxAge() time.Duration { return c.v.GetDuration(KeyBundleMaxAge) }
func (c *AppConfig) PrefetchConcurrency() int {
	if n := c.v.GetInt(KeyPrefetchConcurrency); n > 0 {
		return n
	}
	return 1
}

func (c *AppConfig) SyncInterval() time.Duration        { return c.v.GetDuration(KeySyncInterval) }
func (c *AppConfig) HeartbeatInterval() time.Duration   { return c.v.GetDuration(KeyHeartbeatInterval) }
func (c *AppConfig) CommandInterval() time.Duration     { return c.v.GetDuration(KeyCommandInterval) }
func (c *AppConfig) RebootDelay() time.Duration         { return c.v.GetDuration(KeyRebootDelay) }
func (c *AppConfig) WatchdogInterval() time.Duration    { return c.v.GetDuration(KeyWatchdogInterval) }
func (c *AppConfig) StallThreshold() time.Duration      { return c.v.GetDuration(KeyStallThreshold) }
func (c *AppConfig) InactivityThreshold() time.Duration { return c.v.GetDuration(KeyInactivityThreshold) }
func (c *AppConfig) RetryBase() time.Duration           { return c.v.GetDuration(KeyRetryBase) }
func (c *AppConfig) RetryMaxDelay() time.Duration       { return c.v.GetDuration(KeyRetryMaxDelay) }
func (c *AppConfig) RetryMaxAttempts() int              { return c.v.GetInt(KeyRetryMaxAttempts) }
func (c *AppConfig) DefaultDuration() time.Duration     { return c.v.GetDuration(KeyDefaultDuration) }
func (c *AppConfig) KioskReassertDelay() time.Duration  { return c.v.GetDuration(KeyKioskReassertDelay) }
func (c *AppConfig) KioskExitKey() string               { return c.v.GetString(KeyKioskExitKey) }
func (c *AppConfig) ControlAddr() string                { return c.v.GetString(KeyControlAddr) }
func (c *AppConfig) MPVBinary() string                  { return c.v.GetString(KeyMPVBinary) }
func (c *AppConfig) BrowserBinary() string              { return c.v.GetString(KeyBrowserBinary) }
func (c *AppConfig) SplashURL() string                  { return c.v.GetString(KeySplashURL) }
func (c *AppConfig) LogLevel() string                   { return c.v.GetString(KeyLogLevel) }

// PlayerVersion is reported with every device status
func (c *AppConfig) PlayerVersion() string { return Version }

// expandHome expands environment variables and a leading ~
func expandHome(path string) string {
	path = os.ExpandEnv(path)
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}
