package main

import (
	"context"

	"github.com/genricoloni/screend/internal/analytics"
	"github.com/genricoloni/screend/internal/api"
	"github.com/genricoloni/screend/internal/cache"
	"github.com/genricoloni/screend/internal/config"
	"github.com/genricoloni/screend/internal/contentsync"
	"github.com/genricoloni/screend/internal/control"
	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/engine"
	"github.com/genricoloni/screend/internal/executor"
	"github.com/genricoloni/screend/internal/fetcher"
	"github.com/genricoloni/screend/internal/heartbeat"
	"github.com/genricoloni/screend/internal/kiosk"
	"github.com/genricoloni/screend/internal/kvstore"
	"github.com/genricoloni/screend/internal/pairing"
	"github.com/genricoloni/screend/internal/playback"
	"github.com/genricoloni/screend/internal/processor"
	"github.com/genricoloni/screend/internal/renderer"
	"github.com/genricoloni/screend/internal/retry"
	"github.com/genricoloni/screend/internal/system"
	"github.com/genricoloni/screend/internal/watchdog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const analyticsQueueSize = 256

// AppOptions is the complete dependency graph of the player
var AppOptions = fx.Options(
	fx.Provide(
		config.NewFs,
		config.NewViper,
		newLogger,
		config.NewAppConfig,

		newStore,
		newRemote,
		fetcher.NewHTTPFetcher,
		processor.NewBlurProcessor,
		newRetrier,
		newCache,
		newCacheManager,
		system.NewReloader,

		newRenderer,
		newReporter,
		newPlayback,
		newTracker,
		newSyncLoop,

		newPasswordStore,
		kiosk.NewInhibitor,
		newKiosk,
		newPairing,

		newEngine,
		newHeartbeat,
		newCommandChannel,
		newDetector,
		newControlServer,
	),
	fx.Invoke(registerHooks),
)

// newLogger builds a production logger, or a development one at debug level
func newLogger(v *viper.Viper) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(v.GetString(config.KeyLogLevel))
	if err != nil {
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

func newStore(logger *zap.Logger, fs afero.Fs, cfg *config.AppConfig) (*kvstore.FileStore, error) {
	return kvstore.New(logger, fs, cfg.StateDir())
}

func newRemote(logger *zap.Logger, cfg *config.AppConfig) domain.Remote {
	return api.NewClient(logger, cfg)
}

func newRetrier(logger *zap.Logger, cfg *config.AppConfig) *retry.Retrier {
	return retry.New(logger, retry.Policy{
		Base:        cfg.RetryBase(),
		MaxDelay:    cfg.RetryMaxDelay(),
		MaxAttempts: cfg.RetryMaxAttempts(),
	})
}

func newCache(logger *zap.Logger, fs afero.Fs, cfg *config.AppConfig, f *fetcher.HTTPFetcher, fitter *processor.BlurProcessor) (*cache.Cache, error) {
	store, err := cache.NewStore(logger, fs, cfg.CacheDir())
	if err != nil {
		return nil, err
	}
	return cache.New(logger, store, f, fitter, cfg.BundleMaxAge()), nil
}

func newCacheManager(logger *zap.Logger, c *cache.Cache, reloader *system.Reloader, cfg *config.AppConfig) *cache.Manager {
	return cache.NewManager(logger, c, reloader, cfg.PrefetchConcurrency())
}

// screen is the display the player draws on and locks in kiosk mode
type screen interface {
	service
	playback.Renderer
	kiosk.Display
}

// newRenderer wires the display, the offline cache and the browser. Without a
// browser web zones show an error instead of failing the player.
func newRenderer(logger *zap.Logger, cfg *config.AppConfig, c *cache.Cache) screen {
	launcher, err := executor.NewLauncher(logger, cfg.BrowserBinary())
	if err != nil {
		logger.Warn("Web content disabled", zap.Error(err))
		launcher = nil
	}
	return renderer.NewRenderer(logger, renderer.DetectDisplay(logger), c, renderer.NewBrowserOpener(launcher), renderer.Options{
		MPVBinary: cfg.MPVBinary(),
		ExitKey:   cfg.KioskExitKey(),
		SplashURL: cfg.SplashURL(),
	})
}

func newReporter(logger *zap.Logger, remote domain.Remote) *analytics.Reporter {
	return analytics.NewReporter(logger, remote, analyticsQueueSize)
}

func newPlayback(logger *zap.Logger, r screen, reporter *analytics.Reporter, store *kvstore.FileStore, cfg *config.AppConfig) *playback.Engine {
	return playback.NewEngine(logger, r, reporter, playback.Options{
		DefaultDuration: cfg.DefaultDuration(),
		ScreenID: func() string {
			id, _ := kvstore.Identity(store)
			return id.ScreenID
		},
	})
}

func newTracker(logger *zap.Logger, store *kvstore.FileStore) *watchdog.Tracker {
	return watchdog.NewTracker(logger, store)
}

func newSyncLoop(
	logger *zap.Logger,
	remote domain.Remote,
	store *kvstore.FileStore,
	c *cache.Cache,
	retrier *retry.Retrier,
	player *playback.Engine,
	manager *cache.Manager,
	tracker *watchdog.Tracker,
	cfg *config.AppConfig,
) *contentsync.Loop {
	return contentsync.NewLoop(logger, remote, store, c, retrier, player, manager, tracker, contentsync.Options{
		Interval: cfg.SyncInterval(),
	})
}

func newPasswordStore(logger *zap.Logger, store *kvstore.FileStore) *kiosk.PasswordStore {
	return kiosk.NewPasswordStore(logger, store)
}

func newKiosk(logger *zap.Logger, r screen, store *kvstore.FileStore, passwords *kiosk.PasswordStore, saver *kiosk.Inhibitor, cfg *config.AppConfig) *kiosk.Controller {
	return kiosk.NewController(logger, r, store, passwords, saver, cfg.KioskReassertDelay())
}

func newPairing(logger *zap.Logger, remote domain.Remote, store *kvstore.FileStore, c *cache.Cache, k *kiosk.Controller) *pairing.Manager {
	return pairing.NewManager(logger, remote, store, c, k)
}

type engineParams struct {
	fx.In

	Store     *kvstore.FileStore
	Pairing   *pairing.Manager
	Sync      *contentsync.Loop
	Player    *playback.Engine
	Kiosk     *kiosk.Controller
	Cache     *cache.Cache
	Passwords *kiosk.PasswordStore
	Tracker   *watchdog.Tracker
	Config    *config.AppConfig
}

func newEngine(logger *zap.Logger, p engineParams) *engine.Engine {
	return engine.NewEngine(logger, engine.Components{
		Store:     p.Store,
		Pairing:   p.Pairing,
		Sync:      p.Sync,
		Screen:    p.Player,
		Kiosk:     p.Kiosk,
		Cache:     p.Cache,
		Passwords: p.Passwords,
		Activity:  p.Tracker,
		Version:   p.Config.PlayerVersion(),
	})
}

func newHeartbeat(logger *zap.Logger, remote domain.Remote, store *kvstore.FileStore, tracker *watchdog.Tracker, cfg *config.AppConfig) *heartbeat.Heartbeat {
	return heartbeat.NewHeartbeat(logger, remote, store, heartbeat.NewHostStats(), tracker, cfg.HeartbeatInterval(), cfg.PlayerVersion())
}

type commandParams struct {
	fx.In

	Remote   domain.Remote
	Store    *kvstore.FileStore
	Sync     *contentsync.Loop
	Cache    *cache.Cache
	Engine   *engine.Engine
	Reloader *system.Reloader
	Tracker  *watchdog.Tracker
	Config   *config.AppConfig
}

func newCommandChannel(logger *zap.Logger, p commandParams) *heartbeat.CommandChannel {
	return heartbeat.NewCommandChannel(logger, p.Remote, p.Store, p.Sync, p.Cache, p.Engine, p.Reloader, p.Tracker, heartbeat.CommandOptions{
		Interval:    p.Config.CommandInterval(),
		RebootDelay: p.Config.RebootDelay(),
	})
}

func newDetector(logger *zap.Logger, player *playback.Engine, tracker *watchdog.Tracker, reloader *system.Reloader, cfg *config.AppConfig) *watchdog.Detector {
	return watchdog.NewDetector(logger, player, tracker, reloader, watchdog.Options{
		Interval:            cfg.WatchdogInterval(),
		StallThreshold:      cfg.StallThreshold(),
		InactivityThreshold: cfg.InactivityThreshold(),
	})
}

func newControlServer(logger *zap.Logger, cfg *config.AppConfig, e *engine.Engine, manager *cache.Manager, k *kiosk.Controller) *control.Server {
	return control.NewServer(logger, cfg.ControlAddr(), e, manager, k)
}

type hookParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Reloader  *system.Reloader
	Cache     *cache.Cache
	Manager   *cache.Manager
	Reporter  *analytics.Reporter
	Renderer  screen
	Player    *playback.Engine
	Inhibitor *kiosk.Inhibitor
	Kiosk     *kiosk.Controller
	Engine    *engine.Engine
	Heartbeat *heartbeat.Heartbeat
	Commands  *heartbeat.CommandChannel
	Detector  *watchdog.Detector
	Control   *control.Server
}

type service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// registerHooks sets up application lifecycle hooks. Services start in order
// and stop in reverse; session tasks are owned by the engine.
func registerHooks(p hookParams) {
	p.Engine.Attach(p.Heartbeat, p.Commands, p.Detector)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("Screend player started", zap.String("version", config.Version))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			p.Logger.Info("Shutting down")
			p.Cache.Close()
			return p.Inhibitor.Close()
		},
	})

	services := []service{p.Manager, p.Reporter, p.Renderer, p.Player, p.Kiosk, p.Engine, p.Control}
	for _, s := range services {
		p.Lifecycle.Append(fx.Hook{OnStart: s.Start, OnStop: s.Stop})
	}

	// player windows and browsers would outlive an exec
	p.Reloader.BeforeReload(p.Renderer.Stop)
	p.Reloader.BeforeReload(p.Engine.Stop)
	p.Reloader.BeforeReload(p.Control.Stop)
}
