package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func TestNewViper_Defaults(t *testing.T) {
	v, err := NewViper(afero.NewMemMapFs())
	if err != nil {
		t.Fatalf("NewViper failed: %v", err)
	}
	cfg := NewAppConfig(zap.NewNop(), v)

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"sync interval", cfg.SyncInterval(), 30 * time.Second},
		{"heartbeat interval", cfg.HeartbeatInterval(), 30 * time.Second},
		{"command interval", cfg.CommandInterval(), 10 * time.Second},
		{"watchdog interval", cfg.WatchdogInterval(), 10 * time.Second},
		{"stall threshold", cfg.StallThreshold(), 30 * time.Second},
		{"inactivity threshold", cfg.InactivityThreshold(), 5 * time.Minute},
		{"retry base", cfg.RetryBase(), 2 * time.Second},
		{"retry max delay", cfg.RetryMaxDelay(), 60 * time.Second},
		{"default duration", cfg.DefaultDuration(), 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if cfg.RetryMaxAttempts() != 5 {
		t.Errorf("expected 5 retry attempts, got %d", cfg.RetryMaxAttempts())
	}
}

func TestNewViper_EnvOverride(t *testing.T) {
	t.Setenv("SCREEND_SYNC_INTERVAL", "5s")
	t.Setenv("SCREEND_API_URL", "https://rpc.example.com/")

	v, err := NewViper(afero.NewMemMapFs())
	if err != nil {
		t.Fatalf("NewViper failed: %v", err)
	}
	cfg := NewAppConfig(zap.NewNop(), v)

	if cfg.SyncInterval() != 5*time.Second {
		t.Errorf("expected env override 5s, got %v", cfg.SyncInterval())
	}
	if cfg.APIURL() != "https://rpc.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.APIURL())
	}
}

func TestNewViper_ConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/etc/screend"
	t.Setenv("SCREEND_CONFIG_PATH", dir)
	if err := afero.WriteFile(fs, dir+"/screend.toml", []byte("[commands]\ninterval = \"3s\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := NewViper(fs)
	if err != nil {
		t.Fatalf("NewViper failed: %v", err)
	}
	if got := NewAppConfig(zap.NewNop(), v).CommandInterval(); got != 3*time.Second {
		t.Errorf("expected file value 3s, got %v", got)
	}
}
