package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/screend/internal/cache"
	"github.com/genricoloni/screend/internal/config"
	"github.com/genricoloni/screend/internal/control"
	"github.com/genricoloni/screend/internal/domain"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestAppGraphValidity verifies that the dependency graph is resolvable.
// This test will fail if you forget an fx.Provide for a required type.
func TestAppGraphValidity(t *testing.T) {
	if err := fx.ValidateApp(AppOptions); err != nil {
		t.Errorf("Dependency graph is not valid: %v", err)
	}
}

// TestNewLogger verifies the logger configuration for every level
func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"info", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"loud", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			v := viper.New()
			v.Set(config.KeyLogLevel, tt.level)

			logger, err := newLogger(v)
			require.NoError(t, err)
			require.NotNil(t, logger)
			assert.True(t, logger.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"run"},
		{"pair"},
		{"disconnect"},
		{"status"},
		{"cache", "size"},
		{"cache", "clear"},
		{"cache", "prefetch"},
		{"kiosk", "exit"},
		{"kiosk", "cancel"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

type stubSession struct {
	mu    sync.Mutex
	codes []string
	kiosk bool
}

func (s *stubSession) Pair(ctx context.Context, code string, kiosk bool, exitPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, code)
	s.kiosk = kiosk
	return nil
}

func (s *stubSession) Disconnect(ctx context.Context) error {
	return errors.New("kiosk mode is active, exit kiosk mode first")
}

func (s *stubSession) Status(ctx context.Context) control.Status {
	return control.Status{
		Paired:       true,
		ScreenID:     "scr_1",
		Content:      domain.Fingerprint{Type: domain.ContentPlaylist, Source: "playlist", PlaylistID: "pl_1"},
		Sync:         domain.StatusOffline,
		Kiosk:        "inactive",
		LastActivity: time.Now().Add(-2 * time.Minute),
		Version:      "1.2.3",
	}
}

type stubCache struct{}

func (stubCache) Send(ctx context.Context, req cache.Request) (cache.Response, error) {
	switch req.Tag {
	case cache.TagCacheSize:
		return cache.Response{Tag: req.Tag, OK: true, Size: 2048}, nil
	case cache.TagCacheMedia:
		return cache.Response{Tag: req.Tag, OK: true, Cached: len(req.URLs) - 1}, nil
	}
	return cache.Response{Tag: req.Tag, OK: true}, nil
}

type stubKiosk struct{}

func (stubKiosk) Exit(ctx context.Context, password string) error {
	if password != "letmeout" {
		return errors.New("incorrect kiosk exit password")
	}
	return nil
}

func (stubKiosk) Cancel(ctx context.Context) {}

func startControl(t *testing.T, session *stubSession) string {
	t.Helper()
	srv := control.NewServer(zap.NewNop(), "127.0.0.1:0", session, stubCache{}, stubKiosk{})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv.Addr()
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestCLI(t *testing.T) {
	session := &stubSession{}
	addr := startControl(t, session)

	tests := []struct {
		name    string
		args    []string
		stdin   string
		want    []string
		wantErr string
	}{
		{
			name: "status",
			args: []string{"status"},
			want: []string{"scr_1", "playlist pl_1", "offline", "inactive", "2 minutes ago", "1.2.3"},
		},
		{
			name: "pair",
			args: []string{"pair", " abc123 ", "--kiosk", "--exit-password", "pw"},
			want: []string{"Paired"},
		},
		{
			name:    "pair with a malformed code",
			args:    []string{"pair", "abc"},
			wantErr: "6 characters",
		},
		{
			name:    "exit password without kiosk",
			args:    []string{"pair", "ABC123", "--exit-password", "pw"},
			wantErr: "requires --kiosk",
		},
		{
			name:    "disconnect refused",
			args:    []string{"disconnect"},
			wantErr: "kiosk mode is active",
		},
		{
			name: "cache size",
			args: []string{"cache", "size"},
			want: []string{"2.0 KiB"},
		},
		{
			name: "cache prefetch",
			args: []string{"cache", "prefetch", "https://cdn/a.mp4", "ftp://cdn/b.png"},
			want: []string{"Queued 1 of 2"},
		},
		{
			name:  "kiosk exit",
			args:  []string{"kiosk", "exit"},
			stdin: "letmeout\n",
			want:  []string{"Kiosk mode disabled"},
		},
		{
			name:    "kiosk exit with a wrong password",
			args:    []string{"kiosk", "exit"},
			stdin:   "guess\n",
			wantErr: "incorrect",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, append(tt.args, "--addr", addr)...)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	assert.Equal(t, []string{"ABC123"}, session.codes)
	assert.True(t, session.kiosk)
}

func TestCLI_PlayerNotRunning(t *testing.T) {
	_, err := execute(t, "", "status", "--addr", "127.0.0.1:1")
	assert.ErrorContains(t, err, "player not reachable")
}

func TestDescribeContent(t *testing.T) {
	tests := []struct {
		name string
		fp   domain.Fingerprint
		want string
	}{
		{"none", domain.Fingerprint{}, "none"},
		{"playlist", domain.Fingerprint{Type: domain.ContentPlaylist, Source: "playlist", PlaylistID: "pl_1"}, "playlist pl_1"},
		{"scheduled layout", domain.Fingerprint{Type: domain.ContentLayout, Source: "schedule", LayoutID: "ly_1"}, "layout ly_1 (via schedule)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeContent(tt.fp))
		})
	}
}
