package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/kiosk"
	"github.com/genricoloni/screend/internal/kvstore"
	"github.com/genricoloni/screend/internal/pairing"
	"github.com/genricoloni/screend/internal/playback"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeSync struct {
	log         *journal
	hook        func()
	initialErr  error
	// slowInitial holds Initial until the session is cancelled
	slowInitial bool
	unpairRun   bool
	started     chan struct{}
}

func (s *fakeSync) Initial(ctx context.Context) error {
	s.log.add("initial")
	if s.slowInitial {
		<-ctx.Done()
		return ctx.Err()
	}
	if domain.IsContentNotFound(s.initialErr) {
		s.hook()
	}
	return s.initialErr
}

func (s *fakeSync) Run(ctx context.Context) error {
	s.log.add("run")
	s.started <- struct{}{}
	if s.unpairRun {
		s.hook()
		return nil
	}
	<-ctx.Done()
	s.log.add("run stopped")
	return ctx.Err()
}

func (s *fakeSync) OnUnpaired(fn func()) { s.hook = fn }

func (s *fakeSync) Fingerprint() domain.Fingerprint {
	return domain.Fingerprint{Type: domain.ContentPlaylist, PlaylistID: "pl_1"}
}

func (s *fakeSync) Status() domain.SyncStatus { return domain.StatusConnected }

type fakePairer struct {
	store domain.Store
	err   error
	opts  pairing.Options
}

func (p *fakePairer) Paired() bool {
	_, ok := kvstore.Identity(p.store)
	return ok
}

func (p *fakePairer) Pair(ctx context.Context, code string, opts pairing.Options) (*domain.PairingResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.opts = opts
	if err := kvstore.SaveIdentity(p.store, domain.ScreenIdentity{ScreenID: "scr_" + code}); err != nil {
		return nil, err
	}
	return &domain.PairingResult{ScreenID: "scr_" + code}, nil
}

type fakeScreen struct {
	mu       sync.Mutex
	messages []string
}

func (s *fakeScreen) ShowMessage(ctx context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *fakeScreen) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1]
}

type fakeLock struct{ state kiosk.State }

func (l *fakeLock) State() kiosk.State { return l.state }

type fakeTask struct {
	name string
	log  *journal
}

func (t *fakeTask) Start(ctx context.Context) error {
	t.log.add("start " + t.name)
	return nil
}

func (t *fakeTask) Stop(ctx context.Context) error {
	t.log.add("stop " + t.name)
	return nil
}

type fakeWiper struct {
	log  *journal
	name string
}

func (w *fakeWiper) Clear() error {
	w.log.add("clear " + w.name)
	return nil
}

func (w *fakeWiper) Delete() error {
	w.log.add("delete " + w.name)
	return nil
}

type fakeActivity struct{ at time.Time }

func (a fakeActivity) Last() (time.Time, string) { return a.at, "heartbeat" }

type fixture struct {
	e      *Engine
	log    *journal
	store  *kvstore.FileStore
	sync   *fakeSync
	pairer *fakePairer
	screen *fakeScreen
	lock   *fakeLock
}

func newFixture(t *testing.T, paired bool) *fixture {
	t.Helper()
	store, err := kvstore.New(zap.NewNop(), afero.NewMemMapFs(), "/state")
	require.NoError(t, err)
	if paired {
		require.NoError(t, kvstore.SaveIdentity(store, domain.ScreenIdentity{ScreenID: "scr_1"}))
	}

	log := &journal{}
	f := &fixture{
		log:    log,
		store:  store,
		sync:   &fakeSync{log: log, started: make(chan struct{}, 4)},
		pairer: &fakePairer{store: store},
		screen: &fakeScreen{},
		lock:   &fakeLock{},
	}
	f.e = NewEngine(zap.NewNop(), Components{
		Store:     store,
		Pairing:   f.pairer,
		Sync:      f.sync,
		Screen:    f.screen,
		Kiosk:     f.lock,
		Cache:     &fakeWiper{log: log, name: "cache"},
		Passwords: &fakeWiper{log: log, name: "password"},
		Activity:  fakeActivity{at: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)},
		Tasks: []Task{
			&fakeTask{name: "heartbeat", log: log},
			&fakeTask{name: "commands", log: log},
		},
		Version: "1.0.0",
	})
	t.Cleanup(func() { _ = f.e.Stop(context.Background()) })
	return f
}

func (f *fixture) waitRun(t *testing.T) {
	t.Helper()
	select {
	case <-f.sync.started:
	case <-time.After(2 * time.Second):
		t.Fatal("sync loop not running")
	}
}

func TestEngine_StartUnpairedShowsPairing(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.e.Start(context.Background()))

	assert.Equal(t, playback.MessageUnpaired, f.screen.last())
	assert.Empty(t, f.log.list())
}

func TestEngine_SessionLifecycle(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.e.Start(context.Background()))
	f.waitRun(t)

	require.NoError(t, f.e.Stop(context.Background()))
	assert.Equal(t, []string{
		"initial",
		"start heartbeat",
		"start commands",
		"run",
		"run stopped",
		"stop commands",
		"stop heartbeat",
	}, f.log.list())
}

func TestEngine_InitialFailureStillRunsTasks(t *testing.T) {
	f := newFixture(t, true)
	f.sync.initialErr = &domain.NetworkError{Op: "resolve", Err: errors.New("offline")}
	require.NoError(t, f.e.Start(context.Background()))
	f.waitRun(t)

	assert.Contains(t, f.log.list(), "start heartbeat")
}

func TestEngine_SlowInitialDoesNotBlock(t *testing.T) {
	tests := []struct {
		name string
		end  func(e *Engine, ctx context.Context) error
	}{
		{"stop", (*Engine).Stop},
		{"disconnect", (*Engine).Disconnect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.sync.slowInitial = true

			started := make(chan error, 1)
			go func() { started <- f.e.Start(context.Background()) }()
			select {
			case err := <-started:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("Start waited for the initial content")
			}
			assert.Eventually(t, func() bool {
				return len(f.log.list()) > 0
			}, 2*time.Second, 5*time.Millisecond)

			ended := make(chan error, 1)
			go func() { ended <- tt.end(f.e, context.Background()) }()
			select {
			case err := <-ended:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatalf("%s blocked behind the initial content", tt.name)
			}
			assert.NotContains(t, f.log.list(), "start heartbeat")
			assert.NotContains(t, f.log.list(), "run")
		})
	}
}

func TestEngine_Pair(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.e.Start(ctx))

	require.NoError(t, f.e.Pair(ctx, "ABC123", true, "pw"))
	f.waitRun(t)
	assert.Equal(t, pairing.Options{Kiosk: true, ExitPassword: "pw"}, f.pairer.opts)
	assert.Contains(t, f.log.list(), "start heartbeat")

	assert.ErrorIs(t, f.e.Pair(ctx, "XYZ789", false, ""), ErrAlreadyPaired)
}

func TestEngine_PairingErrorIsShown(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	require.NoError(t, f.e.Start(ctx))

	f.pairer.err = &domain.PairingError{Code: "ABC123", Reason: "expired"}
	err := f.e.Pair(ctx, "ABC123", false, "")
	assert.True(t, domain.IsPairingError(err))
	assert.Contains(t, f.screen.last(), "expired")
	assert.NotContains(t, f.log.list(), "initial")
}

func TestEngine_Disconnect(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	require.NoError(t, f.e.Start(ctx))
	f.waitRun(t)

	require.NoError(t, f.e.Disconnect(ctx))
	log := f.log.list()
	assert.Contains(t, log, "stop heartbeat")
	assert.Contains(t, log, "clear cache")
	assert.Contains(t, log, "delete password")
	_, paired := kvstore.Identity(f.store)
	assert.False(t, paired)
	assert.Equal(t, playback.MessageUnpaired, f.screen.last())
}

func TestEngine_DisconnectLockedByKiosk(t *testing.T) {
	for _, state := range []kiosk.State{kiosk.StateActive, kiosk.StateExitPrompt} {
		t.Run(state.String(), func(t *testing.T) {
			f := newFixture(t, true)
			f.lock.state = state
			require.NoError(t, f.e.Start(context.Background()))
			f.waitRun(t)

			assert.ErrorIs(t, f.e.Disconnect(context.Background()), kiosk.ErrLocked)
			_, paired := kvstore.Identity(f.store)
			assert.True(t, paired)
		})
	}
}

func TestEngine_ScreenRemovedEndsSession(t *testing.T) {
	f := newFixture(t, true)
	f.sync.unpairRun = true
	require.NoError(t, f.e.Start(context.Background()))
	f.waitRun(t)

	assert.Eventually(t, func() bool {
		return f.screen.last() == playback.MessageUnpaired
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, f.log.list(), "stop heartbeat")
}

func TestEngine_ScreenRemovedBeforeStart(t *testing.T) {
	f := newFixture(t, true)
	f.sync.initialErr = &domain.ContentNotFoundError{ScreenID: "scr_1"}
	require.NoError(t, f.e.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return f.screen.last() == playback.MessageUnpaired
	}, 2*time.Second, 5*time.Millisecond)
	assert.NotContains(t, f.log.list(), "start heartbeat")
}

func TestEngine_Status(t *testing.T) {
	f := newFixture(t, true)
	f.lock.state = kiosk.StateActive

	status := f.e.Status(context.Background())
	assert.True(t, status.Paired)
	assert.Equal(t, "scr_1", status.ScreenID)
	assert.Equal(t, "pl_1", status.Content.PlaylistID)
	assert.Equal(t, domain.StatusConnected, status.Sync)
	assert.Equal(t, "active", status.Kiosk)
	assert.Equal(t, "1.0.0", status.Version)
	assert.False(t, status.LastActivity.IsZero())
}

func TestEngine_ResetState(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, kvstore.SaveKioskMode(f.store, true))

	require.NoError(t, f.e.ResetState())
	_, paired := kvstore.Identity(f.store)
	assert.False(t, paired)
	assert.False(t, kvstore.KioskMode(f.store))
	assert.Equal(t, []string{"clear cache", "delete password"}, f.log.list())
}

func TestEngine_AttachedTasksJoinTheSession(t *testing.T) {
	f := newFixture(t, true)
	f.e.Attach(&fakeTask{name: "watchdog", log: f.log})
	require.NoError(t, f.e.Start(context.Background()))
	f.waitRun(t)

	require.NoError(t, f.e.Stop(context.Background()))
	log := f.log.list()
	assert.Equal(t, []string{"initial", "start heartbeat", "start commands", "start watchdog"}, log[:4])
	assert.Equal(t, "stop watchdog", log[len(log)-3])
}
