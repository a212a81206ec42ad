package watchdog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/domain/mocks"
	"github.com/genricoloni/screend/internal/kvstore"
	"github.com/genricoloni/screend/internal/playback"
	"github.com/genricoloni/screend/internal/system"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type fakeSurface struct {
	state      playback.VideoState
	stateErr   error
	restarts   int
	restartErr error
}

func (s *fakeSurface) Show(ctx context.Context, item domain.PlaybackItem) error { return nil }
func (s *fakeSurface) Done() <-chan error { return nil }
func (s *fakeSurface) State(ctx context.Context) (playback.VideoState, error) {
	return s.state, s.stateErr
}
func (s *fakeSurface) Restart(ctx context.Context) error {
	s.restarts++
	return s.restartErr
}
func (s *fakeSurface) Close() error { return nil }

type fakeVideos struct {
	videos   []playback.ZoneVideo
	advanced []string
}

func (v *fakeVideos) ActiveVideos() []playback.ZoneVideo { return v.videos }

func (v *fakeVideos) Advance(zoneID string) bool {
	v.advanced = append(v.advanced, zoneID)
	return true
}

type fixture struct {
	d        *Detector
	tracker  *Tracker
	videos   *fakeVideos
	surface  *fakeSurface
	reloader *mocks.MockReloader
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	store, err := kvstore.New(zap.NewNop(), afero.NewMemMapFs(), "/state")
	require.NoError(t, err)

	f := &fixture{
		surface:  &fakeSurface{},
		reloader: mocks.NewMockReloader(ctrl),
		now:      time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.tracker = NewTracker(zap.NewNop(), store)
	f.tracker.now = clock
	f.tracker.Touch("test")

	f.videos = &fakeVideos{videos: []playback.ZoneVideo{{
		ZoneID:  "main",
		Item:    domain.PlaybackItem{ID: "v1", MediaType: domain.MediaVideo},
		Surface: f.surface,
	}}}
	f.d = NewDetector(zap.NewNop(), f.videos, f.tracker, f.reloader, Options{
		Interval:            10 * time.Second,
		StallThreshold:      30 * time.Second,
		InactivityThreshold: 5 * time.Minute,
	})
	f.d.now = clock
	return f
}

// tick advances the clock by one interval and runs a check
func (f *fixture) tick() {
	f.now = f.now.Add(10 * time.Second)
	f.d.check(context.Background())
}

func TestDetector_StallTriggersExactlyOneRestart(t *testing.T) {
	f := newFixture(t)
	f.surface.state = playback.VideoState{Position: 12.0, Duration: 60}

	f.d.check(context.Background()) // first observation
	f.tick()
	f.tick()
	assert.Zero(t, f.surface.restarts, "below the threshold")

	f.tick() // unchanged for exactly 30s
	assert.Equal(t, 1, f.surface.restarts)
	assert.Empty(t, f.videos.advanced, "a successful restart does not advance")

	f.tick()
	assert.Equal(t, 1, f.surface.restarts, "no second attempt right away")
}

func TestDetector_StillStuckAfterRestartAdvances(t *testing.T) {
	f := newFixture(t)
	f.surface.state = playback.VideoState{Position: 12.0}

	f.d.check(context.Background())
	for i := 0; i < 3; i++ {
		f.tick()
	}
	require.Equal(t, 1, f.surface.restarts)

	for i := 0; i < 3; i++ {
		f.tick()
	}
	assert.Equal(t, 1, f.surface.restarts)
	assert.Equal(t, []string{"main"}, f.videos.advanced)
}

func TestDetector_RestartFailureAdvances(t *testing.T) {
	f := newFixture(t)
	f.surface.state = playback.VideoState{Position: 3.0}
	f.surface.restartErr = errors.New("seek failed")

	f.d.check(context.Background())
	for i := 0; i < 3; i++ {
		f.tick()
	}
	assert.Equal(t, 1, f.surface.restarts)
	assert.Equal(t, []string{"main"}, f.videos.advanced)
}

func TestDetector_ProgressCountsAsActivity(t *testing.T) {
	f := newFixture(t)
	f.surface.state = playback.VideoState{Position: 1.0}
	f.d.check(context.Background())

	for i := 2; i < 8; i++ {
		f.surface.state.Position = float64(i)
		f.tick()
	}
	assert.Zero(t, f.surface.restarts)

	last, source := f.tracker.Last()
	assert.Equal(t, f.now, last)
	assert.Equal(t, "video", source)
}

func TestDetector_PausedOrEndedIsNotStuck(t *testing.T) {
	tests := []struct {
		name  string
		state playback.VideoState
	}{
		{"paused", playback.VideoState{Position: 5, Paused: true}},
		{"ended", playback.VideoState{Position: 60, Ended: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.surface.state = tt.state
			f.d.check(context.Background())
			for i := 0; i < 5; i++ {
				f.tick()
			}
			assert.Zero(t, f.surface.restarts)
		})
	}
}

func TestDetector_NewItemResetsStall(t *testing.T) {
	f := newFixture(t)
	f.surface.state = playback.VideoState{Position: 0}
	f.d.check(context.Background())
	f.tick()
	f.tick()

	f.videos.videos[0].Item.ID = "v2"
	f.tick()
	f.tick()
	assert.Zero(t, f.surface.restarts, "the stall clock restarts with a new item")
}

func TestDetector_InactivityReloads(t *testing.T) {
	f := newFixture(t)
	f.videos.videos = nil

	f.now = f.now.Add(5 * time.Minute)
	f.d.check(context.Background()) // exactly at the threshold

	reloaded := make(chan struct{})
	f.reloader.EXPECT().Reload("inactivity").DoAndReturn(func(string) error {
		close(reloaded)
		return nil
	})
	f.now = f.now.Add(time.Second)
	f.d.check(context.Background())
	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after the inactivity threshold")
	}

	// one reload at a time
	f.d.check(context.Background())
}

func TestDetector_FailedReloadIsRetried(t *testing.T) {
	f := newFixture(t)
	f.videos.videos = nil
	f.now = f.now.Add(10 * time.Minute)

	attempts := make(chan struct{}, 2)
	f.reloader.EXPECT().Reload("inactivity").DoAndReturn(func(string) error {
		attempts <- struct{}{}
		return errors.New("exec format error")
	}).Times(2)

	f.d.check(context.Background())
	<-attempts
	assert.Eventually(t, func() bool { return !f.d.reloading.Load() }, 2*time.Second, 5*time.Millisecond)
	f.d.check(context.Background())
	<-attempts
	assert.Eventually(t, func() bool { return !f.d.reloading.Load() }, 2*time.Second, 5*time.Millisecond)
}

// The reload hooks stop the detector whose loop requested the reload
func TestDetector_InactivityReloadThroughHooks(t *testing.T) {
	f := newFixture(t)
	f.videos.videos = nil
	f.now = f.now.Add(10 * time.Minute)

	execed := make(chan struct{})
	reloader := system.NewReloaderWithExec(zap.NewNop(), func(path string, argv, env []string) error {
		close(execed)
		return nil
	})
	reloader.BeforeReload(f.d.Stop)
	f.d.reloader = reloader
	f.d.opts.Interval = 5 * time.Millisecond

	require.NoError(t, f.d.Start(context.Background()))
	select {
	case <-execed:
	case <-time.After(2 * time.Second):
		t.Fatal("reload blocked in its own hooks")
	}
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	assert.False(t, f.d.running)
}

func TestTracker_PersistsActivity(t *testing.T) {
	store, err := kvstore.New(zap.NewNop(), afero.NewMemMapFs(), "/state")
	require.NoError(t, err)

	tr := NewTracker(zap.NewNop(), store)
	_, source := tr.Last()
	assert.Equal(t, "startup", source)

	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	tr.now = func() time.Time { return at }
	tr.Touch("heartbeat")

	persisted, ok := kvstore.LastActivity(store)
	require.True(t, ok)
	assert.True(t, at.Equal(persisted))
}
