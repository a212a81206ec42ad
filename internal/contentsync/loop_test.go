package contentsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/genricoloni/screend/internal/cache"
	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/domain/mocks"
	"github.com/genricoloni/screend/internal/kvstore"
	"github.com/genricoloni/screend/internal/retry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type fakePlayer struct {
	mu     sync.Mutex
	loads  []*domain.ContentBundle
	resets int
}

func (p *fakePlayer) Load(b *domain.ContentBundle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads = append(p.loads, b)
}

func (p *fakePlayer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
}

func (p *fakePlayer) last() *domain.ContentBundle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loads) == 0 {
		return nil
	}
	return p.loads[len(p.loads)-1]
}

type fakeActivity struct{ touches []string }

func (a *fakeActivity) Touch(source string) { a.touches = append(a.touches, source) }

type fixture struct {
	loop     *Loop
	remote   *mocks.MockRemote
	store    *kvstore.FileStore
	cache    *cache.Cache
	player   *fakePlayer
	activity *fakeActivity
	statuses []domain.SyncStatus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	fs := afero.NewMemMapFs()

	store, err := kvstore.New(zap.NewNop(), fs, "/state")
	require.NoError(t, err)
	require.NoError(t, kvstore.SaveIdentity(store, domain.ScreenIdentity{ScreenID: "scr_1"}))

	cs, err := cache.NewStore(zap.NewNop(), fs, "/cache")
	require.NoError(t, err)
	c := cache.New(zap.NewNop(), cs, nil, nil, 0)
	t.Cleanup(c.Close)

	f := &fixture{
		remote:   mocks.NewMockRemote(ctrl),
		store:    store,
		cache:    c,
		player:   &fakePlayer{},
		activity: &fakeActivity{},
	}
	retrier := retry.New(zap.NewNop(), retry.Policy{Base: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3})
	f.loop = NewLoop(zap.NewNop(), f.remote, store, c, retrier, f.player, nil, f.activity, Options{Interval: time.Hour})
	f.loop.OnStatusChange(func(s domain.SyncStatus) { f.statuses = append(f.statuses, s) })
	return f
}

func playlist(id string, items int) *domain.ContentBundle {
	b := &domain.ContentBundle{Type: domain.ContentPlaylist, Source: "schedule", Playlist: &domain.Playlist{ID: id}}
	for i := 0; i < items; i++ {
		b.Playlist.Items = append(b.Playlist.Items, domain.PlaybackItem{ID: string(rune('a' + i)), MediaType: domain.MediaImage})
	}
	return b
}

var errOffline = &domain.NetworkError{Op: "resolve_screen_content", Err: errors.New("connection refused")}

func TestInitial_LoadsAndCaches(t *testing.T) {
	f := newFixture(t)
	f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_1", 3), nil)

	require.NoError(t, f.loop.Initial(context.Background()))
	assert.Equal(t, "pl_1", f.loop.Active().Playlist.ID)
	assert.Equal(t, domain.StatusConnected, f.loop.Status())
	assert.Equal(t, "pl_1", kvstore.Fingerprint(f.store).PlaylistID)

	_, _, err := f.cache.CachedBundle(cache.BundleKey("scr_1"))
	assert.NoError(t, err)
}

func TestInitial_OfflineServesCache(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cache.PutBundle(cache.BundleKey("scr_1"), playlist("pl_cached", 2)))
	f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(nil, errOffline)

	require.NoError(t, f.loop.Initial(context.Background()))
	assert.Equal(t, domain.StatusOffline, f.loop.Status())
	require.NotNil(t, f.player.last(), "the cached bundle keeps the screen playing")
	assert.Len(t, f.player.last().Playlist.Items, 2)
}

func TestInitial_OfflineWithoutCache(t *testing.T) {
	f := newFixture(t)
	f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(nil, errOffline)

	err := f.loop.Initial(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoCachedData)
	assert.Nil(t, f.loop.Active())
}

func TestTick_UnchangedSendsHeartbeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_1", 3), nil).Times(2)
	f.remote.EXPECT().Heartbeat(gomock.Any(), "scr_1").Return(nil)

	require.NoError(t, f.loop.Initial(ctx))
	f.loop.tick(ctx, false)

	assert.Len(t, f.player.loads, 1, "unchanged content must not restart playback")
	assert.Equal(t, []string{"sync"}, f.activity.touches)
}

func TestTick_ChangedSwapsBundle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gomock.InOrder(
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_1", 3), nil),
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_2", 1), nil),
	)

	require.NoError(t, f.loop.Initial(ctx))
	f.loop.tick(ctx, false)

	assert.Len(t, f.player.loads, 2)
	assert.Equal(t, "pl_2", f.loop.Active().Playlist.ID)
	assert.Equal(t, "pl_2", kvstore.Fingerprint(f.store).PlaylistID)
}

func TestTick_ReconnectsAfterThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gomock.InOrder(
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_1", 3), nil),
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(nil, errOffline).Times(3),
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_2", 3), nil),
	)

	require.NoError(t, f.loop.Initial(ctx))
	f.statuses = nil

	f.loop.tick(ctx, false)
	f.loop.tick(ctx, false)
	assert.Equal(t, domain.StatusConnected, f.loop.Status(), "below threshold the loop stays connected")

	// third failure switches to reconnecting; the first backoff retry succeeds
	f.loop.tick(ctx, false)

	assert.Equal(t, []domain.SyncStatus{domain.StatusReconnecting, domain.StatusConnected}, f.statuses)
	assert.Equal(t, "pl_2", f.loop.Active().Playlist.ID)
}

func TestTick_OfflineKeepsPlaying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gomock.InOrder(
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_1", 3), nil),
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(nil, errOffline).Times(3+3),
	)

	require.NoError(t, f.loop.Initial(ctx))
	for i := 0; i < 3; i++ {
		f.loop.tick(ctx, false)
	}

	assert.Equal(t, domain.StatusOffline, f.loop.Status())
	assert.Equal(t, "pl_1", f.loop.Active().Playlist.ID)
	assert.Len(t, f.player.loads, 1)
}

func TestTick_ScreenDeletedUnpairs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	unpaired := false
	f.loop.OnUnpaired(func() { unpaired = true })

	gomock.InOrder(
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_1", 3), nil),
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(nil, &domain.ContentNotFoundError{ScreenID: "scr_1"}),
	)

	require.NoError(t, f.loop.Initial(ctx))
	assert.True(t, f.loop.tick(ctx, false))
	assert.True(t, unpaired)

	_, ok := kvstore.Identity(f.store)
	assert.False(t, ok)
	assert.Nil(t, f.player.last())
}

func TestTick_NothingAssigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gomock.InOrder(
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_1", 3), nil),
		f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(nil, domain.ErrNoContentAssigned),
	)

	require.NoError(t, f.loop.Initial(ctx))
	f.loop.tick(ctx, false)

	assert.Nil(t, f.loop.Active())
	assert.Nil(t, f.player.last())
	assert.Equal(t, domain.StatusConnected, f.loop.Status())
}

func TestRun_ForceReloadRestartsSameContent(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.remote.EXPECT().Resolve(gomock.Any(), "scr_1").Return(playlist("pl_1", 3), nil).Times(2)
	require.NoError(t, f.loop.Initial(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.loop.Run(ctx)
	}()

	f.loop.ForceReload()
	assert.Eventually(t, func() bool {
		f.player.mu.Lock()
		defer f.player.mu.Unlock()
		return len(f.player.loads) == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
