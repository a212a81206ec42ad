package playback

import (
	"context"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"go.uber.org/zap"
)

// errorBackoff keeps a zone whose every item fails from spinning
const errorBackoff = time.Second

// zonePlayer cycles one zone through its items:
// Idle -> Playing(item) -> Playing(next) -> ...
type zonePlayer struct {
	logger   *zap.Logger
	zone     domain.Zone
	items    []domain.PlaybackItem
	shuffle  bool
	fallback time.Duration
	surface  Surface
	clock    Clock
	intn     func(n int) int
	events   func(kind domain.PlaybackEventKind, item domain.PlaybackItem)

	restartCh chan struct{}
	skipCh    chan struct{}

	mu      sync.Mutex
	current *domain.PlaybackItem
}

func newZonePlayer(logger *zap.Logger, zone domain.Zone, surface Surface, clock Clock, intn func(int) int, defaultDuration time.Duration) *zonePlayer {
	zp := &zonePlayer{
		logger:    logger.With(zap.String("zone", zone.ID)),
		zone:      zone,
		items:     zone.Items(),
		fallback:  defaultDuration,
		surface:   surface,
		clock:     clock,
		intn:      intn,
		restartCh: make(chan struct{}, 1),
		skipCh:    make(chan struct{}, 1),
	}
	if zone.Content.Type == domain.ZonePlaylist && zone.Content.Playlist != nil {
		zp.shuffle = zone.Content.Playlist.Shuffle
		if zone.Content.Playlist.DefaultDurationSeconds > 0 {
			zp.fallback = zone.Content.Playlist.DefaultDuration()
		}
	}
	if zp.fallback <= 0 {
		zp.fallback = domain.DefaultItemDuration
	}
	return zp
}

// duration is the display time of a non-video item
func (zp *zonePlayer) duration(item domain.PlaybackItem) time.Duration {
	return item.Duration.OrElse(zp.fallback)
}

// order returns the play order for one full cycle
func (zp *zonePlayer) order() []domain.PlaybackItem {
	out := make([]domain.PlaybackItem, len(zp.items))
	copy(out, zp.items)
	if zp.shuffle {
		fisherYates(out, zp.intn)
	}
	return out
}

func (zp *zonePlayer) restart() {
	select {
	case zp.restartCh <- struct{}{}:
	default:
	}
}

func (zp *zonePlayer) skip() {
	select {
	case zp.skipCh <- struct{}{}:
	default:
	}
}

func (zp *zonePlayer) playing() (domain.PlaybackItem, bool) {
	zp.mu.Lock()
	defer zp.mu.Unlock()
	if zp.current == nil {
		return domain.PlaybackItem{}, false
	}
	return *zp.current, true
}

func (zp *zonePlayer) setCurrent(item *domain.PlaybackItem) {
	zp.mu.Lock()
	defer zp.mu.Unlock()
	zp.current = item
}

func (zp *zonePlayer) run(ctx context.Context) {
	if len(zp.items) == 0 {
		zp.logger.Info("Zone has no content")
		<-ctx.Done()
		return
	}

	order := zp.order()
	idx := 0
	var prev *domain.PlaybackItem

	defer func() {
		if prev != nil {
			zp.events(domain.PlaybackEnd, *prev)
		}
		zp.setCurrent(nil)
	}()

	for {
		item := order[idx]
		if prev != nil {
			zp.events(domain.PlaybackEnd, *prev)
		}
		zp.setCurrent(&item)
		zp.events(domain.PlaybackStart, item)
		prev = &item

		restarted := zp.play(ctx, item)
		if ctx.Err() != nil {
			return
		}

		if restarted {
			order = zp.order()
			idx = 0
			continue
		}

		idx++
		if idx >= len(order) {
			// Full cycle done: shuffled playlists reshuffle, others restart at 0
			order = zp.order()
			idx = 0
		}
	}
}

// play renders item until it is finished. It reports true when the zone was
// asked to restart from the first item.
func (zp *zonePlayer) play(ctx context.Context, item domain.PlaybackItem) bool {
	if err := zp.surface.Show(ctx, item); err != nil {
		zp.logger.Warn("Failed to show item, skipping",
			zap.String("item", item.ID), zap.String("type", string(item.MediaType)), zap.Error(err))
		return zp.wait(ctx, zp.clock.After(errorBackoff), nil)
	}

	switch item.MediaType {
	case domain.MediaVideo:
		return zp.wait(ctx, nil, zp.surface.Done())
	case domain.MediaImage, domain.MediaWebPage, domain.MediaApp:
		return zp.wait(ctx, zp.clock.After(zp.duration(item)), nil)
	}

	zp.logger.Warn("Unknown media type, skipping", zap.String("item", item.ID), zap.String("type", string(item.MediaType)))
	return zp.wait(ctx, zp.clock.After(errorBackoff), nil)
}

func (zp *zonePlayer) wait(ctx context.Context, timer <-chan time.Time, done <-chan error) bool {
	select {
	case <-ctx.Done():
		return false
	case <-zp.restartCh:
		return true
	case <-zp.skipCh:
		return false
	case <-timer:
		return false
	case err := <-done:
		if err != nil {
			zp.logger.Warn("Video failed, advancing", zap.Error(err))
		}
		return false
	}
}

// fisherYates shuffles items in place; intn(n) returns a value in [0, n)
func fisherYates(items []domain.PlaybackItem, intn func(n int) int) {
	for i := len(items) - 1; i > 0; i-- {
		j := intn(i + 1)
		items[i], items[j] = items[j], items[i]
	}
}
