// Package playback advances through the active content bundle, one independent
// player per zone, and emits start/end events for every item.
package playback

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Messages shown when there is nothing to play
const (
	MessageNoContent = "No content assigned"
	MessageUnpaired  = "Screen not paired"
)

// Options tune the engine
type Options struct {
	// DefaultDuration applies to items of zones without a playlist default
	DefaultDuration time.Duration
	Clock           Clock
	// Intn drives the shuffle; it must return a value in [0, n)
	Intn func(n int) int
	// ScreenID returns the paired screen id for events
	ScreenID func() string
}

// Engine owns the zone players of the active bundle
type Engine struct {
	logger   *zap.Logger
	renderer Renderer
	sink     EventSink
	opts     Options

	mu         sync.Mutex
	baseCtx    context.Context
	baseCancel context.CancelFunc
	running    bool
	bundle     *domain.ContentBundle
	zones      map[string]*zonePlayer
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewEngine creates a playback engine
func NewEngine(logger *zap.Logger, renderer Renderer, sink EventSink, opts Options) *Engine {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = domain.DefaultItemDuration
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Intn == nil {
		opts.Intn = rand.IntN
	}
	if opts.ScreenID == nil {
		opts.ScreenID = func() string { return "" }
	}
	return &Engine{
		logger:   logger,
		renderer: renderer,
		sink:     sink,
		opts:     opts,
		zones:    make(map[string]*zonePlayer),
	}
}

// Start enables rendering; a bundle loaded earlier starts playing now.
// Zones outlive ctx and run until Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	e.baseCtx, e.baseCancel = context.WithCancel(context.Background())
	e.running = true
	e.logger.Info("Playback engine started")
	if e.bundle != nil {
		e.loadLocked(e.bundle)
	}
	return nil
}

// Stop tears down every zone
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return nil
	}
	err := e.stopZonesLocked()
	e.baseCancel()
	e.running = false
	e.logger.Info("Playback engine stopped")
	return err
}

// Load replaces the active bundle and starts every zone at its first item.
// A nil or empty bundle shows the idle screen.
func (e *Engine) Load(bundle *domain.ContentBundle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bundle = bundle
	if !e.running {
		return
	}
	e.loadLocked(bundle)
}

// Reset restarts every zone at its first item without reloading surfaces
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, zp := range e.zones {
		zp.restart()
	}
	e.logger.Info("Playback reset to first item")
}

// Advance skips the current item of zoneID
func (e *Engine) Advance(zoneID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	zp, ok := e.zones[zoneID]
	if !ok {
		return false
	}
	zp.skip()
	return true
}

// ZoneVideo is a zone currently showing a video
type ZoneVideo struct {
	ZoneID  string
	Item    domain.PlaybackItem
	Surface Surface
}

// ActiveVideos lists zones whose current item is a video
func (e *Engine) ActiveVideos() []ZoneVideo {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []ZoneVideo
	for id, zp := range e.zones {
		item, ok := zp.playing()
		if ok && item.MediaType == domain.MediaVideo {
			out = append(out, ZoneVideo{ZoneID: id, Item: item, Surface: zp.surface})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out
}

// ShowMessage stops playback and shows message full screen
func (e *Engine) ShowMessage(ctx context.Context, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bundle = nil
	if err := e.stopZonesLocked(); err != nil {
		e.logger.Warn("Failed to stop zones", zap.Error(err))
	}
	return e.renderer.ShowIdle(ctx, message)
}

func (e *Engine) loadLocked(bundle *domain.ContentBundle) {
	if err := e.stopZonesLocked(); err != nil {
		e.logger.Warn("Failed to close previous surfaces", zap.Error(err))
	}

	if bundle == nil || bundle.Empty() {
		if err := e.renderer.ShowIdle(e.baseCtx, MessageNoContent); err != nil {
			e.logger.Warn("Failed to show idle screen", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithCancel(e.baseCtx)
	e.cancel = cancel

	zones := append([]domain.Zone(nil), bundle.Zones()...)
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].ZIndex < zones[j].ZIndex })

	for _, zone := range zones {
		surface, err := e.renderer.OpenSurface(ctx, zone)
		if err != nil {
			e.logger.Error("Failed to open zone surface", zap.String("zone", zone.ID), zap.Error(err))
			continue
		}

		zp := newZonePlayer(e.logger, zone, surface, e.opts.Clock, e.opts.Intn, e.opts.DefaultDuration)
		zp.events = e.eventEmitter(bundle, zone)
		e.zones[zone.ID] = zp

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			zp.run(ctx)
		}()
	}

	e.logger.Info("Playback loaded", zap.Int("zones", len(e.zones)), zap.String("type", string(bundle.Type)))
}

func (e *Engine) stopZonesLocked() error {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.wg.Wait()

	var err error
	for id, zp := range e.zones {
		err = multierr.Append(err, zp.surface.Close())
		delete(e.zones, id)
	}
	return err
}

func (e *Engine) eventEmitter(bundle *domain.ContentBundle, zone domain.Zone) func(domain.PlaybackEventKind, domain.PlaybackItem) {
	return func(kind domain.PlaybackEventKind, item domain.PlaybackItem) {
		if e.sink == nil {
			return
		}
		e.sink.Emit(BuildEvent(kind, e.opts.ScreenID(), bundle, zone, item, time.Now()))
	}
}

// BuildEvent assembles the analytics event for one item transition
func BuildEvent(kind domain.PlaybackEventKind, screenID string, bundle *domain.ContentBundle, zone domain.Zone, item domain.PlaybackItem, at time.Time) domain.PlaybackEvent {
	ev := domain.PlaybackEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		ScreenID:   screenID,
		TenantID:   bundle.ScreenMeta.TenantID,
		LocationID: bundle.ScreenMeta.LocationID,
		ZoneID:     zone.ID,
		ItemType:   item.MediaType,
		ItemName:   item.Name,
		At:         at.UTC(),
	}

	switch bundle.Type {
	case domain.ContentPlaylist:
		if bundle.Playlist != nil {
			ev.PlaylistID = bundle.Playlist.ID
		}
	case domain.ContentLayout:
		if bundle.Layout != nil {
			ev.LayoutID = bundle.Layout.ID
		}
		if zone.Content.Playlist != nil {
			ev.PlaylistID = zone.Content.Playlist.ID
		}
	}
	if bundle.Campaign != nil {
		ev.CampaignID = bundle.Campaign.ID
	}

	switch item.MediaType {
	case domain.MediaApp:
		ev.AppID = item.ID
	case domain.MediaImage, domain.MediaVideo, domain.MediaWebPage:
		ev.MediaID = item.ID
	}
	return ev
}
