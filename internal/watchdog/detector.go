// Package watchdog detects frozen playback and a silent player. A stalled video
// gets one in-place restart before it is skipped; total inactivity reloads the
// whole process.
package watchdog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/playback"
	"go.uber.org/zap"
)

const stateTimeout = 2 * time.Second

// VideoSource exposes the videos currently playing
type VideoSource interface {
	ActiveVideos() []playback.ZoneVideo
	Advance(zoneID string) bool
}

// Options tune the detector
type Options struct {
	Interval            time.Duration
	StallThreshold      time.Duration
	InactivityThreshold time.Duration
}

// stallState follows the position of one zone's video between checks
type stallState struct {
	itemID    string
	position  float64
	since     time.Time
	recovered bool
}

// Detector runs the stuck checks on a fixed interval
type Detector struct {
	logger   *zap.Logger
	videos   VideoSource
	tracker  *Tracker
	reloader domain.Reloader
	opts     Options
	now      func() time.Time

	stalls map[string]*stallState

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	reloading atomic.Bool
}

// NewDetector creates the stuck detector
func NewDetector(logger *zap.Logger, videos VideoSource, tracker *Tracker, reloader domain.Reloader, opts Options) *Detector {
	return &Detector{
		logger:   logger,
		videos:   videos,
		tracker:  tracker,
		reloader: reloader,
		opts:     opts,
		now:      time.Now,
		stalls:   make(map[string]*stallState),
	}
}

// Start begins checking once per interval
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true

	d.wg.Add(1)
	go d.loop(ctx)

	d.logger.Info("Stuck detector started",
		zap.Duration("interval", d.opts.Interval),
		zap.Duration("stallThreshold", d.opts.StallThreshold),
		zap.Duration("inactivityThreshold", d.opts.InactivityThreshold))
	return nil
}

// Stop halts the checks
func (d *Detector) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.logger.Info("Stuck detector stopped")
	return nil
}

func (d *Detector) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.check(ctx)
		}
	}
}

// check runs both conditions once. Recovery is best-effort and never surfaces.
func (d *Detector) check(ctx context.Context) {
	d.checkVideos(ctx)
	d.checkInactivity()
}

func (d *Detector) checkVideos(ctx context.Context) {
	now := d.now()
	seen := make(map[string]bool)

	for _, v := range d.videos.ActiveVideos() {
		seen[v.ZoneID] = true

		sctx, cancel := context.WithTimeout(ctx, stateTimeout)
		st, err := v.Surface.State(sctx)
		cancel()
		if err != nil {
			d.logger.Debug("Video state unavailable", zap.String("zone", v.ZoneID), zap.Error(err))
			continue
		}
		if st.Paused || st.Ended {
			delete(d.stalls, v.ZoneID)
			continue
		}

		prev, ok := d.stalls[v.ZoneID]
		if !ok || prev.itemID != v.Item.ID {
			d.stalls[v.ZoneID] = &stallState{itemID: v.Item.ID, position: st.Position, since: now}
			continue
		}
		if st.Position != prev.position {
			prev.position = st.Position
			prev.since = now
			prev.recovered = false
			d.tracker.Touch("video")
			continue
		}

		stalled := now.Sub(prev.since)
		if stalled < d.opts.StallThreshold {
			continue
		}

		stuck := &domain.StuckPlaybackError{ZoneID: v.ZoneID, Position: st.Position, Stalled: stalled}
		if prev.recovered {
			d.logger.Warn("Video still stuck after restart, skipping", zap.Error(stuck))
			d.videos.Advance(v.ZoneID)
			delete(d.stalls, v.ZoneID)
			continue
		}

		d.logger.Warn("Video stuck, restarting", zap.String("item", v.Item.ID), zap.Error(stuck))
		rctx, cancel := context.WithTimeout(ctx, stateTimeout)
		err = v.Surface.Restart(rctx)
		cancel()
		if err != nil {
			d.logger.Warn("Restart failed, skipping video", zap.String("zone", v.ZoneID), zap.Error(err))
			d.videos.Advance(v.ZoneID)
			delete(d.stalls, v.ZoneID)
			continue
		}
		prev.recovered = true
		prev.since = now
	}

	for zone := range d.stalls {
		if !seen[zone] {
			delete(d.stalls, zone)
		}
	}
}

func (d *Detector) checkInactivity() {
	last, source := d.tracker.Last()
	idle := d.now().Sub(last)
	if idle <= d.opts.InactivityThreshold {
		return
	}

	if !d.reloading.CompareAndSwap(false, true) {
		return
	}
	d.logger.Error("No activity, reloading player",
		zap.Duration("idle", idle),
		zap.String("lastSource", source))

	// the reload hooks stop this detector, so the loop must not wait for them
	go func() {
		if err := d.reloader.Reload("inactivity"); err != nil {
			d.logger.Error("Process reload failed", zap.Error(err))
			d.reloading.Store(false)
		}
	}()
}
