// Package heartbeat runs the two fixed-interval channels to the remote service:
// the device status heartbeat and the command poll. Both fail fast and simply
// try again on their next tick.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/kvstore"
	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

// Heartbeat reports a DeviceStatus on every tick
type Heartbeat struct {
	logger   *zap.Logger
	remote   domain.Remote
	store    domain.Store
	stats    StatsCollector
	activity domain.ActivityRecorder
	interval time.Duration
	version  string
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewHeartbeat creates the heartbeat task; stats may be nil
func NewHeartbeat(logger *zap.Logger, remote domain.Remote, store domain.Store, stats StatsCollector, activity domain.ActivityRecorder, interval time.Duration, version string) *Heartbeat {
	return &Heartbeat{
		logger:   logger,
		remote:   remote,
		store:    store,
		stats:    stats,
		activity: activity,
		interval: interval,
		version:  version,
		now:      time.Now,
	}
}

// Start sends a first heartbeat right away and then one per interval
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.running = true

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		every(ctx, h.interval, func() { h.beat(ctx) })
	}()

	h.logger.Info("Heartbeat started", zap.Duration("interval", h.interval))
	return nil
}

// Stop halts the heartbeat and waits for an in-flight report
func (h *Heartbeat) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	h.cancel()
	h.mu.Unlock()

	if err := waitGroup(ctx, &h.wg); err != nil {
		return err
	}
	h.logger.Info("Heartbeat stopped")
	return nil
}

// Status builds the current device status
func (h *Heartbeat) Status(ctx context.Context) (domain.DeviceStatus, bool) {
	id, ok := kvstore.Identity(h.store)
	if !ok {
		return domain.DeviceStatus{}, false
	}

	status := domain.DeviceStatus{
		ScreenID:           id.ScreenID,
		PlayerVersion:      h.version,
		ContentFingerprint: kvstore.Fingerprint(h.store),
		Timestamp:          h.now().UTC(),
	}
	if h.stats != nil {
		sys, err := h.stats.Collect(ctx)
		if err != nil {
			h.logger.Debug("System stats unavailable", zap.Error(err))
		} else {
			status.System = sys
		}
	}
	return status, true
}

// beat sends one status report. Failures are logged and swallowed.
func (h *Heartbeat) beat(ctx context.Context) {
	status, ok := h.Status(ctx)
	if !ok {
		h.logger.Debug("Not paired, skipping heartbeat")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := h.remote.ReportDeviceStatus(ctx, status); err != nil {
		h.logger.Warn("Heartbeat failed", zap.String("screen", status.ScreenID), zap.Error(err))
		return
	}

	h.activity.Touch("heartbeat")
	h.logger.Debug("Heartbeat sent", zap.String("screen", status.ScreenID))
}

// every runs fn immediately and then on each tick until ctx is done
func every(ctx context.Context, interval time.Duration, fn func()) {
	fn()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// waitGroup waits for wg or gives up when ctx is done
func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
