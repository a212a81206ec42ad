// Package analytics delivers playback start/end events to the remote service
// in the background. Playback never waits on delivery.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultQueueSize bounds events waiting for delivery
	DefaultQueueSize = 256
	reportTimeout    = 10 * time.Second
)

// Reporter queues playback events and reports them from a single worker
type Reporter struct {
	logger *zap.Logger
	remote domain.Remote
	queue  chan domain.PlaybackEvent

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	lastDropWarning time.Time
	dropped         uint64
	delivered       uint64
}

// NewReporter creates a reporter holding at most queueSize pending events
func NewReporter(logger *zap.Logger, remote domain.Remote, queueSize int) *Reporter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Reporter{
		logger: logger,
		remote: remote,
		queue:  make(chan domain.PlaybackEvent, queueSize),
	}
}

// Start launches the delivery worker. It keeps delivering after ctx ends.
func (r *Reporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go r.worker(ctx)

	r.logger.Info("Playback analytics reporter started", zap.Int("queue", cap(r.queue)))
	return nil
}

// Stop halts delivery; queued events are dropped
func (r *Reporter) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	pending := len(r.queue)
	r.logger.Info("Playback analytics reporter stopped", zap.Int("pending", pending))
	return nil
}

// Emit queues event without blocking; a full queue drops it
func (r *Reporter) Emit(event domain.PlaybackEvent) {
	select {
	case r.queue <- event:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
		r.logDropWarning()
	}
}

// Stats returns delivered and dropped event counts
func (r *Reporter) Stats() (delivered, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delivered, r.dropped
}

func (r *Reporter) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.queue:
			r.report(ctx, ev)
		}
	}
}

func (r *Reporter) report(ctx context.Context, ev domain.PlaybackEvent) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	if err := r.remote.ReportPlaybackEvent(ctx, ev); err != nil {
		r.logger.Warn("Failed to report playback event",
			zap.String("kind", string(ev.Kind)),
			zap.String("zone", ev.ZoneID),
			zap.Error(err))
		return
	}

	r.mu.Lock()
	r.delivered++
	r.mu.Unlock()
}

// logDropWarning logs a warning about the queue being full, but rate-limited
// to avoid log spam while the remote is unreachable
func (r *Reporter) logDropWarning() {
	r.mu.Lock()
	defer r.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()
	if now.Sub(r.lastDropWarning) >= warningInterval {
		r.logger.Warn("Analytics queue full, dropping playback events", zap.Uint64("dropped", r.dropped))
		r.lastDropWarning = now
	}
}
