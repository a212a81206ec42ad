package watchdog

import (
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/kvstore"
	"go.uber.org/zap"
)

// Tracker records the latest liveness signal and persists it
type Tracker struct {
	logger *zap.Logger
	store  domain.Store
	now    func() time.Time

	mu     sync.Mutex
	last   time.Time
	source string
}

var _ domain.ActivityRecorder = (*Tracker)(nil)

// NewTracker creates a tracker. Startup counts as activity so a long power-off
// never triggers an inactivity reload on boot.
func NewTracker(logger *zap.Logger, store domain.Store) *Tracker {
	t := &Tracker{logger: logger, store: store, now: time.Now}
	if prev, ok := kvstore.LastActivity(store); ok {
		logger.Debug("Previous activity", zap.Time("at", prev))
	}
	t.Touch("startup")
	return t
}

// Touch implements domain.ActivityRecorder
func (t *Tracker) Touch(source string) {
	now := t.now()

	t.mu.Lock()
	t.last = now
	t.source = source
	t.mu.Unlock()

	if err := kvstore.SaveLastActivity(t.store, now); err != nil {
		t.logger.Debug("Failed to persist activity", zap.Error(err))
	}
}

// Last returns the time and source of the latest signal
func (t *Tracker) Last() (time.Time, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.source
}
