// Package contentsync resolves the screen's content bundle and keeps it in sync
// with the server on a fixed interval.
package contentsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/genricoloni/screend/internal/cache"
	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/kvstore"
	"github.com/genricoloni/screend/internal/retry"
	"go.uber.org/zap"
)

// DefaultErrorThreshold is the number of consecutive failures that switch the
// loop to reconnecting
const DefaultErrorThreshold = 3

// Player renders the active bundle. Load(nil) means nothing is assigned.
// Load always starts every zone at its first item.
type Player interface {
	Load(bundle *domain.ContentBundle)
	Reset()
}

// BundleCache is the network-first bundle store
type BundleCache interface {
	Bundle(ctx context.Context, key string, resolve func(ctx context.Context) (*domain.ContentBundle, error)) (cache.BundleResult, error)
	PutBundle(key string, bundle *domain.ContentBundle) error
}

// Prefetcher populates the cache with a bundle's media in the background
type Prefetcher interface {
	Prefetch(bundle *domain.ContentBundle) bool
}

// Options tune the loop
type Options struct {
	Interval       time.Duration
	ErrorThreshold int
}

// Loop is the content resolver and sync loop
type Loop struct {
	logger   *zap.Logger
	remote   domain.Remote
	store    domain.Store
	bundles  BundleCache
	retrier  *retry.Retrier
	player   Player
	prefetch Prefetcher
	activity domain.ActivityRecorder
	opts     Options

	active atomic.Pointer[domain.ContentBundle]

	mu                sync.Mutex
	status            domain.SyncStatus
	consecutiveErrors int
	onStatus          func(domain.SyncStatus)
	onUnpaired        func()

	reloadCh chan struct{}
}

// NewLoop creates a sync loop
func NewLoop(
	logger *zap.Logger,
	remote domain.Remote,
	store domain.Store,
	bundles BundleCache,
	retrier *retry.Retrier,
	player Player,
	prefetch Prefetcher,
	activity domain.ActivityRecorder,
	opts Options,
) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.ErrorThreshold <= 0 {
		opts.ErrorThreshold = DefaultErrorThreshold
	}
	return &Loop{
		logger:   logger,
		remote:   remote,
		store:    store,
		bundles:  bundles,
		retrier:  retrier,
		player:   player,
		prefetch: prefetch,
		activity: activity,
		opts:     opts,
		status:   domain.StatusConnected,
		reloadCh: make(chan struct{}, 1),
	}
}

// OnStatusChange registers a hook called on every status transition
func (l *Loop) OnStatusChange(fn func(domain.SyncStatus)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStatus = fn
}

// OnUnpaired registers a hook called once the server reports the screen gone
func (l *Loop) OnUnpaired(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onUnpaired = fn
}

// Active returns the bundle currently playing, or nil
func (l *Loop) Active() *domain.ContentBundle {
	return l.active.Load()
}

// Fingerprint returns the fingerprint of the active bundle
func (l *Loop) Fingerprint() domain.Fingerprint {
	return l.active.Load().Fingerprint()
}

// Status returns the current connectivity status
func (l *Loop) Status() domain.SyncStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// ForceReload asks the loop to re-resolve now and restart playback, bypassing
// the interval. Requests made while one is pending are coalesced.
func (l *Loop) ForceReload() {
	select {
	case l.reloadCh <- struct{}{}:
	default:
	}
}

func (l *Loop) screenID() (string, error) {
	id, ok := kvstore.Identity(l.store)
	if !ok {
		return "", domain.ErrNotPaired
	}
	return id.ScreenID, nil
}

// Initial performs the first load after pairing or start-up: one direct call,
// falling back to the offline cache. The returned error is user-visible.
func (l *Loop) Initial(ctx context.Context) error {
	screenID, err := l.screenID()
	if err != nil {
		return err
	}

	res, err := l.bundles.Bundle(ctx, cache.BundleKey(screenID), func(ctx context.Context) (*domain.ContentBundle, error) {
		return l.remote.Resolve(ctx, screenID)
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoContentAssigned):
		l.showNothing()
		l.setStatus(domain.StatusConnected)
		return err
	case domain.IsContentNotFound(err):
		l.unpair(err)
		return err
	default:
		l.logger.Error("Initial content load failed", zap.Error(err))
		l.setStatus(domain.StatusOffline)
		return err
	}

	l.apply(res.Bundle, true)
	if res.Stale {
		l.mu.Lock()
		l.consecutiveErrors = 1
		l.mu.Unlock()
		l.setStatus(domain.StatusOffline)
		return nil
	}
	l.setStatus(domain.StatusConnected)
	return nil
}

// Run re-resolves on every interval until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	l.logger.Info("Content sync loop started", zap.Duration("interval", l.opts.Interval))

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Content sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if l.tick(ctx, false) {
				return nil
			}
		case <-l.reloadCh:
			l.logger.Info("Forced content reload")
			if l.tick(ctx, true) {
				return nil
			}
		}
	}
}

// tick runs one resolution; it reports true when the loop must end because the
// screen was unpaired
func (l *Loop) tick(ctx context.Context, force bool) bool {
	screenID, err := l.screenID()
	if err != nil {
		l.logger.Warn("Sync tick without identity", zap.Error(err))
		return true
	}

	bundle, err := l.remote.Resolve(ctx, screenID)
	if err != nil && ctx.Err() == nil && !isAuthoritative(err) {
		errs := l.recordFailure(err)
		if force {
			l.player.Reset()
		}
		if errs < l.opts.ErrorThreshold {
			return false
		}

		l.setStatus(domain.StatusReconnecting)
		bundle, err = retry.Do(ctx, l.retrier, "resolve", func(ctx context.Context) (*domain.ContentBundle, error) {
			b, err := l.remote.Resolve(ctx, screenID)
			if isAuthoritative(err) {
				return nil, backoff.Permanent(err)
			}
			return b, err
		})
		if err != nil && ctx.Err() == nil && !isAuthoritative(err) {
			l.recordFailure(err)
			l.logger.Warn("Content service unreachable, playing last known content",
				zap.Bool("hasContent", l.active.Load() != nil))
			l.setStatus(domain.StatusOffline)
			return false
		}
	}
	if ctx.Err() != nil {
		return false
	}

	switch {
	case err == nil:
	case domain.IsContentNotFound(err):
		l.unpair(err)
		return true
	case errors.Is(err, domain.ErrNoContentAssigned):
		l.recordSuccess()
		if l.active.Load() != nil {
			l.logger.Info("Content unassigned from screen")
			l.showNothing()
		}
		return false
	default:
		return false
	}

	l.recordSuccess()
	if err := l.bundles.PutBundle(cache.BundleKey(screenID), bundle); err != nil {
		l.logger.Warn("Failed to cache bundle", zap.Error(err))
	}

	if !l.apply(bundle, force) {
		// Unchanged content: the tick doubles as a liveness report
		if err := l.remote.Heartbeat(ctx, screenID); err != nil {
			l.logger.Debug("Sync heartbeat failed", zap.Error(err))
		} else if l.activity != nil {
			l.activity.Touch("sync")
		}
	}
	return false
}

// apply swaps the active bundle when its fingerprint changed (or force is set)
// and restarts playback from the first item. It reports whether it swapped.
func (l *Loop) apply(bundle *domain.ContentBundle, force bool) bool {
	fp := bundle.Fingerprint()
	current := l.active.Load()
	if !force && current != nil && current.Fingerprint() == fp {
		return false
	}

	l.active.Store(bundle)
	if err := kvstore.SaveFingerprint(l.store, fp); err != nil {
		l.logger.Warn("Failed to persist content fingerprint", zap.Error(err))
	}
	l.player.Load(bundle)
	if l.prefetch != nil && !l.prefetch.Prefetch(bundle) {
		l.logger.Debug("Media prefetch not queued")
	}

	l.logger.Info("Content bundle activated",
		zap.String("type", string(fp.Type)),
		zap.String("source", fp.Source),
		zap.String("playlistID", fp.PlaylistID),
		zap.String("layoutID", fp.LayoutID),
		zap.String("campaignID", fp.CampaignID))
	return true
}

func (l *Loop) showNothing() {
	l.active.Store(nil)
	if err := l.store.Delete(kvstore.KeyFingerprint); err != nil {
		l.logger.Warn("Failed to clear content fingerprint", zap.Error(err))
	}
	l.player.Load(nil)
}

func (l *Loop) unpair(cause error) {
	l.logger.Warn("Screen no longer exists, returning to pairing", zap.Error(cause))
	l.active.Store(nil)
	l.player.Load(nil)
	for _, key := range []string{kvstore.KeyScreenID, kvstore.KeyFingerprint} {
		if err := l.store.Delete(key); err != nil {
			l.logger.Error("Failed to clear identity", zap.String("key", key), zap.Error(err))
		}
	}

	l.mu.Lock()
	hook := l.onUnpaired
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (l *Loop) recordFailure(err error) int {
	l.mu.Lock()
	l.consecutiveErrors++
	n := l.consecutiveErrors
	l.mu.Unlock()

	l.logger.Warn("Content resolution failed", zap.Int("consecutiveErrors", n), zap.Error(err))
	return n
}

func (l *Loop) recordSuccess() {
	l.mu.Lock()
	l.consecutiveErrors = 0
	l.mu.Unlock()
	l.setStatus(domain.StatusConnected)
}

func (l *Loop) setStatus(s domain.SyncStatus) {
	l.mu.Lock()
	prev := l.status
	l.status = s
	hook := l.onStatus
	l.mu.Unlock()

	if prev == s {
		return
	}
	l.logger.Info("Sync status changed", zap.String("from", string(prev)), zap.String("to", string(s)))
	if hook != nil {
		hook(s)
	}
}

func isAuthoritative(err error) bool {
	return err != nil && (domain.IsContentNotFound(err) || errors.Is(err, domain.ErrNoContentAssigned))
}

// String describes the loop state for status reports
func (l *Loop) String() string {
	return fmt.Sprintf("status=%s fingerprint=%+v", l.Status(), l.Fingerprint())
}
