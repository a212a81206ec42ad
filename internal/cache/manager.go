package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Tag names a cache-manager message
type Tag string

const (
	TagCacheMedia  Tag = "cache-media"
	TagCacheBundle Tag = "cache-bundle"
	TagClearCache  Tag = "clear-cache"
	TagCacheSize   Tag = "cache-size"
	TagSkipWaiting Tag = "skip-waiting"
)

// ErrManagerStopped is returned for requests sent to a stopped manager
var ErrManagerStopped = errors.New("cache manager is not running")

// Request is a tagged message to the cache manager
type Request struct {
	Tag Tag `json:"tag"`
	// URLs to cache (TagCacheMedia)
	URLs []string `json:"urls,omitempty"`
	// Key and Bundle to cache (TagCacheBundle)
	Key    string                `json:"key,omitempty"`
	Bundle *domain.ContentBundle `json:"bundle,omitempty"`
}

// Response answers a Request with the same tag
type Response struct {
	Tag    Tag    `json:"tag"`
	OK     bool   `json:"ok"`
	Cached int    `json:"cached,omitempty"`
	Failed int    `json:"failed,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Error  string `json:"error,omitempty"`
}

type envelope struct {
	req   Request
	reply chan Response
}

// Manager is the background cache-population process. Requests are handled one
// at a time by a single goroutine; bulk media downloads run on a bounded worker
// group so a slow download never blocks the render path or other requests.
type Manager struct {
	logger      *zap.Logger
	cache       *Cache
	reloader    domain.Reloader
	concurrency int

	requests chan envelope

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	lastDropWarning time.Time
}

// NewManager creates a cache manager
func NewManager(logger *zap.Logger, cache *Cache, reloader domain.Reloader, concurrency int) *Manager {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Manager{
		logger:      logger,
		cache:       cache,
		reloader:    reloader,
		concurrency: concurrency,
		requests:    make(chan envelope, 32),
	}
}

// Start launches the manager loop. The loop runs until Stop, not until ctx ends.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop(loopCtx)

	m.logger.Info("Cache manager started", zap.Int("concurrency", m.concurrency))
	return nil
}

// Stop cancels in-flight downloads and waits for the loop to exit
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.running = false
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		m.cache.Close()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("Cache manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send delivers req and waits for its response
func (m *Manager) Send(ctx context.Context, req Request) (Response, error) {
	if !m.isRunning() {
		return Response{}, ErrManagerStopped
	}

	env := envelope{req: req, reply: make(chan Response, 1)}
	select {
	case m.requests <- env:
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-env.reply:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Post delivers req without waiting; it reports false when the queue is full
func (m *Manager) Post(req Request) bool {
	if !m.isRunning() {
		return false
	}
	select {
	case m.requests <- envelope{req: req}:
		return true
	default:
		m.logQueueFullWarning()
		return false
	}
}

// Prefetch queues every media URL referenced by bundle
func (m *Manager) Prefetch(bundle *domain.ContentBundle) bool {
	urls := MediaURLs(bundle)
	if len(urls) == 0 {
		return true
	}
	return m.Post(Request{Tag: TagCacheMedia, URLs: urls})
}

func (m *Manager) isRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-m.requests:
			resp := m.handle(ctx, env.req)
			if env.reply != nil {
				env.reply <- resp
			}
		}
	}
}

func (m *Manager) handle(ctx context.Context, req Request) Response {
	resp := Response{Tag: req.Tag}

	switch req.Tag {
	case TagCacheMedia:
		// Downloads run detached from the loop; the reply reports acceptance
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			cached, failed := m.cacheMedia(ctx, req.URLs)
			m.logger.Info("Media prefetch finished", zap.Int("cached", cached), zap.Int("failed", failed))
		}()
		resp.OK = true
		resp.Cached = len(lo.Uniq(req.URLs))

	case TagCacheBundle:
		if req.Bundle == nil || req.Key == "" {
			resp.Error = "cache-bundle requires a key and a bundle"
			break
		}
		if err := m.cache.PutBundle(req.Key, req.Bundle); err != nil {
			resp.Error = err.Error()
			break
		}
		resp.OK = true

	case TagClearCache:
		if err := m.cache.Clear(); err != nil {
			resp.Error = err.Error()
			break
		}
		resp.OK = true

	case TagCacheSize:
		size, err := m.cache.Store().Size()
		if err != nil {
			resp.Error = err.Error()
			break
		}
		resp.OK = true
		resp.Size = size

	case TagSkipWaiting:
		if m.reloader == nil {
			resp.Error = "no reloader configured"
			break
		}
		resp.OK = true
		// Reply first: a successful reload replaces the process
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			if err := m.reloader.Reload("skip-waiting"); err != nil {
				m.logger.Error("Failed to activate new version", zap.Error(err))
			}
		}()

	default:
		resp.Error = fmt.Sprintf("unknown cache message tag %q", req.Tag)
	}

	if resp.Error != "" {
		m.logger.Warn("Cache request failed", zap.String("tag", string(req.Tag)), zap.String("error", resp.Error))
	}
	return resp
}

// CacheMedia downloads urls synchronously with bounded concurrency
func (m *Manager) CacheMedia(ctx context.Context, urls []string) (cached, failed int) {
	return m.cacheMedia(ctx, urls)
}

func (m *Manager) cacheMedia(ctx context.Context, urls []string) (int, int) {
	urls = lo.Uniq(urls)

	var (
		mu     sync.Mutex
		cached int
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, url := range urls {
		g.Go(func() error {
			_, err := m.cache.Media(gctx, url)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				m.logger.Warn("Failed to prefetch media", zap.String("url", url), zap.Error(err))
				// One bad asset must not cancel the rest
				return nil
			}
			cached++
			return nil
		})
	}
	_ = g.Wait()
	return cached, failed
}

// MediaURLs returns every distinct downloadable asset referenced by bundle.
// Web pages and apps are loaded live and are not cached.
func MediaURLs(bundle *domain.ContentBundle) []string {
	var urls []string
	for _, zone := range bundle.Zones() {
		for _, item := range zone.Items() {
			if item.URL == "" {
				continue
			}
			switch item.MediaType {
			case domain.MediaImage, domain.MediaVideo:
				urls = append(urls, item.URL)
			case domain.MediaApp, domain.MediaWebPage:
			}
		}
	}
	return lo.Uniq(urls)
}

func (m *Manager) logQueueFullWarning() {
	m.mu.Lock()
	defer m.mu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()
	if now.Sub(m.lastDropWarning) >= warningInterval {
		m.logger.Warn("Cache manager queue full, dropping request")
		m.lastDropWarning = now
	}
}
