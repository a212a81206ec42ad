package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/genricoloni/screend/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Strategy selects how a resource is served
type Strategy int

const (
	// CacheFirst serves from cache and only hits the network on a miss
	CacheFirst Strategy = iota
	// NetworkFirst always tries the network and falls back to the cache
	NetworkFirst
	// StaleWhileRevalidate serves cached data and refreshes it in the background
	StaleWhileRevalidate
)

func (s Strategy) String() string {
	switch s {
	case CacheFirst:
		return "cache-first"
	case NetworkFirst:
		return "network-first"
	case StaleWhileRevalidate:
		return "stale-while-revalidate"
	}
	return "unknown"
}

// StrategyFor maps a resource kind to its strategy: media assets are immutable,
// bundles must be fresh, anything else is shell
func StrategyFor(bucket Bucket) Strategy {
	switch bucket {
	case BucketMedia, BucketFitted:
		return CacheFirst
	case BucketBundles:
		return NetworkFirst
	}
	return StaleWhileRevalidate
}

// Fitter prepares an image for a zone of the given pixel size
type Fitter interface {
	Fit(ctx context.Context, imageData []byte, size domain.ScreenResolution) ([]byte, error)
}

// BundleResult is a network-first bundle read
type BundleResult struct {
	Bundle *domain.ContentBundle
	// Stale is set when the network failed and the bundle came from cache
	Stale    bool
	CachedAt time.Time
}

// Cache applies the retrieval strategies on top of a Store
type Cache struct {
	logger       *zap.Logger
	store        *Store
	fetcher      domain.Fetcher
	fitter       Fitter
	bundleMaxAge time.Duration

	downloads singleflight.Group
	refreshes sync.WaitGroup
	// background refreshes outlive the request that triggered them
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// New creates a Cache. bundleMaxAge bounds how old a fallback bundle may be; zero
// means no bound.
func New(logger *zap.Logger, store *Store, fetcher domain.Fetcher, fitter Fitter, bundleMaxAge time.Duration) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		logger:       logger,
		store:        store,
		fetcher:      fetcher,
		fitter:       fitter,
		bundleMaxAge: bundleMaxAge,
		bgCtx:        ctx,
		bgCancel:     cancel,
	}
}

// Store exposes the underlying entry store
func (c *Cache) Store() *Store { return c.store }

// Media returns a local path for the asset at url (cache-first)
func (c *Cache) Media(ctx context.Context, url string) (string, error) {
	if path, ok := c.store.Path(BucketMedia, url); ok {
		return path, nil
	}

	// the download is shared, so it runs on bgCtx and not on the first caller's ctx
	flight := c.downloads.DoChan(url, func() (any, error) {
		if _, ok := c.store.Lookup(BucketMedia, url); ok {
			return nil, nil
		}
		_, err := c.store.PutStream(BucketMedia, url, func(w io.Writer) (int64, error) {
			return c.fetcher.FetchTo(c.bgCtx, url, w)
		})
		return nil, err
	})
	select {
	case res := <-flight:
		if res.Err != nil {
			return "", fmt.Errorf("failed to cache media %s: %w", url, res.Err)
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}

	path, ok := c.store.Path(BucketMedia, url)
	if !ok {
		return "", fmt.Errorf("media %s vanished after caching", url)
	}
	return path, nil
}

// FittedImage returns a local path for the image at url prepared for a zone of
// the given size (cache-first on both the original and the fitted variant)
func (c *Cache) FittedImage(ctx context.Context, url string, size domain.ScreenResolution) (string, error) {
	key := fmt.Sprintf("%s@%dx%d", url, size.Width, size.Height)
	if path, ok := c.store.Path(BucketFitted, key); ok {
		return path, nil
	}

	if _, err := c.Media(ctx, url); err != nil {
		return "", err
	}
	original, _, ok := c.store.Get(BucketMedia, url)
	if !ok {
		return "", fmt.Errorf("media %s vanished after caching", url)
	}

	fitted, err := c.fitter.Fit(ctx, original, size)
	if err != nil {
		return "", fmt.Errorf("failed to fit image %s: %w", url, err)
	}
	if _, err := c.store.Put(BucketFitted, key, fitted); err != nil {
		return "", err
	}

	path, _ := c.store.Path(BucketFitted, key)
	return path, nil
}

// BundleKey is the cache key of a screen's content bundle
func BundleKey(screenID string) string {
	return "bundle:" + screenID
}

// PutBundle caches a serialized bundle
func (c *Cache) PutBundle(key string, bundle *domain.ContentBundle) error {
	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	_, err = c.store.Put(BucketBundles, key, raw)
	return err
}

// CachedBundle returns the last cached bundle for key, honouring the max age
func (c *Cache) CachedBundle(key string) (*domain.ContentBundle, Entry, error) {
	raw, entry, ok := c.store.Get(BucketBundles, key)
	if !ok {
		return nil, Entry{}, domain.ErrNoCachedData
	}
	if c.bundleMaxAge > 0 && entry.Age(c.store.now()) > c.bundleMaxAge {
		c.logger.Warn("Cached bundle too old to use", zap.String("key", key), zap.Time("cachedAt", entry.CachedAt))
		return nil, entry, domain.ErrNoCachedData
	}

	var bundle domain.ContentBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, entry, fmt.Errorf("%w: corrupt bundle: %v", domain.ErrNoCachedData, err)
	}
	if err := bundle.Validate(); err != nil {
		return nil, entry, fmt.Errorf("%w: %v", domain.ErrNoCachedData, err)
	}
	return &bundle, entry, nil
}

// Bundle resolves a bundle network-first. Authoritative answers (screen gone,
// nothing assigned) are returned as-is; any other failure falls back to the
// cache, or fails with ErrNoCachedData.
func (c *Cache) Bundle(ctx context.Context, key string, resolve func(ctx context.Context) (*domain.ContentBundle, error)) (BundleResult, error) {
	bundle, err := resolve(ctx)
	if err == nil {
		if putErr := c.PutBundle(key, bundle); putErr != nil {
			c.logger.Warn("Failed to cache bundle", zap.String("key", key), zap.Error(putErr))
		}
		return BundleResult{Bundle: bundle, CachedAt: c.store.now()}, nil
	}
	if domain.IsContentNotFound(err) || errors.Is(err, domain.ErrNoContentAssigned) {
		return BundleResult{}, err
	}

	cached, entry, cacheErr := c.CachedBundle(key)
	if cacheErr != nil {
		return BundleResult{}, fmt.Errorf("%w (network: %v)", cacheErr, err)
	}
	c.logger.Info("Serving cached bundle", zap.String("key", key), zap.Time("cachedAt", entry.CachedAt), zap.Error(err))
	return BundleResult{Bundle: cached, Stale: true, CachedAt: entry.CachedAt}, nil
}

// Shell returns the resource at url stale-while-revalidate
func (c *Cache) Shell(ctx context.Context, url string) ([]byte, error) {
	if payload, _, ok := c.store.Get(BucketShell, url); ok {
		c.refreshes.Add(1)
		go func() {
			defer c.refreshes.Done()
			if err := c.refreshShell(c.bgCtx, url); err != nil {
				c.logger.Debug("Background refresh failed", zap.String("url", url), zap.Error(err))
			}
		}()
		return payload, nil
	}

	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if _, err := c.store.Put(BucketShell, url, data); err != nil {
		c.logger.Warn("Failed to cache resource", zap.String("url", url), zap.Error(err))
	}
	return data, nil
}

// ShellFile is Shell for consumers that need the resource on disk
func (c *Cache) ShellFile(ctx context.Context, url string) (string, error) {
	if _, err := c.Shell(ctx, url); err != nil {
		return "", err
	}
	path, ok := c.store.Path(BucketShell, url)
	if !ok {
		return "", fmt.Errorf("resource %s could not be cached", url)
	}
	return path, nil
}

func (c *Cache) refreshShell(ctx context.Context, url string) error {
	_, err, _ := c.downloads.Do("shell:"+url, func() (any, error) {
		data, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		_, err = c.store.Put(BucketShell, url, data)
		return nil, err
	})
	return err
}

// Clear purges every bucket
func (c *Cache) Clear() error {
	return c.store.Clear()
}

// Close cancels background refreshes and waits for them
func (c *Cache) Close() {
	c.bgCancel()
	c.refreshes.Wait()
}
