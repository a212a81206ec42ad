package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/genricoloni/screend/internal/config"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	_maxInlineSize = 32 * 1024 * 1024       // 32 MB, for Fetch into memory
	_maxStreamSize = 4 * 1024 * 1024 * 1024 // 4 GB, for FetchTo
)

// ErrTooLarge is returned when a resource exceeds the fetcher's size limit
var ErrTooLarge = errors.New("resource exceeds size limit")

// Accepted Content-Type prefixes for media and shell resources
var _acceptedTypes = []string{
	"image/",
	"video/",
	"audio/",
	"font/",
	"text/",
	"application/json",
	"application/javascript",
	"application/octet-stream",
}

// HTTPFetcher downloads media and shell resources referenced by content bundles
type HTTPFetcher struct {
	logger    *zap.Logger
	client    *http.Client
	inlineMax int64
	streamMax int64
}

// NewHTTPFetcher creates a new HTTP-based fetcher instance
func NewHTTPFetcher(logger *zap.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		logger: logger,
		client: &http.Client{
			// Large videos are bounded by the caller's context, not a client timeout
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConnsPerHost:   4,
			},
		},
		inlineMax: _maxInlineSize,
		streamMax: _maxStreamSize,
	}
}

// Fetch downloads the resource at url into memory
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.inlineMax+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > f.inlineMax {
		return nil, fmt.Errorf("%s: %w", url, ErrTooLarge)
	}

	f.logger.Debug("Resource fetched", zap.Int("bytes", len(data)), zap.String("url", url))
	return data, nil
}

// FetchTo streams the resource at url into w
func (f *HTTPFetcher) FetchTo(ctx context.Context, url string, w io.Writer) (int64, error) {
	resp, err := f.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, io.LimitReader(resp.Body, f.streamMax+1))
	if err != nil {
		return n, fmt.Errorf("failed to read body: %w", err)
	}
	if n > f.streamMax {
		return n, fmt.Errorf("%s: %w", url, ErrTooLarge)
	}

	f.logger.Debug("Resource streamed", zap.Int64("bytes", n), zap.String("url", url))
	return n, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (*http.Response, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("unsupported protocol: %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "screend/"+config.Version)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !lo.SomeBy(_acceptedTypes, func(prefix string) bool { return strings.HasPrefix(ct, prefix) }) {
		resp.Body.Close()
		return nil, fmt.Errorf("unsupported content type: %s", ct)
	}
	return resp, nil
}
