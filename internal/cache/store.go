// Package cache is the player's offline cache: a durable store of the last good
// content bundle and every media asset it references.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Bucket partitions the cache by resource kind
type Bucket string

const (
	BucketMedia   Bucket = "media"
	BucketBundles Bucket = "bundles"
	BucketShell   Bucket = "shell"
	BucketFitted  Bucket = "fitted"
)

var allBuckets = []Bucket{BucketMedia, BucketBundles, BucketShell, BucketFitted}

const (
	payloadExt = ".bin"
	metaExt    = ".json"
)

// Entry describes one cached payload. Re-caching a key overwrites it.
type Entry struct {
	Key      string    `json:"key"`
	CachedAt time.Time `json:"cached_at"`
	Size     int64     `json:"size"`
}

// Age returns how long ago the entry was written
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// Store keeps payloads as files under root/<bucket>/<sha256(key)>.bin with a
// sidecar .json entry. Every write lands in a temp file first and is renamed
// into place, so readers see either the old or the new payload.
type Store struct {
	logger *zap.Logger
	fs     afero.Fs
	root   string
	now    func() time.Time

	// guards payload+meta pairs so a reader never pairs new bytes with old meta
	mu sync.RWMutex
}

// NewStore creates a store rooted at dir
func NewStore(logger *zap.Logger, fs afero.Fs, dir string) (*Store, error) {
	for _, b := range allBuckets {
		if err := fs.MkdirAll(filepath.Join(dir, string(b)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache bucket %s: %w", b, err)
		}
	}
	return &Store{logger: logger, fs: fs, root: dir, now: time.Now}, nil
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (s *Store) basePath(bucket Bucket, key string) string {
	return filepath.Join(s.root, string(bucket), hashKey(key))
}

// Put stores payload under key, replacing any previous value
func (s *Store) Put(bucket Bucket, key string, payload []byte) (Entry, error) {
	return s.PutStream(bucket, key, func(w io.Writer) (int64, error) {
		n, err := w.Write(payload)
		return int64(n), err
	})
}

// PutStream stores whatever fill writes under key. Nothing becomes visible
// unless fill succeeds.
func (s *Store) PutStream(bucket Bucket, key string, fill func(w io.Writer) (int64, error)) (Entry, error) {
	dir := filepath.Join(s.root, string(bucket))
	tmp, err := afero.TempFile(s.fs, dir, ".incoming-*")
	if err != nil {
		return Entry{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	size, err := fill(tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return Entry{}, fmt.Errorf("failed to write cache payload: %w", err)
	}

	entry := Entry{Key: key, CachedAt: s.now(), Size: size}
	meta, err := json.Marshal(entry)
	if err != nil {
		_ = s.fs.Remove(tmpName)
		return Entry{}, fmt.Errorf("failed to encode cache entry: %w", err)
	}

	base := s.basePath(bucket, key)
	metaTmp := base + metaExt + ".tmp"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := afero.WriteFile(s.fs, metaTmp, meta, 0o644); err != nil {
		_ = s.fs.Remove(tmpName)
		return Entry{}, fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := s.fs.Rename(tmpName, base+payloadExt); err != nil {
		_ = s.fs.Remove(tmpName)
		_ = s.fs.Remove(metaTmp)
		return Entry{}, fmt.Errorf("failed to replace cache payload: %w", err)
	}
	if err := s.fs.Rename(metaTmp, base+metaExt); err != nil {
		_ = s.fs.Remove(metaTmp)
		return Entry{}, fmt.Errorf("failed to replace cache entry: %w", err)
	}

	s.logger.Debug("Cached", zap.String("bucket", string(bucket)), zap.String("key", key), zap.Int64("bytes", size))
	return entry, nil
}

// Lookup returns the entry for key without reading the payload
func (s *Store) Lookup(bucket Bucket, key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookupLocked(bucket, key)
}

func (s *Store) lookupLocked(bucket Bucket, key string) (Entry, bool) {
	base := s.basePath(bucket, key)
	raw, err := afero.ReadFile(s.fs, base+metaExt)
	if err != nil {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Key != key {
		return Entry{}, false
	}
	if ok, _ := afero.Exists(s.fs, base+payloadExt); !ok {
		return Entry{}, false
	}
	return entry, true
}

// Get returns the payload and entry for key
func (s *Store) Get(bucket Bucket, key string) ([]byte, Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.lookupLocked(bucket, key)
	if !ok {
		return nil, Entry{}, false
	}
	payload, err := afero.ReadFile(s.fs, s.basePath(bucket, key)+payloadExt)
	if err != nil {
		return nil, Entry{}, false
	}
	return payload, entry, true
}

// Path returns the on-disk location of the payload for key, for consumers that
// open files themselves (the media player)
func (s *Store) Path(bucket Bucket, key string) (string, bool) {
	if _, ok := s.Lookup(bucket, key); !ok {
		return "", false
	}
	return s.basePath(bucket, key) + payloadExt, true
}

// Delete removes key from bucket
func (s *Store) Delete(bucket Bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.basePath(bucket, key)
	var err error
	for _, p := range []string{base + payloadExt, base + metaExt} {
		if rmErr := s.fs.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}

// Size returns the bytes used on disk across every bucket
func (s *Store) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	err := afero.Walk(s.fs, s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to measure cache: %w", err)
	}
	return total, nil
}

// Clear purges every bucket. Buckets are recreated empty.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, b := range allBuckets {
		dir := filepath.Join(s.root, string(b))
		if rmErr := s.fs.RemoveAll(dir); rmErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to clear %s: %w", b, rmErr))
			continue
		}
		if mkErr := s.fs.MkdirAll(dir, 0o755); mkErr != nil {
			err = multierr.Append(err, mkErr)
		}
	}
	if err == nil {
		s.logger.Info("Offline cache cleared")
	}
	return err
}
