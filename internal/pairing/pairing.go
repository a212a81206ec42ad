// Package pairing exchanges a one-time pairing code for a durable screen identity.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/genricoloni/screend/internal/cache"
	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/kvstore"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CodeLength is the length of a pairing code
const CodeLength = 6

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

// Options are operator choices made while pairing
type Options struct {
	Kiosk        bool
	ExitPassword string
}

// KioskSettings persists the kiosk choice made at pairing time
type KioskSettings interface {
	Configure(enabled bool, exitPassword string) error
}

// BundleCache receives the first bundle so the screen can play offline immediately
type BundleCache interface {
	PutBundle(key string, bundle *domain.ContentBundle) error
}

// Manager performs pairing and disconnect
type Manager struct {
	logger *zap.Logger
	remote domain.Remote
	store  domain.Store
	cache  BundleCache
	kiosk  KioskSettings
}

// NewManager creates a pairing manager
func NewManager(logger *zap.Logger, remote domain.Remote, store domain.Store, cache BundleCache, kiosk KioskSettings) *Manager {
	return &Manager{logger: logger, remote: remote, store: store, cache: cache, kiosk: kiosk}
}

// NormalizeCode trims surrounding whitespace and upper-cases the code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks length and charset without contacting the server
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return &domain.PairingError{Code: code, Reason: fmt.Sprintf("code must be %d characters", CodeLength)}
	}
	if !codePattern.MatchString(code) {
		return &domain.PairingError{Code: code, Reason: "code must contain only letters and digits"}
	}
	return nil
}

// Paired reports whether a screen identity is persisted
func (m *Manager) Paired() bool {
	_, ok := kvstore.Identity(m.store)
	return ok
}

// Pair exchanges code for a screen identity. On success the identity, the first
// bundle's fingerprint and the bundle itself are persisted; on any failure nothing
// is left behind. Pairing is never retried automatically.
func (m *Manager) Pair(ctx context.Context, code string, opts Options) (*domain.PairingResult, error) {
	code = NormalizeCode(code)
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	if opts.ExitPassword != "" && !opts.Kiosk {
		return nil, errors.New("an exit password requires kiosk mode")
	}

	m.logger.Info("Pairing screen", zap.String("code", code))

	result, err := m.remote.ResolveByOTP(ctx, code)
	if err != nil {
		m.logger.Warn("Pairing failed", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	if err := m.persist(result, opts); err != nil {
		if rbErr := m.rollback(); rbErr != nil {
			m.logger.Error("Failed to roll back partial pairing state", zap.Error(rbErr))
		}
		return nil, fmt.Errorf("failed to persist pairing: %w", err)
	}

	m.logger.Info("Screen paired", zap.String("screenID", result.ScreenID), zap.Bool("kiosk", opts.Kiosk))
	return result, nil
}

func (m *Manager) persist(result *domain.PairingResult, opts Options) error {
	if err := kvstore.SaveIdentity(m.store, domain.ScreenIdentity{ScreenID: result.ScreenID}); err != nil {
		return err
	}
	if result.Bundle != nil {
		if err := kvstore.SaveFingerprint(m.store, result.Bundle.Fingerprint()); err != nil {
			return err
		}
		if err := m.cache.PutBundle(cache.BundleKey(result.ScreenID), result.Bundle); err != nil {
			// The sync loop re-resolves right away; a missing cache copy only
			// weakens the first offline window
			m.logger.Warn("Failed to cache first bundle", zap.Error(err))
		}
	}
	if m.kiosk != nil {
		if err := m.kiosk.Configure(opts.Kiosk, opts.ExitPassword); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) rollback() error {
	return multierr.Combine(
		m.store.Delete(kvstore.KeyScreenID),
		m.store.Delete(kvstore.KeyFingerprint),
	)
}
