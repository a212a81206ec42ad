package kiosk

import (
	"errors"

	"github.com/genricoloni/screend/internal/domain"
	"github.com/genricoloni/screend/internal/kvstore"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	keyringService = "screend"
	keyringUser    = "kiosk-exit-password"
)

// PasswordStore keeps the kiosk exit password in the OS keyring. Devices
// without a secret service fall back to the local key-value store.
type PasswordStore struct {
	logger *zap.Logger
	store  domain.Store
}

// NewPasswordStore creates a password store
func NewPasswordStore(logger *zap.Logger, store domain.Store) *PasswordStore {
	return &PasswordStore{logger: logger, store: store}
}

// Set stores password; an empty password removes it
func (p *PasswordStore) Set(password string) error {
	if password == "" {
		return p.Delete()
	}

	if err := keyring.Set(keyringService, keyringUser, password); err != nil {
		p.logger.Warn("Keyring unavailable, storing exit password locally", zap.Error(err))
		return p.store.Set(kvstore.KeyKioskPassword, password)
	}
	// a stale local copy must not outlive a keyring write
	return p.store.Delete(kvstore.KeyKioskPassword)
}

// Get returns the stored password and whether one is configured
func (p *PasswordStore) Get() (string, bool) {
	password, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		return password, true
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		p.logger.Debug("Keyring read failed, checking local store", zap.Error(err))
	}
	return p.store.Get(kvstore.KeyKioskPassword)
}

// Delete removes the password from both locations
func (p *PasswordStore) Delete() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		p.logger.Debug("Keyring delete failed", zap.Error(err))
	}
	return p.store.Delete(kvstore.KeyKioskPassword)
}
