package kvstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/genricoloni/screend/internal/domain"
)

// Identity returns the persisted screen identity, if paired
func Identity(s domain.Store) (domain.ScreenIdentity, bool) {
	id, ok := s.Get(KeyScreenID)
	if !ok || id == "" {
		return domain.ScreenIdentity{}, false
	}
	return domain.ScreenIdentity{ScreenID: id}, true
}

// SaveIdentity persists the screen identity
func SaveIdentity(s domain.Store, id domain.ScreenIdentity) error {
	return s.Set(KeyScreenID, id.ScreenID)
}

// Fingerprint returns the last persisted content fingerprint
func Fingerprint(s domain.Store) domain.Fingerprint {
	raw, ok := s.Get(KeyFingerprint)
	if !ok {
		return domain.Fingerprint{}
	}
	var fp domain.Fingerprint
	if err := json.Unmarshal([]byte(raw), &fp); err != nil {
		return domain.Fingerprint{}
	}
	return fp
}

// SaveFingerprint persists the content fingerprint
func SaveFingerprint(s domain.Store, fp domain.Fingerprint) error {
	raw, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint: %w", err)
	}
	return s.Set(KeyFingerprint, string(raw))
}

// KioskMode reports whether kiosk mode is persisted as active
func KioskMode(s domain.Store) bool {
	raw, ok := s.Get(KeyKioskMode)
	if !ok {
		return false
	}
	on, _ := strconv.ParseBool(raw)
	return on
}

// SaveKioskMode persists the kiosk flag
func SaveKioskMode(s domain.Store, on bool) error {
	return s.Set(KeyKioskMode, strconv.FormatBool(on))
}

// LastActivity returns the persisted last-activity timestamp
func LastActivity(s domain.Store) (time.Time, bool) {
	raw, ok := s.Get(KeyLastActivity)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SaveLastActivity persists the last-activity timestamp
func SaveLastActivity(s domain.Store, t time.Time) error {
	return s.Set(KeyLastActivity, t.UTC().Format(time.RFC3339Nano))
}

// LastCommand returns the id of the last executed command that restarts the process
func LastCommand(s domain.Store) string {
	id, _ := s.Get(KeyLastCommand)
	return id
}

// SaveLastCommand persists the id of an executed command
func SaveLastCommand(s domain.Store, id string) error {
	return s.Set(KeyLastCommand, id)
}
