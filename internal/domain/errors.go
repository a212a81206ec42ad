package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoCachedData is returned when a network-first read fails and nothing usable is cached
	ErrNoCachedData = errors.New("no cached data")
	// ErrNotPaired is returned by operations that need a screen identity
	ErrNotPaired = errors.New("screen is not paired")
	// ErrNoContentAssigned means the screen resolved to a bundle with nothing to play
	ErrNoContentAssigned = errors.New("no content assigned")
)

// PairingError is an invalid, expired or already consumed pairing code.
// It is never retried and is shown to the operator.
type PairingError struct {
	Code   string
	Reason string
}

func (e *PairingError) Error() string {
	return fmt.Sprintf("pairing code %q rejected: %s", e.Code, e.Reason)
}

// ContentNotFoundError means the screen no longer exists server-side
type ContentNotFoundError struct {
	ScreenID string
}

func (e *ContentNotFoundError) Error() string {
	return fmt.Sprintf("screen %s not found", e.ScreenID)
}

// NetworkError is a transient connectivity failure
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StuckPlaybackError describes a stalled video; internal only
type StuckPlaybackError struct {
	ZoneID   string
	Position float64
	Stalled  time.Duration
}

func (e *StuckPlaybackError) Error() string {
	return fmt.Sprintf("zone %s stuck at %.2fs for %s", e.ZoneID, e.Position, e.Stalled)
}

// CommandExecutionError is reported back to the server and never crashes the runtime
type CommandExecutionError struct {
	CommandID string
	Type      CommandType
	Err       error
}

func (e *CommandExecutionError) Error() string {
	return fmt.Sprintf("command %s (%s): %v", e.CommandID, e.Type, e.Err)
}

func (e *CommandExecutionError) Unwrap() error {
	return e.Err
}

// IsPairingError reports whether err is or wraps a PairingError
func IsPairingError(err error) bool {
	var pe *PairingError
	return errors.As(err, &pe)
}

// IsContentNotFound reports whether err is or wraps a ContentNotFoundError
func IsContentNotFound(err error) bool {
	var ce *ContentNotFoundError
	return errors.As(err, &ce)
}
