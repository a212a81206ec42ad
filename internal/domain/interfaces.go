package domain

import (
	"context"
	"io"
)

// Remote is the hosted RPC service the player talks to
//
//go:generate mockgen -destination=mocks/remote_mock.go -package=mocks github.com/genricoloni/screend/internal/domain Remote,Reloader
type Remote interface {
	// ResolveByOTP exchanges a one-time pairing code for a screen identity and its first bundle
	ResolveByOTP(ctx context.Context, code string) (*PairingResult, error)

	// Resolve returns the current content bundle for a screen
	Resolve(ctx context.Context, screenID string) (*ContentBundle, error)

	// Heartbeat is a fire-and-forget liveness ping
	Heartbeat(ctx context.Context, screenID string) error

	// PollCommand returns the next pending command, or nil when there is none
	PollCommand(ctx context.Context, screenID string) (*Command, error)

	// ReportCommandResult reports the outcome of an executed command
	ReportCommandResult(ctx context.Context, result CommandResult) error

	// ReportDeviceStatus sends a device status snapshot
	ReportDeviceStatus(ctx context.Context, status DeviceStatus) error

	// ReportPlaybackEvent records a playback start/end event for analytics
	ReportPlaybackEvent(ctx context.Context, event PlaybackEvent) error
}

// Store is the synchronous, reload-surviving local key-value store.
// Writes replace a key atomically; concurrent writers are last-write-wins.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
	// Clear removes every key
	Clear() error
}

// Fetcher defines the interface for retrieving remote resources
type Fetcher interface {
	// Fetch downloads the resource at url and returns its raw bytes
	Fetch(ctx context.Context, url string) ([]byte, error)

	// FetchTo streams the resource at url into w and returns the number of bytes written
	FetchTo(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Reloader restarts the whole player process
type Reloader interface {
	// Reload replaces the running process; it only returns on failure
	Reload(reason string) error
}

// ActivityRecorder receives liveness signals from the periodic tasks
type ActivityRecorder interface {
	Touch(source string)
}
