package playback

import (
	"context"
	"time"

	"github.com/genricoloni/screend/internal/domain"
)

// Surface renders the items of one zone
type Surface interface {
	// Show starts rendering item and returns once it is on screen
	Show(ctx context.Context, item domain.PlaybackItem) error

	// Done delivers one value per shown video: nil at its natural end, an error
	// when it failed to load or play
	Done() <-chan error

	// State reports the playback progress of the current video
	State(ctx context.Context) (VideoState, error)

	// Restart seeks the current video to the start and resumes it
	Restart(ctx context.Context) error

	Close() error
}

// Renderer opens one surface per zone and draws the idle screen
type Renderer interface {
	OpenSurface(ctx context.Context, zone domain.Zone) (Surface, error)

	// ShowIdle replaces all content with a full-screen message, or the splash
	// when message is empty
	ShowIdle(ctx context.Context, message string) error
}

// VideoState is a snapshot of a video's progress
type VideoState struct {
	Position float64
	Duration float64
	Paused   bool
	Ended    bool
}

// EventSink receives playback events; Emit must not block
type EventSink interface {
	Emit(event domain.PlaybackEvent)
}

// Clock arms item timers
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
