// Package control is the local operator channel of a running player: a
// websocket endpoint on the loopback interface carrying tagged request/response
// messages. The cache-manager protocol travels on it unchanged next to pairing,
// disconnect, status and kiosk exit.
package control

import (
	"time"

	"github.com/genricoloni/screend/internal/cache"
	"github.com/genricoloni/screend/internal/domain"
)

// Path is the websocket endpoint
const Path = "/control"

// Tags handled by the player itself. Cache tags are forwarded to the cache manager.
const (
	TagPair        cache.Tag = "pair"
	TagDisconnect  cache.Tag = "disconnect"
	TagStatus      cache.Tag = "status"
	TagKioskExit   cache.Tag = "kiosk-exit"
	TagKioskCancel cache.Tag = "kiosk-cancel"
)

// Request is one operator message. ID correlates the reply.
type Request struct {
	ID string `json:"id"`
	cache.Request

	// TagPair
	Code         string `json:"code,omitempty"`
	Kiosk        bool   `json:"kiosk,omitempty"`
	ExitPassword string `json:"exit_password,omitempty"`

	// TagKioskExit
	Password string `json:"password,omitempty"`
}

// Reply answers the Request with the same ID
type Reply struct {
	ID string `json:"id"`
	cache.Response

	Status *Status `json:"status,omitempty"`
}

// Status is the snapshot returned for TagStatus
type Status struct {
	Paired       bool               `json:"paired"`
	ScreenID     string             `json:"screen_id,omitempty"`
	Content      domain.Fingerprint `json:"content"`
	Sync         domain.SyncStatus  `json:"sync,omitempty"`
	Kiosk        string             `json:"kiosk"`
	LastActivity time.Time          `json:"last_activity"`
	Version      string             `json:"version"`
}
