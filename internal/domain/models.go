package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/mo"
)

// ContentType tells which half of a ContentBundle is populated
type ContentType string

const (
	// ContentPlaylist bundles carry a single playlist rendered full screen
	ContentPlaylist ContentType = "playlist"
	// ContentLayout bundles carry a multi-zone layout
	ContentLayout ContentType = "layout"
)

// MediaType is the kind of a single playback item
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaApp     MediaType = "app"
	MediaWebPage MediaType = "web_page"
)

// Valid reports whether m is one of the known media types
func (m MediaType) Valid() bool {
	switch m {
	case MediaImage, MediaVideo, MediaApp, MediaWebPage:
		return true
	}
	return false
}

// ZoneContentType tells whether a zone plays a playlist or a single media item
type ZoneContentType string

const (
	ZonePlaylist ZoneContentType = "playlist"
	ZoneMedia    ZoneContentType = "media"
)

// MainZoneID is the id of the implicit full-screen zone used in playlist mode
const MainZoneID = "main"

// DefaultItemDuration applies when neither the item nor the playlist sets one
const DefaultItemDuration = 10 * time.Second

// ScreenIdentity is the durable identity obtained by pairing
type ScreenIdentity struct {
	ScreenID string `json:"screen_id"`
}

// PlaybackItem is a single piece of content inside a playlist or zone
type PlaybackItem struct {
	ID        string
	MediaType MediaType
	URL       string
	Name      string
	// Duration is absent when the item relies on the playlist default
	Duration mo.Option[time.Duration]
}

type playbackItemJSON struct {
	ID              string    `json:"id"`
	MediaType       MediaType `json:"media_type"`
	URL             string    `json:"url"`
	Name            string    `json:"name"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
}

// MarshalJSON encodes the item in the wire format used by the RPC service and the cache
func (p PlaybackItem) MarshalJSON() ([]byte, error) {
	wire := playbackItemJSON{ID: p.ID, MediaType: p.MediaType, URL: p.URL, Name: p.Name}
	if d, ok := p.Duration.Get(); ok {
		secs := d.Seconds()
		wire.DurationSeconds = &secs
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the wire format
func (p *PlaybackItem) UnmarshalJSON(data []byte) error {
	var wire playbackItemJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*p = PlaybackItem{ID: wire.ID, MediaType: wire.MediaType, URL: wire.URL, Name: wire.Name}
	if wire.DurationSeconds != nil && *wire.DurationSeconds > 0 {
		p.Duration = mo.Some(time.Duration(*wire.DurationSeconds * float64(time.Second)))
	}
	return nil
}

// Playlist is an ordered list of items
type Playlist struct {
	ID                     string         `json:"id"`
	Items                  []PlaybackItem `json:"items"`
	Shuffle                bool           `json:"shuffle"`
	DefaultDurationSeconds int            `json:"default_duration_seconds,omitempty"`
}

// DefaultDuration returns the fallback display time for items without their own duration
func (p *Playlist) DefaultDuration() time.Duration {
	if p == nil || p.DefaultDurationSeconds <= 0 {
		return DefaultItemDuration
	}
	return time.Duration(p.DefaultDurationSeconds) * time.Second
}

// ZoneContent is what a single zone renders
type ZoneContent struct {
	Type     ZoneContentType `json:"type"`
	Playlist *Playlist       `json:"playlist,omitempty"`
	Media    *PlaybackItem   `json:"media,omitempty"`
}

// Zone is a rectangular region of a layout, positioned in percent of the display
type Zone struct {
	ID            string      `json:"id"`
	XPercent      float64     `json:"x_percent"`
	YPercent      float64     `json:"y_percent"`
	WidthPercent  float64     `json:"width_percent"`
	HeightPercent float64     `json:"height_percent"`
	ZIndex        int         `json:"z_index"`
	Content       ZoneContent `json:"content"`
}

// Items returns the items the zone cycles through
func (z Zone) Items() []PlaybackItem {
	switch z.Content.Type {
	case ZonePlaylist:
		if z.Content.Playlist != nil {
			return z.Content.Playlist.Items
		}
	case ZoneMedia:
		if z.Content.Media != nil {
			return []PlaybackItem{*z.Content.Media}
		}
	}
	return nil
}

// Layout groups independently rendered zones
type Layout struct {
	ID    string `json:"id"`
	Zones []Zone `json:"zones"`
}

// Campaign optionally attributes a bundle to a campaign
type Campaign struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ScreenMeta carries tenancy information used for analytics
type ScreenMeta struct {
	TenantID   string `json:"tenant_id"`
	LocationID string `json:"location_id"`
	Timezone   string `json:"timezone"`
}

// ContentBundle is the resolved content assignment for a screen.
// It is replaced wholesale on every resolution and never mutated.
type ContentBundle struct {
	Type       ContentType `json:"type"`
	Source     string      `json:"source"`
	Playlist   *Playlist   `json:"playlist,omitempty"`
	Layout     *Layout     `json:"layout,omitempty"`
	Campaign   *Campaign   `json:"campaign,omitempty"`
	ScreenMeta ScreenMeta  `json:"screen"`
}

// Validate checks that exactly one of playlist/layout is populated and matches Type
func (b *ContentBundle) Validate() error {
	if b == nil {
		return fmt.Errorf("bundle is nil")
	}
	switch b.Type {
	case ContentPlaylist:
		if b.Playlist == nil || b.Layout != nil {
			return fmt.Errorf("playlist bundle must carry only a playlist")
		}
	case ContentLayout:
		if b.Layout == nil || b.Playlist != nil {
			return fmt.Errorf("layout bundle must carry only a layout")
		}
	default:
		return fmt.Errorf("unknown bundle type %q", b.Type)
	}
	return nil
}

// Fingerprint derives the change-detection key of the bundle
func (b *ContentBundle) Fingerprint() Fingerprint {
	if b == nil {
		return Fingerprint{}
	}
	fp := Fingerprint{Type: b.Type, Source: b.Source}
	if b.Playlist != nil {
		fp.PlaylistID = b.Playlist.ID
	}
	if b.Layout != nil {
		fp.LayoutID = b.Layout.ID
	}
	if b.Campaign != nil {
		fp.CampaignID = b.Campaign.ID
	}
	return fp
}

// Zones unifies both bundle types as "one or more zones".
// Playlist mode is a single full-screen zone with id MainZoneID.
func (b *ContentBundle) Zones() []Zone {
	if b == nil {
		return nil
	}
	if b.Type == ContentPlaylist && b.Playlist != nil {
		return []Zone{{
			ID:            MainZoneID,
			WidthPercent:  100,
			HeightPercent: 100,
			Content:       ZoneContent{Type: ZonePlaylist, Playlist: b.Playlist},
		}}
	}
	if b.Layout != nil {
		return b.Layout.Zones
	}
	return nil
}

// Empty reports whether the bundle has nothing to play
func (b *ContentBundle) Empty() bool {
	for _, z := range b.Zones() {
		if len(z.Items()) > 0 {
			return false
		}
	}
	return true
}

// Fingerprint identifies a bundle for change detection. Two bundles are unchanged
// iff their fingerprints compare equal with ==; no serialization is involved.
type Fingerprint struct {
	Type       ContentType `json:"type"`
	Source     string      `json:"source"`
	PlaylistID string      `json:"playlist_id,omitempty"`
	LayoutID   string      `json:"layout_id,omitempty"`
	CampaignID string      `json:"campaign_id,omitempty"`
}

// IsZero reports whether no bundle has been fingerprinted yet
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// CommandType is the kind of a remote operational command
type CommandType string

const (
	CommandReboot     CommandType = "reboot"
	CommandReload     CommandType = "reload"
	CommandClearCache CommandType = "clear_cache"
	CommandReset      CommandType = "reset"
)

// Command is a pending remote command delivered by poll
type Command struct {
	ID      string          `json:"command_id"`
	Type    CommandType     `json:"command_type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandResult is reported back exactly once per executed command
type CommandResult struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

// SystemStats is optional host telemetry attached to a DeviceStatus
type SystemStats struct {
	UptimeSeconds     uint64  `json:"uptime_seconds"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	CPUUsedPercent    float64 `json:"cpu_used_percent"`
}

// DeviceStatus is recomputed and sent on every heartbeat tick
type DeviceStatus struct {
	ScreenID           string       `json:"screen_id"`
	PlayerVersion      string       `json:"player_version"`
	ContentFingerprint Fingerprint  `json:"content_fingerprint"`
	Timestamp          time.Time    `json:"timestamp"`
	System             *SystemStats `json:"system,omitempty"`
}

// PairingResult is returned by a successful one-time-code exchange
type PairingResult struct {
	ScreenID string
	Bundle   *ContentBundle
}

// PlaybackEventKind distinguishes item start from item end
type PlaybackEventKind string

const (
	PlaybackStart PlaybackEventKind = "start"
	PlaybackEnd   PlaybackEventKind = "end"
)

// PlaybackEvent is emitted on every item transition for external analytics
type PlaybackEvent struct {
	ID         string            `json:"id"`
	Kind       PlaybackEventKind `json:"kind"`
	ScreenID   string            `json:"screen_id"`
	TenantID   string            `json:"tenant_id"`
	LocationID string            `json:"location_id"`
	PlaylistID string            `json:"playlist_id,omitempty"`
	LayoutID   string            `json:"layout_id,omitempty"`
	ZoneID     string            `json:"zone_id"`
	MediaID    string            `json:"media_id,omitempty"`
	AppID      string            `json:"app_id,omitempty"`
	CampaignID string            `json:"campaign_id,omitempty"`
	ItemType   MediaType         `json:"item_type"`
	ItemName   string            `json:"item_name"`
	At         time.Time         `json:"at"`
}

// SyncStatus is the connectivity state of the sync loop
type SyncStatus string

const (
	StatusConnected    SyncStatus = "connected"
	StatusReconnecting SyncStatus = "reconnecting"
	StatusOffline      SyncStatus = "offline"
)

// ScreenResolution holds the display dimensions
type ScreenResolution struct {
	Width  int
	Height int
}
