package coordinator

import "github.com/nerrad567/gray-logic-shelly/internal/shelly"

// ClickEvent is a classified button press ready for publication.
type ClickEvent struct {
	// DeviceID is the bridge-local device identifier.
	DeviceID string `json:"device_id"`

	// Device is the device's human-readable name (or hostname when the
	// device carries no name).
	Device string `json:"device"`

	// Channel is the 1-indexed input channel the press arrived on.
	Channel int `json:"channel"`

	// ClickType is the canonical click type ("single", "double",
	// "long", ... for block devices; "single_push", "btn_down", ... for
	// RPC devices).
	ClickType string `json:"click_type"`

	// Generation is the device's API generation.
	Generation shelly.Generation `json:"generation"`
}

// EventSink receives classified events from coordinators.
// Implementations must be safe for concurrent use and must not block the
// calling tick for extended periods.
type EventSink interface {
	PublishClick(event ClickEvent)
}

// OTA release channels.
const (
	OTAChannelStable = "stable"
	OTAChannelBeta   = "beta"
)
