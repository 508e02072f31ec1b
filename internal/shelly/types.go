package shelly

// Generation identifies a device's API generation.
type Generation int

// Supported API generations.
const (
	// GenerationBlock covers gen1 devices speaking the HTTP/CoIoT API.
	GenerationBlock Generation = 1

	// GenerationRPC covers gen2+ devices speaking JSON-RPC over WebSocket.
	GenerationRPC Generation = 2
)

// =============================================================================
// Block (gen1) snapshot types
// =============================================================================

// BlockSnapshot is the typed result of a full block device fetch.
// It combines the /settings and /status endpoint payloads.
type BlockSnapshot struct {
	Settings BlockSettings
	Status   BlockStatus
}

// BlockSettings is the decoded /settings payload of a block device.
type BlockSettings struct {
	Device BlockDeviceInfo `json:"device"`
	Name   string          `json:"name"`
	FW     string          `json:"fw"`
	CoIoT  CoIoTSettings   `json:"coiot"`

	// SleepMode is present only on sleep-capable (battery) devices.
	SleepMode *SleepModeSettings `json:"sleep_mode,omitempty"`

	// Mode is present only on dual-mode devices (relay/roller, color/white).
	Mode *string `json:"mode,omitempty"`
}

// BlockDeviceInfo identifies a block device.
type BlockDeviceInfo struct {
	Hostname string `json:"hostname"`
	MAC      string `json:"mac"`
	Type     string `json:"type"`
}

// CoIoTSettings holds the device's CoIoT push configuration.
type CoIoTSettings struct {
	// UpdatePeriod is how often the device pushes CoIoT updates (seconds).
	UpdatePeriod int `json:"update_period"`
}

// SleepModeSettings holds a battery device's sleep configuration.
type SleepModeSettings struct {
	Period int    `json:"period"`
	Unit   string `json:"unit"` // "m" (minutes) or "h" (hours)
}

// PeriodSeconds converts the sleep period to seconds.
func (s SleepModeSettings) PeriodSeconds() int {
	if s.Unit == "h" {
		return s.Period * 3600
	}
	return s.Period * 60
}

// BlockStatus is the decoded /status payload of a block device.
type BlockStatus struct {
	Uptime    int        `json:"uptime"`
	HasUpdate bool       `json:"has_update"`
	Update    UpdateInfo `json:"update"`

	// Inputs carries per-channel button event state. Channel numbering in
	// the payload is 0-indexed; events surface 1-indexed channels.
	Inputs []BlockInput `json:"inputs"`

	// CfgChangedCnt increments when the device configuration changes.
	// Pointer distinguishes "absent" from zero on older firmware.
	CfgChangedCnt *int `json:"cfg_changed_cnt,omitempty"`

	// Lights is present on light devices; used for effect tracking.
	Lights []BlockLight `json:"lights,omitempty"`

	// ActReasons lists wakeup reasons on battery devices ("button",
	// "periodic", "poweron", ...).
	ActReasons []string `json:"act_reasons,omitempty"`
}

// BlockInput is one input channel's event state.
type BlockInput struct {
	Input int `json:"input"`

	// Event is the momentary press pattern: "S", "SS", "SSS", "L",
	// "SL", "LS", or empty when no press is pending.
	Event string `json:"event"`

	// EventCnt increments on every new press pattern.
	EventCnt int `json:"event_cnt"`
}

// BlockLight is one light channel's status.
type BlockLight struct {
	IsOn bool `json:"ison"`

	// Effect is present on effect-capable models.
	Effect *int `json:"effect,omitempty"`
}

// UpdateInfo describes available firmware for a block device.
type UpdateInfo struct {
	Status      string `json:"status"` // "idle", "pending", "updating", "unknown"
	HasUpdate   bool   `json:"has_update"`
	NewVersion  string `json:"new_version"`
	OldVersion  string `json:"old_version"`
	BetaVersion string `json:"beta_version"`
}

// =============================================================================
// RPC (gen2) types
// =============================================================================

// RPCDeviceInfo is the result of Shelly.GetDeviceInfo.
type RPCDeviceInfo struct {
	ID         string `json:"id"`
	MAC        string `json:"mac"`
	Model      string `json:"model"`
	Generation int    `json:"gen"`
	FWVersion  string `json:"fw_id"`
	Version    string `json:"ver"`
	App        string `json:"app"`
	Name       string `json:"name"`
}

// RPCStatus is the typed subset of Shelly.GetStatus the bridge consumes.
type RPCStatus struct {
	Sys RPCSysStatus `json:"sys"`
}

// RPCSysStatus is the "sys" component status.
type RPCSysStatus struct {
	Uptime           int                 `json:"uptime"`
	CfgRev           int                 `json:"cfg_rev"`
	AvailableUpdates RPCAvailableUpdates `json:"available_updates"`
}

// RPCAvailableUpdates lists firmware available per release channel.
// A nil channel means no update is available there.
type RPCAvailableUpdates struct {
	Stable *RPCFirmwareVersion `json:"stable,omitempty"`
	Beta   *RPCFirmwareVersion `json:"beta,omitempty"`
}

// RPCFirmwareVersion names one available firmware build.
type RPCFirmwareVersion struct {
	Version string `json:"version"`
}

// RPCEvent is one record in a NotifyEvent frame.
type RPCEvent struct {
	Component string  `json:"component"` // e.g. "input:0", "sys"
	ID        int     `json:"id"`
	Event     string  `json:"event"` // e.g. "single_push", "config_changed"
	TS        float64 `json:"ts"`
}

// RPCEventBatch is the payload of a NotifyEvent frame.
type RPCEventBatch struct {
	TS     float64    `json:"ts"`
	Events []RPCEvent `json:"events"`
}
