package shelly

// blockClickTypes maps block firmware press patterns to canonical click
// types. Patterns outside this table are unrecognised and must not emit
// events.
var blockClickTypes = map[string]string{
	"S":   "single",
	"SS":  "double",
	"SSS": "triple",
	"L":   "long",
	"SL":  "single_long",
	"LS":  "long_single",
}

// BlockClickType resolves a block press pattern to its canonical click type.
//
// Returns:
//   - string: The canonical click type ("single", "double", ...)
//   - bool: false if the pattern is unrecognised
func BlockClickType(event string) (string, bool) {
	t, ok := blockClickTypes[event]
	return t, ok
}

// rpcInputEvents is the set of RPC input events that surface as clicks.
// RPC event names are already canonical and pass through unchanged.
var rpcInputEvents = map[string]struct{}{
	"btn_down":    {},
	"btn_up":      {},
	"single_push": {},
	"double_push": {},
	"triple_push": {},
	"long_push":   {},
}

// IsRPCInputEvent reports whether an RPC event name is a click-producing
// input event.
func IsRPCInputEvent(event string) bool {
	_, ok := rpcInputEvents[event]
	return ok
}

// RPCEventConfigChanged is the RPC event name signalling a device
// configuration change.
const RPCEventConfigChanged = "config_changed"

// buttonModels lists battery button devices whose wake press must itself
// produce a click event.
var buttonModels = map[string]struct{}{
	"SHBTN-1": {},
	"SHBTN-2": {},
}

// IsButtonModel reports whether a model is a battery button device.
func IsButtonModel(model string) bool {
	_, ok := buttonModels[model]
	return ok
}

// dualModeModels lists devices that can switch operating mode at runtime
// (color/white). A mode switch renumbers channels, invalidating tracked
// counters.
var dualModeModels = map[string]struct{}{
	"SHCB-1":  {},
	"SHRGBW2": {},
}

// IsDualModeModel reports whether a model supports runtime mode switching.
func IsDualModeModel(model string) bool {
	_, ok := dualModeModels[model]
	return ok
}

// effectModels lists devices supporting light effects. An effect change
// bumps the config counter without a real configuration change.
var effectModels = map[string]struct{}{
	"SHBLB-1": {},
	"SHCB-1":  {},
	"SHRGBW2": {},
}

// SupportsLightEffects reports whether a model supports light effects.
func SupportsLightEffects(model string) bool {
	_, ok := effectModels[model]
	return ok
}

// WakeupReasonButton is the act_reason a battery device reports when woken
// by a physical button press.
const WakeupReasonButton = "button"
