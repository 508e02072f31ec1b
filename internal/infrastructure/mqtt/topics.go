package mqtt

import "fmt"

// Topic prefixes per Gray Logic MQTT specification.
//
// All bridge topics use the flat scheme: graylogic/{category}/{protocol}/{id}
// so Core and runtime subscribers can address every bridge the same way.
const (
	// TopicPrefix is the base for all Gray Logic topics.
	TopicPrefix = "graylogic"

	// Protocol is this bridge's protocol identifier in the topic hierarchy.
	Protocol = "shelly"
)

// Topics provides builders for the Shelly bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.DeviceEvent("shelly-hallway-button")
//	// Returns: "graylogic/event/shelly/shelly-hallway-button"
type Topics struct{}

// DeviceState returns the topic for device state snapshots.
//
// Example: graylogic/state/shelly/shelly-hallway-button
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceID)
}

// DeviceEvent returns the topic for device events (button clicks, reloads).
//
// Example: graylogic/event/shelly/shelly-hallway-button
func (Topics) DeviceEvent(deviceID string) string {
	return fmt.Sprintf("%s/event/%s/%s", TopicPrefix, Protocol, deviceID)
}

// DeviceCommand returns the topic Core uses to send commands to this bridge.
//
// Example: graylogic/command/shelly/shelly-hallway-button
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, deviceID)
}

// DeviceAck returns the topic for command acknowledgements.
//
// Example: graylogic/ack/shelly/shelly-hallway-button
func (Topics) DeviceAck(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, deviceID)
}

// Health returns the topic for bridge health status.
// The connection LWT and the periodic health report both publish here.
//
// Example: graylogic/health/shelly
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// AllDeviceCommands returns a pattern matching commands for every device
// managed by this bridge.
//
// Pattern: graylogic/command/shelly/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefix, Protocol)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: graylogic/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/system/shutdown", TopicPrefix)
}
