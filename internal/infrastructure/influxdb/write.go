package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePollMetric records the outcome of one coordinator poll cycle.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceID: Bridge-local device identifier
//   - kind: Coordinator kind (e.g., "block", "rpc", "block_rest", "rpc_poll")
//   - success: Whether the poll succeeded
//   - duration: How long the fetch took
func (c *Client) WritePollMetric(deviceID string, kind string, success bool, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"shelly_poll",
		map[string]string{
			"device_id": deviceID,
			"kind":      kind,
		},
		map[string]interface{}{
			"success":     success,
			"duration_ms": float64(duration.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteClickMetric records a classified button click event.
//
// Parameters:
//   - deviceID: Bridge-local device identifier
//   - channel: 1-indexed input channel
//   - clickType: Classified click type (e.g., "single", "double", "long")
func (c *Client) WriteClickMetric(deviceID string, channel int, clickType string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"shelly_click",
		map[string]string{
			"device_id":  deviceID,
			"click_type": clickType,
		},
		map[string]interface{}{
			"channel": channel,
			"count":   1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("bridge_stats",
//	    map[string]string{"bridge": "shelly-bridge-01"},
//	    map[string]interface{}{"devices_online": 7})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data from a
// sleeping device that just woke up).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
