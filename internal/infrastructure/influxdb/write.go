package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteSensorReading writes a single sensor measurement to InfluxDB.
//
// This is the primary method for recording field-bus sensor telemetry.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - sensorName: Unique sensor name (e.g., "temp-zone-1")
//   - metric: The metric name (e.g., "temperature_c", "water_flow_lpm")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteSensorReading("temp-zone-1", "temperature_c", 29.5)
//	client.WriteSensorReading("feed-scale-1", "weight_kg", 412.0)
func (c *Client) WriteSensorReading(sensorName string, metric string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"sensor_readings",
		map[string]string{
			"sensor": sensorName,
			"metric": metric,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordAlarmTick records one completed alarm evaluation pass.
//
// Called by the alarm engine after every tick. Tick duration growth over
// time signals a slow field bus or an oversized rule set.
func (c *Client) RecordAlarmTick(activeCount int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"alarm_engine",
		map[string]string{},
		map[string]interface{}{
			"active_rules": activeCount,
			"tick_ms":      float64(duration.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordAlarmTransition records a single rule state transition
// (triggered, cleared, acknowledged, muted, unmuted).
func (c *Client) RecordAlarmTransition(ruleID string, eventType string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"alarm_transitions",
		map[string]string{
			"rule_id": ruleID,
			"event":   eventType,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordInterlockTick records one completed interlock refresh pass.
func (c *Client) RecordInterlockTick(blockedCount int, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"interlock_engine",
		map[string]string{},
		map[string]interface{}{
			"blocked_equipment": blockedCount,
			"tick_ms":           float64(duration.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordInterlockTrip records one cascade stop: upstream went down and
// downstream was commanded off.
func (c *Client) RecordInterlockTrip(upstream string, downstream string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"interlock_trips",
		map[string]string{
			"upstream":   upstream,
			"downstream": downstream,
		},
		map[string]interface{}{
			"count": 1,
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
//	client.WritePoint("system_stats",
//	    map[string]string{"house": "house-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
