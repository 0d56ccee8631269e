// Package influxdb provides InfluxDB connectivity for poucon.
//
// It wraps the official influxdb-client-go v2 library with poucon-specific
// patterns for connection management, telemetry writing, and health
// monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Alarm engine telemetry (tick durations, active rule counts, transitions)
//   - Interlock engine telemetry (tick durations, blocked counts, trips)
//   - Sensor readings forwarded from the field bus
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "poucon",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a sensor reading
//	client.WriteSensorReading("temp-zone-1", "temperature_c", 29.5)
//
// The *Client satisfies the alarm and interlock engines' Recorder
// interfaces, so it can be wired directly with SetRecorder.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
