package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	Alarms        AlarmMetrics     `json:"alarms"`
	Interlocks    InterlockMetrics `json:"interlocks"`
	Equipment     EquipmentMetrics `json:"equipment"`
	Database      DatabaseMetrics  `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// AlarmMetrics contains alarm engine gauges.
type AlarmMetrics struct {
	RuleCount    int `json:"rule_count"`
	Active       int `json:"active"`
	Acknowledged int `json:"acknowledged"`
	Muted        int `json:"muted"`
}

// InterlockMetrics contains interlock engine gauges.
type InterlockMetrics struct {
	RuleCount int `json:"rule_count"`
	Blocked   int `json:"blocked"`
}

// EquipmentMetrics contains catalogue statistics.
type EquipmentMetrics struct {
	Total   int            `json:"total"`
	Enabled int            `json:"enabled"`
	ByType  map[string]int `json:"by_type"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.hub != nil {
		metrics.WebSocket = WSMetrics{ConnectedClients: s.hub.ClientCount()}
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}

	// Alarm engine gauges from the status snapshot.
	alarmStatus := s.alarms.Status()
	metrics.Alarms = AlarmMetrics{
		RuleCount:    alarmStatus.RuleCount,
		Active:       len(alarmStatus.ActiveRuleIDs),
		Acknowledged: len(alarmStatus.AckedRuleIDs),
		Muted:        len(alarmStatus.Muted),
	}

	// Interlock gauges from the permission cache.
	blocked := 0
	for _, decision := range s.interlocks.Permissions() {
		if !decision.Allowed {
			blocked++
		}
	}
	metrics.Interlocks = InterlockMetrics{
		RuleCount: len(s.interlocks.Rules()),
		Blocked:   blocked,
	}

	// Equipment catalogue stats.
	eqStats := s.equipment.GetStats()
	metrics.Equipment = EquipmentMetrics{
		Total:   eqStats.Total,
		Enabled: eqStats.Enabled,
		ByType:  make(map[string]int, len(eqStats.ByType)),
	}
	for t, n := range eqStats.ByType {
		metrics.Equipment.ByType[string(t)] = n
	}

	// Database stats (if available).
	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
