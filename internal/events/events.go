package events

import (
	"context"
	"time"
)

// Event is a single audit trail entry. The safety engines write one for
// every equipment transition they cause: sirens switched by the alarm
// engine, dependents stopped by the interlock engine, and operator
// actions taken through the API.
type Event struct {
	ID            string         `json:"id"`
	EquipmentName string         `json:"equipment_name"`
	EventType     string         `json:"event_type"`
	FromValue     string         `json:"from_value,omitempty"`
	ToValue       string         `json:"to_value,omitempty"`
	Mode          string         `json:"mode,omitempty"`
	TriggeredBy   string         `json:"triggered_by,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Event types written by the engines.
const (
	EventAlarmTriggered    = "alarm_triggered"
	EventAlarmCleared      = "alarm_cleared"
	EventAlarmAcknowledged = "alarm_acknowledged"
	EventAlarmMuted        = "alarm_muted"
	EventAlarmUnmuted      = "alarm_unmuted"
	EventInterlockTrip     = "interlock_trip"
)

// Modes distinguish engine-driven transitions from operator actions.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

// Logger is the audit sink the engines write events to.
// Implemented by *SQLiteRepository.
type Logger interface {
	LogEvent(ctx context.Context, e Event) error
}
