package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MQTT message types for communication between the poucon core and the
// field-bus adapter that drives the relay and sensor hardware.

// RequestMessage is sent from core to the adapter for request/response
// operations, primarily equipment status reads.
// Topic: poucon/bus/request/{equipment_name}
type RequestMessage struct {
	// RequestID uniquely identifies this request for correlation.
	RequestID string `json:"request_id"`

	// Timestamp is when the request was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Equipment is the equipment name the request targets.
	Equipment string `json:"equipment"`

	// Action is the requested operation.
	// Values: "read_status"
	Action string `json:"action"`
}

// Request actions understood by the field-bus adapter.
const (
	ActionReadStatus = "read_status"
)

// ResponseMessage is sent from the adapter to core in response to a request.
// Topic: poucon/bus/response/{equipment_name}
type ResponseMessage struct {
	// RequestID is the ID from the original request.
	RequestID string `json:"request_id"`

	// Timestamp is when the response was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Success indicates whether the request succeeded.
	Success bool `json:"success"`

	// Status contains the equipment status payload (if successful).
	// Examples:
	//   Fan:    {"is_on": true, "is_running": true}
	//   Sensor: {"temperature": 31.4, "humidity": 72.0}
	Status map[string]any `json:"status,omitempty"`

	// Error contains error details (if failed).
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError contains error details for failed requests.
type ResponseError struct {
	// Code is the error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for failed bus operations.
const (
	ErrCodeUnreachable    = "EQUIPMENT_UNREACHABLE"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	ErrCodeBusError       = "BUS_ERROR"
)

// CommandMessage is sent from core to the adapter to switch equipment.
// Topic: poucon/bus/command/{equipment_name}
type CommandMessage struct {
	// ID uniquely identifies this command.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Equipment is the equipment name the command targets.
	Equipment string `json:"equipment"`

	// Command is the command name ("turn_on" or "turn_off").
	Command string `json:"command"`

	// Source indicates which subsystem issued the command,
	// e.g. "alarm:rule-high-temp", "interlock:egg-belt-main", "api".
	Source string `json:"source"`
}

// Command names accepted by the field-bus adapter.
const (
	CommandTurnOn  = "turn_on"
	CommandTurnOff = "turn_off"
)

// StateMessage is sent from the adapter to core when equipment state
// changes spontaneously.
// Topic: poucon/bus/state/{equipment_name}
// QoS: 1, Retained: Yes
type StateMessage struct {
	// Equipment is the equipment name.
	Equipment string `json:"equipment"`

	// Timestamp is when the state was observed (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// State contains the current equipment state.
	State map[string]any `json:"state"`
}

// EventMessage announces a safety event to connected panels and loggers.
// Topic: poucon/event/{event_type}
type EventMessage struct {
	// EventType is the event kind (e.g. "alarm_triggered", "alarm_cleared").
	EventType string `json:"event_type"`

	// Timestamp is when the event occurred (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Equipment is the equipment or rule the event concerns.
	Equipment string `json:"equipment,omitempty"`

	// Detail carries event-specific fields.
	Detail map[string]any `json:"detail,omitempty"`
}

// ─── Constructors ────────────────────────────────────────────────────────────

// NewRequestMessage creates a status request with a fresh request id.
func NewRequestMessage(equipment, action string) RequestMessage {
	return RequestMessage{
		RequestID: "req-" + uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Equipment: equipment,
		Action:    action,
	}
}

// NewCommandMessage creates a switch command for a piece of equipment.
func NewCommandMessage(equipment, command, source string) CommandMessage {
	return CommandMessage{
		ID:        "cmd-" + uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Equipment: equipment,
		Command:   command,
		Source:    source,
	}
}

// NewStateMessage creates a state report for a piece of equipment.
func NewStateMessage(equipment string, state map[string]any) StateMessage {
	return StateMessage{
		Equipment: equipment,
		Timestamp: time.Now().UTC(),
		State:     state,
	}
}

// ─── JSON Marshalling Helpers ────────────────────────────────────────────────

// MarshalJSON marshals a CommandMessage with a second-precision timestamp.
func (m *CommandMessage) MarshalJSON() ([]byte, error) {
	type Alias CommandMessage
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(m),
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339),
	})
}

// UnmarshalJSON unmarshals a CommandMessage from JSON.
func (m *CommandMessage) UnmarshalJSON(data []byte) error {
	type Alias CommandMessage
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return fmt.Errorf("unmarshal command message: %w", err)
	}
	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("parse timestamp: %w", err)
		}
		m.Timestamp = t
	}
	return nil
}
