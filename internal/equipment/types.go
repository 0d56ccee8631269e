package equipment

import (
	"encoding/json"
	"time"
)

// Equipment represents a single controllable or readable unit in the
// poultry house: a fan, pump, siren, feeder, belt drive, or sensor.
//
// Equipment carries no live state. Status is always read from the
// field bus through the Gateway so the safety engines never act on a
// stale cached value.
type Equipment struct {
	// ID is the unique identifier (UUID).
	ID string `json:"id"`

	// Name is the unique human-assigned name, e.g. "fan-exhaust-1".
	// Names appear in rule conditions and MQTT topics, so they follow
	// the same slug format as topics.
	Name string `json:"name"`

	// Type classifies the equipment.
	Type EquipmentType `json:"type"`

	// BusAddress is the adapter-specific address on the field bus,
	// e.g. a relay board channel. Opaque to core.
	BusAddress string `json:"bus_address"`

	// Enabled indicates whether the equipment participates in
	// monitoring and commands.
	Enabled bool `json:"enabled"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a copy of the equipment.
// Used by the registry to prevent cache corruption through shared references.
func (e *Equipment) DeepCopy() *Equipment {
	if e == nil {
		return nil
	}
	cpy := *e
	return &cpy
}

// ─── Equipment Types ─────────────────────────────────────────────────────────

// EquipmentType classifies what a piece of equipment is.
type EquipmentType string

// Equipment type constants.
const (
	TypeFan      EquipmentType = "fan"
	TypePump     EquipmentType = "pump"
	TypeSiren    EquipmentType = "siren"
	TypeFeeder   EquipmentType = "feeder"
	TypeEggBelt  EquipmentType = "egg_belt"
	TypeDungBelt EquipmentType = "dung_belt"
	TypeSensor   EquipmentType = "sensor"
)

// AllEquipmentTypes returns all valid equipment types.
func AllEquipmentTypes() []EquipmentType {
	return []EquipmentType{
		TypeFan,
		TypePump,
		TypeSiren,
		TypeFeeder,
		TypeEggBelt,
		TypeDungBelt,
		TypeSensor,
	}
}

// ─── Status Payloads ─────────────────────────────────────────────────────────

// StatusMap is the raw status payload an adapter returns for one piece
// of equipment. Keys depend on the equipment type:
//
//	Fan/pump/belt: {"is_on": true, "is_running": true, "error": null}
//	Sensor:        {"temperature": 31.4, "humidity": 72.0}
//
// Values arrive through JSON, so numbers are float64 and absent keys
// are simply missing. The accessors below coerce the common cases.
type StatusMap map[string]any

// Float returns the numeric value for key.
// Handles float64 (the JSON default), integer variants, and json.Number.
func (s StatusMap) Float(key string) (float64, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Bool returns the boolean value for key.
func (s StatusMap) Bool(key string) (bool, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// ErrorValue reports whether the status carries a non-empty error field
// and returns its string form. Adapters set "error" to null or omit it
// entirely when the equipment is healthy.
func (s StatusMap) ErrorValue() (string, bool) {
	v, ok := s["error"]
	if !ok || v == nil {
		return "", false
	}
	if str, ok := v.(string); ok {
		if str == "" {
			return "", false
		}
		return str, true
	}
	// Non-string error values still count as an error being present.
	return "unknown error", true
}
