package mqtt

import "fmt"

// DefaultTopicPrefix is the topic root used when no prefix is configured.
// All bus topics use the scheme: {prefix}/bus/{category}/{equipment_name}
const DefaultTopicPrefix = "poucon"

// Topics provides builders for the MQTT topics poucon uses to talk to
// the field-bus adapter and to announce events. Using these helpers
// keeps topic naming consistent across the codebase.
//
// The zero value uses DefaultTopicPrefix; set Prefix to honour
// cfg.MQTT.TopicPrefix:
//
//	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}
//	cmdTopic := topics.BusCommand("fan-exhaust-1")
//	// Returns: "poucon/bus/command/fan-exhaust-1"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// ─── Bus Topics ──────────────────────────────────────────────────────────────

// BusRequest returns the topic for status requests to a piece of equipment.
//
// Example: poucon/bus/request/fan-exhaust-1
func (t Topics) BusRequest(name string) string {
	return fmt.Sprintf("%s/bus/request/%s", t.prefix(), name)
}

// BusResponse returns the topic the adapter answers status requests on.
// Responses carry the request id in the payload for correlation.
//
// Example: poucon/bus/response/fan-exhaust-1
func (t Topics) BusResponse(name string) string {
	return fmt.Sprintf("%s/bus/response/%s", t.prefix(), name)
}

// BusCommand returns the topic for on/off commands to equipment.
//
// Example: poucon/bus/command/siren-house-3
func (t Topics) BusCommand(name string) string {
	return fmt.Sprintf("%s/bus/command/%s", t.prefix(), name)
}

// BusState returns the topic for spontaneous state reports from equipment.
//
// Example: poucon/bus/state/egg-belt-main
func (t Topics) BusState(name string) string {
	return fmt.Sprintf("%s/bus/state/%s", t.prefix(), name)
}

// BusAdapterStatus returns the topic the field-bus adapter reports its
// own liveness on (retained, with an LWT counterpart).
//
// Example: poucon/bus/adapter/status
func (t Topics) BusAdapterStatus() string {
	return fmt.Sprintf("%s/bus/adapter/status", t.prefix())
}

// ─── Core Topics ─────────────────────────────────────────────────────────────

// Event returns the topic for safety event announcements.
//
// Example: poucon/event/alarm_triggered
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.prefix(), eventType)
}

// AlarmStatus returns the topic the alarm engine publishes its status
// snapshot on (retained so panels see current state on connect).
//
// Example: poucon/alarm/status
func (t Topics) AlarmStatus() string {
	return fmt.Sprintf("%s/alarm/status", t.prefix())
}

// InterlockPermissions returns the topic the interlock engine publishes
// the permission map on after each recompute.
//
// Example: poucon/interlock/permissions
func (t Topics) InterlockPermissions() string {
	return fmt.Sprintf("%s/interlock/permissions", t.prefix())
}

// SystemStatus returns the controller's own online/offline topic.
// The LWT message is published here on unexpected disconnect.
//
// Example: poucon/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.prefix())
}

// ─── Wildcard Patterns for Subscriptions ─────────────────────────────────────

// AllBusResponses returns a pattern matching status responses for every
// piece of equipment.
//
// Pattern: poucon/bus/response/+
func (t Topics) AllBusResponses() string {
	return fmt.Sprintf("%s/bus/response/+", t.prefix())
}

// AllBusStates returns a pattern matching spontaneous state reports for
// every piece of equipment.
//
// Pattern: poucon/bus/state/+
func (t Topics) AllBusStates() string {
	return fmt.Sprintf("%s/bus/state/+", t.prefix())
}

// AllEvents returns a pattern matching every event announcement.
//
// Pattern: poucon/event/+
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", t.prefix())
}
