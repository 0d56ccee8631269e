package rules

import "time"

// RuleLogic controls how a rule's conditions combine into one verdict.
type RuleLogic string

const (
	// LogicAny triggers the rule when any enabled condition is true.
	LogicAny RuleLogic = "any"

	// LogicAll triggers the rule only when every enabled condition is true.
	LogicAll RuleLogic = "all"
)

// SourceType identifies what an alarm condition reads.
type SourceType string

const (
	SourceSensor    SourceType = "sensor"
	SourceEquipment SourceType = "equipment"
)

// ConditionOp is the comparison an alarm condition performs.
type ConditionOp string

const (
	// Sensor operators compare an extracted numeric reading to Threshold.
	CondAbove  ConditionOp = "above"
	CondBelow  ConditionOp = "below"
	CondEquals ConditionOp = "equals"

	// Equipment operators inspect the status map directly.
	CondOff        ConditionOp = "off"
	CondNotRunning ConditionOp = "not_running"
	CondError      ConditionOp = "error"
)

// SensorOps returns the operators valid for sensor conditions.
func SensorOps() []ConditionOp {
	return []ConditionOp{CondAbove, CondBelow, CondEquals}
}

// EquipmentOps returns the operators valid for equipment conditions.
func EquipmentOps() []ConditionOp {
	return []ConditionOp{CondOff, CondNotRunning, CondError}
}

// AlarmRule pairs an ordered set of sirens with the conditions that
// should sound them. Conditions are owned by the rule and are deleted
// with it.
type AlarmRule struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Sirens to drive, in command order. Required, non-empty.
	SirenNames []string `json:"siren_names"`

	// Logic combines condition verdicts: any (OR) or all (AND).
	Logic RuleLogic `json:"logic"`

	// AutoClear clears the alarm when the condition subsides.
	// Manual-clear rules wait for operator acknowledgement instead.
	AutoClear bool `json:"auto_clear"`

	Enabled bool `json:"enabled"`

	// MaxMuteMinutes bounds how long an operator mute lasts (1-120).
	MaxMuteMinutes int `json:"max_mute_minutes"`

	// Conditions evaluated each poll tick (ordered).
	Conditions []AlarmCondition `json:"conditions"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AlarmCondition is one predicate within an alarm rule, evaluated
// against a sensor reading or an equipment status map.
type AlarmCondition struct {
	ID     string `json:"id"`
	RuleID string `json:"rule_id"`

	// What to read
	SourceType SourceType `json:"source_type"`
	SourceName string     `json:"source_name"`

	// How to compare
	Condition ConditionOp `json:"condition"`

	// Threshold is required for sensor conditions and must be nil for
	// equipment conditions.
	Threshold *float64 `json:"threshold,omitempty"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
}

// InterlockRule is a directed dependency edge: when Upstream stops,
// Downstream must stop; Downstream may not start while Upstream is
// stopped. A piece of equipment may appear in many edges on either side.
type InterlockRule struct {
	ID             string `json:"id"`
	UpstreamName   string `json:"upstream_name"`
	DownstreamName string `json:"downstream_name"`
	Enabled        bool   `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates a complete independent copy of the AlarmRule.
// Slice and pointer fields are cloned so modifications to the copy do
// not affect the original. This is essential for cache isolation.
func (r *AlarmRule) DeepCopy() *AlarmRule {
	if r == nil {
		return nil
	}

	cpy := *r // Shallow copy of value fields

	if r.SirenNames != nil {
		cpy.SirenNames = make([]string, len(r.SirenNames))
		copy(cpy.SirenNames, r.SirenNames)
	}

	if r.Conditions != nil {
		cpy.Conditions = make([]AlarmCondition, len(r.Conditions))
		for i, c := range r.Conditions {
			cpy.Conditions[i] = c
			cpy.Conditions[i].Threshold = cloneFloatPtr(c.Threshold)
		}
	}

	return &cpy
}

// EnabledConditions returns only the rule's enabled conditions, in
// their stored order.
func (r *AlarmRule) EnabledConditions() []AlarmCondition {
	out := make([]AlarmCondition, 0, len(r.Conditions))
	for _, c := range r.Conditions {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// DeepCopy creates an independent copy of the InterlockRule.
// The struct has no reference fields, so a value copy suffices; the
// method exists so registry code treats both rule kinds uniformly.
func (r *InterlockRule) DeepCopy() *InterlockRule {
	if r == nil {
		return nil
	}
	cpy := *r
	return &cpy
}

// cloneFloatPtr creates an independent copy of a *float64.
func cloneFloatPtr(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
