package rules

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength  = 100
	maxSirens      = 10
	maxConditions  = 50
	minMuteMinutes = 1
	maxMuteMinutes = 120

	// defaultMuteMinutes is applied when a rule is created without an
	// explicit mute bound.
	defaultMuteMinutes = 30
)

// Pre-computed validation sets for O(1) operator lookups.
var (
	sensorOps    map[ConditionOp]struct{}
	equipmentOps map[ConditionOp]struct{}
)

func init() {
	sensorOps = make(map[ConditionOp]struct{}, len(SensorOps()))
	for _, op := range SensorOps() {
		sensorOps[op] = struct{}{}
	}
	equipmentOps = make(map[ConditionOp]struct{}, len(EquipmentOps()))
	for _, op := range EquipmentOps() {
		equipmentOps[op] = struct{}{}
	}
}

// ValidateAlarmRule performs comprehensive validation on an alarm rule.
// Returns an error describing the first validation failure found.
func ValidateAlarmRule(r *AlarmRule) error {
	if r == nil {
		return ErrInvalidRule
	}

	if err := ValidateName(r.Name); err != nil {
		return err
	}

	// Sirens are required: a rule that cannot sound anything is a
	// configuration mistake, not a silent no-op.
	if len(r.SirenNames) == 0 {
		return ErrNoSirens
	}
	if len(r.SirenNames) > maxSirens {
		return fmt.Errorf("%w: exceeds maximum of %d sirens", ErrInvalidRule, maxSirens)
	}
	for i, name := range r.SirenNames {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: siren_names[%d] is empty", ErrInvalidRule, i)
		}
	}

	if r.Logic != LogicAny && r.Logic != LogicAll {
		return fmt.Errorf("%w: logic must be %q or %q", ErrInvalidRule, LogicAny, LogicAll)
	}

	if r.MaxMuteMinutes < minMuteMinutes || r.MaxMuteMinutes > maxMuteMinutes {
		return fmt.Errorf("%w: max_mute_minutes must be %d-%d", ErrInvalidRule, minMuteMinutes, maxMuteMinutes)
	}

	if len(r.Conditions) > maxConditions {
		return fmt.Errorf("%w: exceeds maximum of %d conditions", ErrInvalidCondition, maxConditions)
	}
	for i, c := range r.Conditions {
		if err := ValidateCondition(c); err != nil {
			return fmt.Errorf("condition[%d]: %w", i, err)
		}
	}

	return nil
}

// ValidateName checks if a rule name is valid.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateCondition checks if an alarm condition is valid.
//
// Sensor conditions require a threshold and a numeric comparison
// operator. Equipment conditions must not carry a threshold.
func ValidateCondition(c AlarmCondition) error {
	if strings.TrimSpace(c.SourceName) == "" {
		return fmt.Errorf("%w: source_name is required", ErrInvalidCondition)
	}

	switch c.SourceType {
	case SourceSensor:
		if _, ok := sensorOps[c.Condition]; !ok {
			return fmt.Errorf("%w: %q is not a sensor operator", ErrInvalidCondition, c.Condition)
		}
		if c.Threshold == nil {
			return fmt.Errorf("%w: sensor condition requires a threshold", ErrInvalidCondition)
		}
	case SourceEquipment:
		if _, ok := equipmentOps[c.Condition]; !ok {
			return fmt.Errorf("%w: %q is not an equipment operator", ErrInvalidCondition, c.Condition)
		}
		if c.Threshold != nil {
			return fmt.Errorf("%w: equipment condition must not have a threshold", ErrInvalidCondition)
		}
	default:
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidCondition, c.SourceType)
	}

	return nil
}

// ValidateInterlockRule checks if an interlock rule is valid.
func ValidateInterlockRule(r *InterlockRule) error {
	if r == nil {
		return ErrInvalidRule
	}

	upstream := strings.TrimSpace(r.UpstreamName)
	downstream := strings.TrimSpace(r.DownstreamName)

	if upstream == "" {
		return fmt.Errorf("%w: upstream_name is required", ErrInvalidRule)
	}
	if downstream == "" {
		return fmt.Errorf("%w: downstream_name is required", ErrInvalidRule)
	}
	if upstream == downstream {
		return fmt.Errorf("%w: equipment cannot interlock with itself", ErrInvalidRule)
	}

	return nil
}

// GenerateID creates a new UUID for a rule or condition.
func GenerateID() string {
	return uuid.New().String()
}
