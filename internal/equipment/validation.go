package equipment

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength       = 100
	maxBusAddressLength = 200

	// Equipment names appear as MQTT topic segments
	// (poucon/bus/command/{name}), so they must stay topic-safe.
	namePattern = `^[a-z0-9]+(?:[-_][a-z0-9]+)*$`
)

var nameRegex = regexp.MustCompile(namePattern)

// validTypes is pre-computed for O(1) lookups.
var validTypes map[EquipmentType]struct{}

func init() {
	validTypes = make(map[EquipmentType]struct{}, len(AllEquipmentTypes()))
	for _, t := range AllEquipmentTypes() {
		validTypes[t] = struct{}{}
	}
}

// ValidateEquipment performs validation on a piece of equipment.
// Returns an error describing the first validation failure found.
func ValidateEquipment(e *Equipment) error {
	if e == nil {
		return ErrInvalidEquipment
	}

	if err := ValidateName(e.Name); err != nil {
		return err
	}

	if err := ValidateType(e.Type); err != nil {
		return err
	}

	if len(e.BusAddress) > maxBusAddressLength {
		return fmt.Errorf("%w: bus address exceeds %d characters", ErrInvalidEquipment, maxBusAddressLength)
	}

	return nil
}

// ValidateName checks that an equipment name is non-empty, within length
// limits, and topic-safe (lowercase alphanumerics separated by single
// hyphens or underscores).
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q is not topic-safe", ErrInvalidName, name)
	}
	return nil
}

// ValidateType checks that an equipment type is recognised.
func ValidateType(t EquipmentType) error {
	if _, ok := validTypes[t]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	return nil
}

// GenerateID generates a new UUID for equipment.
func GenerateID() string {
	return uuid.New().String()
}
