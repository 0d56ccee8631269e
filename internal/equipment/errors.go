package equipment

import "errors"

// Domain errors for the equipment package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, equipment.ErrUnreachable) {
//	    // adapter did not answer in time
//	}
var (
	// ErrEquipmentNotFound is returned when an equipment ID or name does not exist.
	ErrEquipmentNotFound = errors.New("equipment: not found")

	// ErrEquipmentExists is returned when creating equipment whose ID or name
	// already exists.
	ErrEquipmentExists = errors.New("equipment: already exists")

	// ErrInvalidEquipment is returned when equipment validation fails.
	ErrInvalidEquipment = errors.New("equipment: invalid")

	// ErrInvalidName is returned when an equipment name is empty, too long,
	// or not topic-safe.
	ErrInvalidName = errors.New("equipment: invalid name")

	// ErrInvalidType is returned when an equipment type is not recognised.
	ErrInvalidType = errors.New("equipment: invalid type")

	// ErrUnreachable is returned when a status request times out or the
	// adapter answers with an error. Callers treat the equipment as
	// unreachable for that read and apply their own fail-safe rules.
	ErrUnreachable = errors.New("equipment: unreachable")

	// ErrCommandFailed is returned when a switch command cannot be handed
	// to the bus.
	ErrCommandFailed = errors.New("equipment: command failed")
)
