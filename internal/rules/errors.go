package rules

import "errors"

// Domain errors for the rules package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, rules.ErrRuleNotFound) {
//	    // handle not found case
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist.
	ErrRuleNotFound = errors.New("rules: not found")

	// ErrRuleExists is returned when creating a rule with an ID or
	// unique key that already exists.
	ErrRuleExists = errors.New("rules: already exists")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("rules: invalid")

	// ErrInvalidCondition is returned when an alarm condition is invalid.
	ErrInvalidCondition = errors.New("rules: invalid condition")

	// ErrInvalidName is returned when a rule name is empty or too long.
	ErrInvalidName = errors.New("rules: invalid name")

	// ErrNoSirens is returned when an alarm rule names no sirens.
	ErrNoSirens = errors.New("rules: no sirens")
)
