package alarm

import "time"

// ruleState is the runtime the engine keeps per rule. It lives only in
// memory: a restart re-evaluates the world from scratch rather than
// trusting state recorded before the crash.
//
// Invariants: acknowledged implies active; a set mute deadline implies
// the rule was active when the mute was taken.
type ruleState struct {
	active       bool
	acknowledged bool
	mutedUntil   *time.Time
}

// muted reports whether a mute is in force at the given instant.
func (s *ruleState) muted(now time.Time) bool {
	return s.mutedUntil != nil && now.Before(*s.mutedUntil)
}

// clear resets the rule to idle.
func (s *ruleState) clear() {
	s.active = false
	s.acknowledged = false
	s.mutedUntil = nil
}

// MuteStatus describes one active mute in a Status snapshot.
type MuteStatus struct {
	// Expiry is when the mute lapses and sirens re-arm.
	Expiry time.Time `json:"expiry"`

	// RemainingSeconds until expiry, floored at zero.
	RemainingSeconds int `json:"remaining_seconds"`
}

// Status is a point-in-time snapshot of the engine for operators.
type Status struct {
	PollIntervalMS int                   `json:"poll_interval_ms"`
	RuleCount      int                   `json:"rule_count"`
	ActiveRuleIDs  []string              `json:"active_rule_ids"`
	AckedRuleIDs   []string              `json:"acknowledged_rule_ids"`
	Muted          map[string]MuteStatus `json:"muted"`
}
