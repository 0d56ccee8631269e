// Package alarm polls safety rules against live equipment status and
// drives sirens through a small per-rule state machine.
//
// # Architecture
//
//	                ┌──────────────┐
//	 rule changes ──▶              │     GetStatus      ┌───────────┐
//	                │    Engine    │◀───────────────────▶ equipment │
//	   2s ticker ──▶  (poll loop)  │  TurnOn / TurnOff  │  Gateway  │
//	                │              │────────────────────▶           │
//	                └──────┬───────┘                    └───────────┘
//	                       │ LogEvent
//	                       ▼
//	                ┌──────────────┐
//	                │  event log   │
//	                └──────────────┘
//
// Each tick the engine evaluates every enabled rule: sensor conditions
// compare a numeric reading against a threshold, equipment conditions
// inspect on/off/error state. Verdicts combine per the rule's logic
// (any/all). A rule whose verdict flips drives its sirens:
//
//	idle ──triggered──▶ active (sirens on)
//	active ──acknowledge──▶ active, silenced
//	active ──mute──▶ active, silenced until the mute window lapses
//	active ──condition subsides──▶ idle (auto-clear, or after ack)
//
// Evaluation is fail-safe: a sensor that cannot be read never trips an
// alarm, while equipment that cannot be read is assumed off or faulted
// so off/error conditions do fire.
//
// # Key Types
//
//   - Engine: poll loop, transition state machine, operator actions
//   - Status: operator-facing snapshot of engine state
//   - StatusFunc: pluggable status lookup used by the evaluator
//
// # Usage
//
//	engine := alarm.NewEngine(alarm.Config{}, registry, gateway, eventLog, logger)
//	if err := engine.Start(ctx); err != nil { ... }
//	defer engine.Stop()
//
//	engine.Acknowledge(ctx, ruleID)
//	engine.Mute(ctx, ruleID)
//	snapshot := engine.Status()
//
// # Thread Safety
//
// One goroutine owns the poll loop. Operator actions are safe from any
// goroutine; rule state is guarded by a mutex that is never held across
// a rule store, bus, or event log call.
package alarm
