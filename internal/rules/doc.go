// Package rules provides the rule store for the poucon safety engines.
//
// Two rule families are managed here. Alarm rules pair a set of sirens
// with the conditions that should sound them. Interlock rules are
// directed dependency edges between equipment: when the upstream unit
// stops, the downstream unit must stop, and it may not start again
// while the upstream is stopped.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────┐
//	│              Registry (registry.go)                  │
//	│  Write-through cache + change notification fan-out   │
//	│  ┌──────────────┐    ┌────────────────┐             │
//	│  │    cache     │───▶│   Repository   │             │
//	│  │  (by rule id)│    │ (repository.go)│             │
//	│  └──────────────┘    └────────────────┘             │
//	│        │                                             │
//	│        ▼                                             │
//	│  subscribers: alarm engine, interlock engine         │
//	│  (buffered channels, non-blocking notify)            │
//	└─────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - AlarmRule: named siren set + conditions + mute policy
//   - AlarmCondition: one predicate over a sensor or equipment status
//   - InterlockRule: upstream -> downstream dependency edge
//   - Registry: thread-safe cache wrapping Repository, notifies engines
//
// # Thread Safety
//
// Registry is safe for concurrent use from multiple goroutines. The
// engines subscribe once at startup and receive change notifications on
// their own channels.
//
// # Usage
//
//	repo := rules.NewSQLiteRepository(db)
//	registry := rules.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	alarmChanges := registry.SubscribeAlarmChanges()
package rules
