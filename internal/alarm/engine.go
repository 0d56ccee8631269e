package alarm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tankwanghow/pou-con-sub006/internal/equipment"
	"github.com/tankwanghow/pou-con-sub006/internal/events"
	"github.com/tankwanghow/pou-con-sub006/internal/rules"
)

// Engine defaults.
const (
	DefaultPollInterval  = 2000 * time.Millisecond
	DefaultStatusTimeout = 500 * time.Millisecond
)

// Sentinel errors for the alarm engine.
var (
	// ErrRuleNotFound is returned by operator actions naming an unknown rule.
	ErrRuleNotFound = errors.New("alarm: rule not found")

	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("alarm: engine already running")
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// RuleSource is the interface the engine needs from the rule store.
type RuleSource interface {
	// ListEnabledAlarmRules returns enabled rules carrying enabled
	// conditions only.
	ListEnabledAlarmRules(ctx context.Context) ([]rules.AlarmRule, error)

	// SubscribeAlarmChanges returns a channel signalling rule changes.
	SubscribeAlarmChanges() <-chan rules.Change
}

// Commander is the equipment command surface the engine drives.
// Implemented by *equipment.Gateway.
type Commander interface {
	// GetStatus reads live equipment status with a bounded timeout.
	GetStatus(ctx context.Context, name string, timeout time.Duration) (equipment.StatusMap, error)

	// TurnOn switches equipment on. Fire-and-forget.
	TurnOn(ctx context.Context, name, source string) error

	// TurnOff switches equipment off. Fire-and-forget.
	TurnOff(ctx context.Context, name, source string) error
}

// EventLogger records audit events for siren transitions.
type EventLogger interface {
	LogEvent(ctx context.Context, e events.Event) error
}

// Hub is the interface for broadcasting live events to operator UIs.
type Hub interface {
	// Broadcast sends an event to all clients subscribed to the channel.
	Broadcast(channel string, payload any)
}

// Recorder receives engine telemetry samples.
type Recorder interface {
	// RecordAlarmTick records one completed evaluation pass.
	RecordAlarmTick(activeCount int, duration time.Duration)

	// RecordAlarmTransition records one rule transition.
	RecordAlarmTransition(ruleID, eventType string)
}

// Config holds the engine's timing knobs.
type Config struct {
	// PollInterval is the evaluation period. Default 2000 ms.
	PollInterval time.Duration

	// StatusTimeout bounds each equipment status read. Default 500 ms.
	StatusTimeout time.Duration
}

// Engine polls alarm rules against live equipment status and drives
// sirens through the configured transitions.
//
// One goroutine owns the poll loop; rule evaluation within a tick is
// strictly sequential. Operator actions (Acknowledge, Mute, Unmute,
// ReloadRules, Status) may be called from any goroutine: state changes
// are applied under the engine mutex, while bus and event-log calls
// happen after it is released so the engine never holds a lock across
// external IO.
type Engine struct {
	store    RuleSource
	commands Commander
	audit    EventLogger
	hub      Hub
	recorder Recorder
	logger   Logger

	pollInterval  time.Duration
	statusTimeout time.Duration

	mu      sync.Mutex
	ruleSet []rules.AlarmRule
	state   map[string]*ruleState
	running bool

	changes <-chan rules.Change
	done    chan struct{}
	wg      sync.WaitGroup

	// now is replaceable in tests.
	now func() time.Time
}

// NewEngine creates an alarm engine.
//
// Parameters:
//   - cfg: timing knobs; zero values take the package defaults
//   - store: rule store (enabled rules + change notifications)
//   - commands: equipment command surface
//   - audit: audit event sink
//   - logger: logger instance (nil for no logging)
func NewEngine(cfg Config, store RuleSource, commands Commander, audit EventLogger, logger Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = DefaultStatusTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		store:         store,
		commands:      commands,
		audit:         audit,
		logger:        logger,
		pollInterval:  cfg.PollInterval,
		statusTimeout: cfg.StatusTimeout,
		state:         make(map[string]*ruleState),
		done:          make(chan struct{}),
		now:           time.Now,
	}
}

// SetHub wires an optional broadcast hub for live operator updates.
func (e *Engine) SetHub(hub Hub) {
	e.hub = hub
}

// SetRecorder wires an optional telemetry recorder.
func (e *Engine) SetRecorder(recorder Recorder) {
	e.recorder = recorder
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

// Start loads the rule set, subscribes to rule changes, and launches
// the poll loop. A failed initial load starts the engine with an empty
// rule set; the store is retried on every change notification and
// explicit reload.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	if err := e.ReloadRules(ctx); err != nil {
		e.logger.Warn("initial rule load failed, starting with empty rule set", "error", err)
	}

	e.changes = e.store.SubscribeAlarmChanges()

	e.wg.Add(1)
	go e.run(ctx)

	e.logger.Info("alarm engine started",
		"poll_interval", e.pollInterval,
		"status_timeout", e.statusTimeout,
	)
	return nil
}

// Stop halts the poll loop and waits for the in-flight tick to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.done)
	e.wg.Wait()
	e.logger.Info("alarm engine stopped")
}

// run is the poll loop. Ticks and rule-change notifications are
// multiplexed over one select so cross-tick ordering is total.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.tick(ctx)
		case change, ok := <-e.changes:
			if !ok {
				e.changes = nil
				continue
			}
			e.logger.Debug("alarm rule change", "kind", change.Kind, "rule_id", change.RuleID)
			if err := e.ReloadRules(ctx); err != nil {
				e.logger.Error("rule reload after change failed", "error", err)
			}
		case <-e.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ─── Tick ────────────────────────────────────────────────────────────────────

// conditionResult captures one evaluated condition for event metadata.
type conditionResult struct {
	Source  string   `json:"source"`
	Op      string   `json:"op"`
	Met     bool     `json:"met"`
	Reading *float64 `json:"reading,omitempty"`
}

// evalResult is the verdict for one rule in one tick.
type evalResult struct {
	rule      *rules.AlarmRule
	triggered bool
	snapshot  []conditionResult
}

// sirenPlan is a decided transition awaiting dispatch outside the lock.
type sirenPlan struct {
	rule         *rules.AlarmRule
	on           bool
	sendCommands bool
	eventType    string
	mode         string
	metadata     map[string]any
}

// tick runs one evaluation pass: expire mutes, evaluate every rule,
// apply the transition table, dispatch siren commands and events.
func (e *Engine) tick(ctx context.Context) {
	started := e.now()

	e.expireMutes(ctx, started)

	// Snapshot the rule set; it is replaced wholesale on reload so the
	// slice stays coherent without holding the lock through IO.
	e.mu.Lock()
	ruleSet := e.ruleSet
	e.mu.Unlock()

	// Evaluate every rule. Status reads are deduplicated within the
	// tick so one stuck sensor costs one timeout, not one per rule.
	lookup := e.newTickLookup(ctx)
	results := make([]evalResult, 0, len(ruleSet))
	for i := range ruleSet {
		rule := &ruleSet[i]
		triggered, snapshot := e.evaluateRule(rule, lookup)
		results = append(results, evalResult{rule: rule, triggered: triggered, snapshot: snapshot})
	}

	// Apply transitions under the lock, collecting siren work.
	now := e.now()
	var plans []sirenPlan
	e.mu.Lock()
	activeCount := 0
	for _, res := range results {
		if plan := e.applyTransition(res, now); plan != nil {
			plans = append(plans, *plan)
		}
		if st, ok := e.state[res.rule.ID]; ok && st.active {
			activeCount++
		}
	}
	e.mu.Unlock()

	for _, plan := range plans {
		e.dispatch(ctx, plan)
	}

	if e.recorder != nil {
		e.recorder.RecordAlarmTick(activeCount, time.Since(started))
	}
}

// expireMutes lifts lapsed mutes. A rule still active when its mute
// lapses gets its sirens re-sent: silence was bounded, the hazard was
// not.
func (e *Engine) expireMutes(ctx context.Context, now time.Time) {
	var resend []*rules.AlarmRule

	e.mu.Lock()
	for id, st := range e.state {
		if st.mutedUntil == nil || now.Before(*st.mutedUntil) {
			continue
		}
		st.mutedUntil = nil
		if !st.active {
			continue
		}
		if rule := e.findRuleLocked(id); rule != nil {
			resend = append(resend, rule)
			e.logger.Warn("mute expired with alarm still active, re-sounding sirens",
				"rule_id", id, "rule_name", rule.Name)
		}
	}
	e.mu.Unlock()

	for _, rule := range resend {
		e.dispatch(ctx, sirenPlan{
			rule:         rule,
			on:           true,
			sendCommands: true,
			eventType:    events.EventAlarmTriggered,
			mode:         events.ModeAuto,
			metadata: map[string]any{
				"rule_name": rule.Name,
				"reason":    "mute_expired",
			},
		})
	}
}

// evaluateRule combines the rule's condition verdicts per its logic.
// A rule with no conditions is inert.
func (e *Engine) evaluateRule(rule *rules.AlarmRule, lookup StatusFunc) (bool, []conditionResult) {
	conds := rule.EnabledConditions()
	if len(conds) == 0 {
		return false, nil
	}

	snapshot := make([]conditionResult, 0, len(conds))
	anyMet, allMet := false, true
	for _, cond := range conds {
		met := Evaluate(cond, lookup)
		anyMet = anyMet || met
		allMet = allMet && met

		cr := conditionResult{
			Source: cond.SourceName,
			Op:     string(cond.Condition),
			Met:    met,
		}
		if cond.SourceType == rules.SourceSensor {
			if status, err := lookup(cond.SourceName); err == nil {
				if v, ok := SensorReading(status); ok {
					reading := v
					cr.Reading = &reading
				}
			}
		}
		snapshot = append(snapshot, cr)
	}

	switch rule.Logic {
	case rules.LogicAll:
		return allMet, snapshot
	default:
		// LogicAny, and any unrecognised logic value, combine as OR.
		return anyMet, snapshot
	}
}

// applyTransition applies the state machine for one rule and returns
// the siren work it implies, if any. Caller holds e.mu.
func (e *Engine) applyTransition(res evalResult, now time.Time) *sirenPlan {
	rule := res.rule
	st := e.state[rule.ID]
	if st == nil {
		st = &ruleState{}
		e.state[rule.ID] = st
	}

	wasActive := st.active
	wasAcked := st.acknowledged
	isMuted := st.muted(now)

	metadata := map[string]any{
		"rule_name":  rule.Name,
		"conditions": res.snapshot,
	}

	switch {
	case res.triggered && !wasActive:
		st.active = true
		st.acknowledged = false
		e.logger.Info("alarm triggered", "rule_id", rule.ID, "rule_name", rule.Name, "muted", isMuted)
		if isMuted {
			// Muted rules go active silently; the mute deadline still
			// bounds how long they stay quiet.
			return nil
		}
		return &sirenPlan{
			rule:         rule,
			on:           true,
			sendCommands: true,
			eventType:    events.EventAlarmTriggered,
			mode:         events.ModeAuto,
			metadata:     metadata,
		}

	case !res.triggered && wasActive && rule.AutoClear:
		st.clear()
		e.logger.Info("alarm cleared", "rule_id", rule.ID, "rule_name", rule.Name)
		return &sirenPlan{
			rule: rule,
			on:   false,
			// A mute already silenced the sirens, so skip the
			// redundant OFF command.
			sendCommands: !isMuted,
			eventType:    events.EventAlarmCleared,
			mode:         events.ModeAuto,
			metadata:     metadata,
		}

	case !res.triggered && wasActive && wasAcked:
		// Manual-clear rule, acknowledged, condition subsided: done.
		st.clear()
		e.logger.Info("acknowledged alarm cleared", "rule_id", rule.ID, "rule_name", rule.Name)
		return &sirenPlan{
			rule:         rule,
			on:           false,
			sendCommands: false,
			eventType:    events.EventAlarmCleared,
			mode:         events.ModeAuto,
			metadata:     metadata,
		}

	default:
		// Still triggered, or manual-clear waiting for acknowledgement.
		return nil
	}
}

// dispatch sends the plan's siren commands and writes audit events.
// Failures on one siren never abort its siblings.
func (e *Engine) dispatch(ctx context.Context, plan sirenPlan) {
	from, to := "on", "off"
	if plan.on {
		from, to = "off", "on"
	}
	source := "alarm:" + plan.rule.ID

	for _, siren := range plan.rule.SirenNames {
		if plan.sendCommands {
			var err error
			if plan.on {
				err = e.commands.TurnOn(ctx, siren, source)
			} else {
				err = e.commands.TurnOff(ctx, siren, source)
			}
			if err != nil {
				e.logger.Error("siren command failed",
					"siren", siren,
					"rule_id", plan.rule.ID,
					"on", plan.on,
					"error", err,
				)
			}
		}

		ev := events.Event{
			EquipmentName: siren,
			EventType:     plan.eventType,
			FromValue:     from,
			ToValue:       to,
			Mode:          plan.mode,
			TriggeredBy:   plan.rule.ID,
			Metadata:      plan.metadata,
		}
		if err := e.audit.LogEvent(ctx, ev); err != nil {
			e.logger.Error("audit event write failed",
				"siren", siren,
				"event_type", plan.eventType,
				"error", err,
			)
		}
	}

	if e.hub != nil {
		e.hub.Broadcast("alarm."+plan.eventType, map[string]any{
			"rule_id":    plan.rule.ID,
			"rule_name":  plan.rule.Name,
			"event_type": plan.eventType,
			"sirens":     plan.rule.SirenNames,
		})
	}
	if e.recorder != nil {
		e.recorder.RecordAlarmTransition(plan.rule.ID, plan.eventType)
	}
}

// ─── Operator Actions ────────────────────────────────────────────────────────

// Acknowledge silences an active alarm while leaving it active: the
// sirens stop, the rule stays in the active list until its condition
// subsides. Acknowledging an idle rule is a no-op.
func (e *Engine) Acknowledge(ctx context.Context, ruleID string) error {
	e.mu.Lock()
	rule := e.findRuleLocked(ruleID)
	if rule == nil {
		e.mu.Unlock()
		return ErrRuleNotFound
	}
	st := e.state[ruleID]
	if st == nil || !st.active {
		e.mu.Unlock()
		e.logger.Debug("acknowledge ignored, rule not active", "rule_id", ruleID)
		return nil
	}
	already := st.acknowledged
	st.acknowledged = true
	e.mu.Unlock()

	if already {
		return nil
	}

	e.logger.Info("alarm acknowledged", "rule_id", ruleID, "rule_name", rule.Name)
	e.dispatch(ctx, sirenPlan{
		rule:         rule,
		on:           false,
		sendCommands: true,
		eventType:    events.EventAlarmAcknowledged,
		mode:         events.ModeManual,
		metadata:     map[string]any{"rule_name": rule.Name},
	})
	return nil
}

// Mute silences an active alarm for the rule's configured window.
// The alarm stays active and re-sounds when the mute lapses. Muting an
// idle rule is a no-op; muting an already-muted rule restarts the
// window from now.
func (e *Engine) Mute(ctx context.Context, ruleID string) error {
	e.mu.Lock()
	rule := e.findRuleLocked(ruleID)
	if rule == nil {
		e.mu.Unlock()
		return ErrRuleNotFound
	}
	st := e.state[ruleID]
	if st == nil || !st.active {
		e.mu.Unlock()
		e.logger.Debug("mute ignored, rule not active", "rule_id", ruleID)
		return nil
	}
	expiry := e.now().Add(time.Duration(rule.MaxMuteMinutes) * time.Minute)
	st.mutedUntil = &expiry
	e.mu.Unlock()

	e.logger.Info("alarm muted",
		"rule_id", ruleID,
		"rule_name", rule.Name,
		"expiry", expiry.Format(time.RFC3339),
	)
	e.dispatch(ctx, sirenPlan{
		rule:         rule,
		on:           false,
		sendCommands: true,
		eventType:    events.EventAlarmMuted,
		mode:         events.ModeManual,
		metadata: map[string]any{
			"rule_name": rule.Name,
			"expiry":    expiry.Format(time.RFC3339),
		},
	})
	return nil
}

// Unmute lifts a mute early. If the rule is still flagged active the
// sirens re-sound immediately; the flag may be one tick stale, and the
// next tick reconciles either way.
func (e *Engine) Unmute(ctx context.Context, ruleID string) error {
	e.mu.Lock()
	rule := e.findRuleLocked(ruleID)
	if rule == nil {
		e.mu.Unlock()
		return ErrRuleNotFound
	}
	st := e.state[ruleID]
	if st == nil || st.mutedUntil == nil {
		e.mu.Unlock()
		e.logger.Debug("unmute ignored, rule not muted", "rule_id", ruleID)
		return nil
	}
	st.mutedUntil = nil
	stillActive := st.active
	e.mu.Unlock()

	e.logger.Info("alarm unmuted", "rule_id", ruleID, "rule_name", rule.Name, "active", stillActive)
	if !stillActive {
		return nil
	}

	e.dispatch(ctx, sirenPlan{
		rule:         rule,
		on:           true,
		sendCommands: true,
		eventType:    events.EventAlarmUnmuted,
		mode:         events.ModeManual,
		metadata:     map[string]any{"rule_name": rule.Name},
	})
	return nil
}

// ReloadRules re-reads enabled rules from the store. Runtime state is
// preserved by rule id; state for rules that disappeared is dropped.
// On store failure the previous rule set stays in force.
func (e *Engine) ReloadRules(ctx context.Context) error {
	loaded, err := e.store.ListEnabledAlarmRules(ctx)
	if err != nil {
		e.logger.Error("rule load failed, keeping previous rule set", "error", err)
		return fmt.Errorf("loading alarm rules: %w", err)
	}

	e.mu.Lock()
	e.ruleSet = loaded
	known := make(map[string]struct{}, len(loaded))
	for i := range loaded {
		known[loaded[i].ID] = struct{}{}
	}
	for id := range e.state {
		if _, ok := known[id]; !ok {
			delete(e.state, id)
		}
	}
	count := len(loaded)
	e.mu.Unlock()

	e.logger.Info("alarm rules loaded", "count", count)
	return nil
}

// Status returns a snapshot of the engine for operators.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	s := Status{
		PollIntervalMS: int(e.pollInterval / time.Millisecond),
		RuleCount:      len(e.ruleSet),
		ActiveRuleIDs:  []string{},
		AckedRuleIDs:   []string{},
		Muted:          make(map[string]MuteStatus),
	}

	for id, st := range e.state {
		if st.active {
			s.ActiveRuleIDs = append(s.ActiveRuleIDs, id)
		}
		if st.acknowledged {
			s.AckedRuleIDs = append(s.AckedRuleIDs, id)
		}
		if st.mutedUntil != nil {
			remaining := int(st.mutedUntil.Sub(now).Seconds())
			if remaining < 0 {
				remaining = 0
			}
			s.Muted[id] = MuteStatus{
				Expiry:           *st.mutedUntil,
				RemainingSeconds: remaining,
			}
		}
	}

	sort.Strings(s.ActiveRuleIDs)
	sort.Strings(s.AckedRuleIDs)
	return s
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// findRuleLocked returns the rule with the given id from the current
// set. Caller holds e.mu. The returned pointer stays valid after the
// lock is released: reloads replace the slice, never mutate it.
func (e *Engine) findRuleLocked(ruleID string) *rules.AlarmRule {
	for i := range e.ruleSet {
		if e.ruleSet[i].ID == ruleID {
			return &e.ruleSet[i]
		}
	}
	return nil
}

// newTickLookup wraps the commander in a per-tick memo so each distinct
// equipment name is read from the bus at most once per tick.
func (e *Engine) newTickLookup(ctx context.Context) StatusFunc {
	type result struct {
		status equipment.StatusMap
		err    error
	}
	seen := make(map[string]result)

	return func(name string) (equipment.StatusMap, error) {
		if r, ok := seen[name]; ok {
			return r.status, r.err
		}
		status, err := e.commands.GetStatus(ctx, name, e.statusTimeout)
		if err != nil {
			e.logger.Debug("status read failed", "equipment", name, "error", err)
		}
		seen[name] = result{status: status, err: err}
		return status, err
	}
}
