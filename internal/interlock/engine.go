package interlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tankwanghow/pou-con-sub006/internal/equipment"
	"github.com/tankwanghow/pou-con-sub006/internal/events"
	"github.com/tankwanghow/pou-con-sub006/internal/rules"
)

// Engine defaults.
const (
	DefaultRefreshInterval = 2000 * time.Millisecond
	DefaultStatusTimeout   = 500 * time.Millisecond
)

// ErrAlreadyRunning is returned when Start is called twice.
var ErrAlreadyRunning = errors.New("interlock: engine already running")

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
	ListEnabledInterlockRules(ctx context.Context) ([]rules.InterlockRule, error)
	SubscribeInterlockChanges() <-chan rules.Change
}

// Commander is the equipment surface the engine drives. Implemented by
// *equipment.Gateway.
type Commander interface {
	GetStatus(ctx context.Context, name string, timeout time.Duration) (equipment.StatusMap, error)
	TurnOff(ctx context.Context, name, source string) error
}

// EventLogger records audit events for cascade stops.
type EventLogger interface {
	LogEvent(ctx context.Context, e events.Event) error
}

// Hub is the interface for broadcasting live events to operator UIs.
type Hub interface {
	Broadcast(channel string, payload any)
}

// Recorder receives engine telemetry samples.
type Recorder interface {
	RecordInterlockTick(blockedCount int, duration time.Duration)
	RecordInterlockTrip(upstream, downstream string)
}

// Config holds the engine's timing knobs.
type Config struct {
	// RefreshInterval is the period between data refreshes. Default
	// 2000 ms.
	RefreshInterval time.Duration

	// StatusTimeout bounds each upstream status read. Default 500 ms.
	StatusTimeout time.Duration
}

// Engine tracks upstream running state and enforces stop cascades:
// when an upstream stops, every dependent downstream is stopped, and
// equipment may not start while a prerequisite is down.
//
// The permission verdicts live in a cache republished whole after
// every refresh. CanStart reads the cache through an atomic pointer,
// so start decisions never contend with the refresh loop.
type Engine struct {
	store    RuleSource
	commands Commander
	audit    EventLogger
	hub      Hub
	recorder Recorder
	logger   Logger

	refreshInterval time.Duration
	statusTimeout   time.Duration

	mu          sync.Mutex
	graph       *ruleGraph
	prevRunning map[string]bool
	running     bool

	permissions atomic.Pointer[map[string]Decision]

	changes <-chan rules.Change
	refresh chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewEngine creates an interlock engine.
//
// Parameters:
//   - cfg: timing knobs; zero values take the package defaults
//   - store: rule store (enabled rules + change notifications)
//   - commands: equipment status and stop-command surface
//   - audit: audit event sink
//   - logger: logger instance (nil for no logging)
func NewEngine(cfg Config, store RuleSource, commands Commander, audit EventLogger, logger Logger) *Engine {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = DefaultStatusTimeout
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		store:           store,
		commands:        commands,
		audit:           audit,
		logger:          logger,
		refreshInterval: cfg.RefreshInterval,
		statusTimeout:   cfg.StatusTimeout,
		graph:           buildGraph(nil),
		prevRunning:     make(map[string]bool),
		refresh:         make(chan struct{}, 1),
		done:            make(chan struct{}),
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
// the refresh loop. A failed initial load starts the engine with an
// empty graph; the store is retried on every change notification and
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

	e.changes = e.store.SubscribeInterlockChanges()

	e.wg.Add(1)
	go e.run(ctx)

	e.logger.Info("interlock engine started",
		"refresh_interval", e.refreshInterval,
		"status_timeout", e.statusTimeout,
	)
	return nil
}

// Stop halts the refresh loop and waits for the in-flight pass to
// finish.
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
	e.logger.Info("interlock engine stopped")
}

// run is the refresh loop. Periodic ticks, external refresh pokes, and
// rule-change notifications are multiplexed over one select so
// cross-pass ordering is total.
func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.tick(ctx)
		case <-e.refresh:
			e.tick(ctx)
		case change, ok := <-e.changes:
			if !ok {
				e.changes = nil
				continue
			}
			e.logger.Debug("interlock rule change", "kind", change.Kind, "rule_id", change.RuleID)
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

// Refresh requests an immediate data-refresh pass. Non-blocking; a
// poke while one is already pending is dropped.
func (e *Engine) Refresh() {
	select {
	case e.refresh <- struct{}{}:
	default:
	}
}

// ─── Refresh pass ────────────────────────────────────────────────────────────

// trip is one upstream stop with the dependents it cascades to.
type trip struct {
	upstream    string
	downstreams []string
}

// tick runs one data-refresh pass: read tracked upstream states,
// cascade stops on true→false transitions, republish the permission
// cache.
func (e *Engine) tick(ctx context.Context) {
	started := time.Now()

	e.mu.Lock()
	graph := e.graph
	e.mu.Unlock()

	// Phase 1: read every tracked upstream, no lock held. A failed
	// read leaves that tracker untouched for this pass.
	observed := make(map[string]bool, len(graph.tracked))
	for _, name := range graph.tracked {
		status, err := e.commands.GetStatus(ctx, name, e.statusTimeout)
		if err != nil {
			e.logger.Warn("upstream status read failed, tracker unchanged",
				"equipment", name, "error", err)
			continue
		}
		run, ok := equipmentRunning(status)
		if !ok {
			e.logger.Warn("upstream status has no running field, tracker unchanged",
				"equipment", name)
			continue
		}
		observed[name] = run
	}

	// Phase 2: apply transitions and rebuild the cache under the lock.
	var trips []trip
	e.mu.Lock()
	for _, name := range graph.tracked {
		run, ok := observed[name]
		if !ok {
			continue
		}
		if prev, tracked := e.prevRunning[name]; tracked && prev && !run {
			trips = append(trips, trip{upstream: name, downstreams: graph.downstreams[name]})
		}
		e.prevRunning[name] = run
	}
	cache, blocked := e.permissionsLocked(graph)
	e.permissions.Store(&cache)
	e.mu.Unlock()

	// Phase 3: cascade stops and audit events, outside the lock.
	for _, tr := range trips {
		e.cascade(ctx, tr)
	}

	if e.recorder != nil {
		e.recorder.RecordInterlockTick(blocked, time.Since(started))
	}
}

// permissionsLocked computes the full permission cache from the rule
// graph and tracked states. Caller holds e.mu. Only an upstream known
// to be stopped blocks; an upstream never observed does not (fail-open,
// same reasoning as the missing-entry default in CanStart).
func (e *Engine) permissionsLocked(graph *ruleGraph) (map[string]Decision, int) {
	cache := make(map[string]Decision, len(graph.names))
	blocked := 0
	for _, name := range graph.names {
		ups := graph.upstreams[name]
		if len(ups) == 0 {
			cache[name] = Decision{Allowed: true}
			continue
		}
		var stopped []string
		for _, up := range ups {
			if run, tracked := e.prevRunning[up]; tracked && !run {
				stopped = append(stopped, up)
			}
		}
		if len(stopped) == 0 {
			cache[name] = Decision{Allowed: true}
			continue
		}
		cache[name] = Decision{Allowed: false, BlockedBy: stopped}
		blocked++
	}
	return cache, blocked
}

// cascade stops every dependent of a stopped upstream. Failures on one
// dependent never abort its siblings.
func (e *Engine) cascade(ctx context.Context, tr trip) {
	source := "interlock:" + tr.upstream
	for _, name := range tr.downstreams {
		e.logger.Warn("interlock trip, stopping dependent",
			"upstream", tr.upstream, "equipment", name)

		if err := e.commands.TurnOff(ctx, name, source); err != nil {
			e.logger.Error("interlock stop command failed",
				"equipment", name, "upstream", tr.upstream, "error", err)
		}

		ev := events.Event{
			EquipmentName: name,
			EventType:     events.EventInterlockTrip,
			FromValue:     "on",
			ToValue:       "off",
			Mode:          events.ModeAuto,
			TriggeredBy:   tr.upstream,
			Metadata:      map[string]any{"upstream": tr.upstream},
		}
		if err := e.audit.LogEvent(ctx, ev); err != nil {
			e.logger.Error("audit event write failed",
				"equipment", name, "error", err)
		}

		if e.recorder != nil {
			e.recorder.RecordInterlockTrip(tr.upstream, name)
		}
	}

	if e.hub != nil {
		e.hub.Broadcast("interlock.trip", map[string]any{
			"upstream": tr.upstream,
			"stopped":  tr.downstreams,
		})
	}
}

// ─── Operator Surface ────────────────────────────────────────────────────────

// CanStart reports whether the named equipment may start. It reads the
// precomputed cache only: wait-free, never contends with the refresh
// loop. A missing entry, or a cache not yet published, is Allowed so a
// cold start never deadlocks equipment.
func (e *Engine) CanStart(name string) Decision {
	cache := e.permissions.Load()
	if cache == nil {
		return Decision{Allowed: true}
	}
	decision, ok := (*cache)[name]
	if !ok {
		return Decision{Allowed: true}
	}
	return decision.clone()
}

// Rules returns the rule set currently in force.
func (e *Engine) Rules() []rules.InterlockRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]rules.InterlockRule, len(e.graph.rules))
	copy(out, e.graph.rules)
	return out
}

// Permissions returns a copy of the current permission cache.
func (e *Engine) Permissions() map[string]Decision {
	cache := e.permissions.Load()
	if cache == nil {
		return map[string]Decision{}
	}
	out := make(map[string]Decision, len(*cache))
	for name, decision := range *cache {
		out[name] = decision.clone()
	}
	return out
}

// ReloadRules re-reads enabled rules from the store, rebuilds the
// dependency graph, and recomputes the permission cache from the
// latest tracked states (no fresh bus read), so a configuration edit
// takes effect without waiting for the next refresh. On store failure
// the previous graph stays in force.
func (e *Engine) ReloadRules(ctx context.Context) error {
	loaded, err := e.store.ListEnabledInterlockRules(ctx)
	if err != nil {
		e.logger.Error("interlock rule load failed, keeping previous rule set", "error", err)
		return fmt.Errorf("loading interlock rules: %w", err)
	}

	graph := buildGraph(loaded)

	e.mu.Lock()
	e.graph = graph
	for name := range e.prevRunning {
		if _, stillTracked := graph.downstreams[name]; !stillTracked {
			delete(e.prevRunning, name)
		}
	}
	cache, _ := e.permissionsLocked(graph)
	e.permissions.Store(&cache)
	e.mu.Unlock()

	e.logger.Info("interlock rules loaded", "count", len(loaded))
	return nil
}
