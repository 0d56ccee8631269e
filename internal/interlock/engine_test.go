package interlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tankwanghow/pou-con-sub006/internal/equipment"
	"github.com/tankwanghow/pou-con-sub006/internal/events"
	"github.com/tankwanghow/pou-con-sub006/internal/rules"
)

// ─── Mocks ───────────────────────────────────────────────────────────────────

type mockRuleSource struct {
	mu        sync.Mutex
	rules     []rules.InterlockRule
	err       error
	listCalls int
	changes   chan rules.Change
}

func newMockRuleSource(ruleList ...rules.InterlockRule) *mockRuleSource {
	return &mockRuleSource{
		rules:   ruleList,
		changes: make(chan rules.Change, 4),
	}
}

func (m *mockRuleSource) ListEnabledInterlockRules(_ context.Context) ([]rules.InterlockRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]rules.InterlockRule, len(m.rules))
	copy(out, m.rules)
	return out, nil
}

func (m *mockRuleSource) SubscribeInterlockChanges() <-chan rules.Change {
	return m.changes
}

func (m *mockRuleSource) setRules(ruleList ...rules.InterlockRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = ruleList
}

func (m *mockRuleSource) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockRuleSource) listCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

type stopCall struct {
	name   string
	source string
}

type mockCommander struct {
	mu          sync.Mutex
	statuses    map[string]equipment.StatusMap
	statusErrs  map[string]error
	stopErrs    map[string]error
	statusCalls map[string]int
	stops       []stopCall
}

func newMockCommander() *mockCommander {
	return &mockCommander{
		statuses:    make(map[string]equipment.StatusMap),
		statusErrs:  make(map[string]error),
		stopErrs:    make(map[string]error),
		statusCalls: make(map[string]int),
	}
}

func (m *mockCommander) GetStatus(_ context.Context, name string, _ time.Duration) (equipment.StatusMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls[name]++
	if err, ok := m.statusErrs[name]; ok {
		return nil, err
	}
	if status, ok := m.statuses[name]; ok {
		return status, nil
	}
	return nil, errors.New("no such equipment")
}

func (m *mockCommander) TurnOff(_ context.Context, name, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops = append(m.stops, stopCall{name: name, source: source})
	return m.stopErrs[name]
}

func (m *mockCommander) setRunning(name string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[name] = equipment.StatusMap{"is_running": running}
}

func (m *mockCommander) setStatusError(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.statusErrs, name)
		return
	}
	m.statusErrs[name] = err
}

func (m *mockCommander) stopCalls() []stopCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stopCall, len(m.stops))
	copy(out, m.stops)
	return out
}

func (m *mockCommander) statusCallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls[name]
}

type mockEventSink struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (m *mockEventSink) LogEvent(_ context.Context, e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func (m *mockEventSink) all() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Event, len(m.events))
	copy(out, m.events)
	return out
}

type mockHub struct {
	mu       sync.Mutex
	channels []string
}

func (m *mockHub) Broadcast(channel string, _ any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel)
}

type mockRecorder struct {
	mu    sync.Mutex
	ticks int
	trips []string
}

func (m *mockRecorder) RecordInterlockTick(int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

func (m *mockRecorder) RecordInterlockTrip(upstream, downstream string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips = append(m.trips, upstream+">"+downstream)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// newTestEngine builds an engine with rules loaded, without starting
// the refresh loop. Tests drive passes by hand for determinism.
func newTestEngine(t *testing.T, source *mockRuleSource, commander *mockCommander, sink *mockEventSink) *Engine {
	t.Helper()
	e := NewEngine(Config{}, source, commander, sink, nil)
	if err := e.ReloadRules(context.Background()); err != nil {
		t.Fatalf("ReloadRules() error = %v", err)
	}
	return e
}

// ─── Cascade ─────────────────────────────────────────────────────────────────

func TestEngine_UpstreamStopCascades(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	sink := &mockEventSink{}
	e := newTestEngine(t, source, commander, sink)

	e.tick(ctx)
	if got := len(commander.stopCalls()); got != 0 {
		t.Fatalf("stops while upstream runs = %d, want 0", got)
	}
	if d := e.CanStart("auger-1"); !d.Allowed {
		t.Errorf("CanStart(auger-1) while upstream runs = %+v, want allowed", d)
	}

	commander.setRunning("belt-main", false)
	e.tick(ctx)

	stops := mustStops(t, commander, 1)
	if stops[0].name != "auger-1" {
		t.Errorf("stopped %q, want auger-1", stops[0].name)
	}
	if stops[0].source != "interlock:belt-main" {
		t.Errorf("stop source = %q, want interlock:belt-main", stops[0].source)
	}

	d := e.CanStart("auger-1")
	if d.Allowed {
		t.Fatal("CanStart(auger-1) after upstream stop = allowed, want blocked")
	}
	if len(d.BlockedBy) != 1 || d.BlockedBy[0] != "belt-main" {
		t.Errorf("BlockedBy = %v, want [belt-main]", d.BlockedBy)
	}

	evs := sink.all()
	if len(evs) != 1 {
		t.Fatalf("audit events = %d, want 1", len(evs))
	}
	if evs[0].EventType != events.EventInterlockTrip {
		t.Errorf("event type = %q, want %q", evs[0].EventType, events.EventInterlockTrip)
	}
	if evs[0].EquipmentName != "auger-1" || evs[0].TriggeredBy != "belt-main" {
		t.Errorf("event = %+v, want auger-1 triggered by belt-main", evs[0])
	}
	if evs[0].Mode != events.ModeAuto {
		t.Errorf("event mode = %q, want %q", evs[0].Mode, events.ModeAuto)
	}

	// The stop fired on the transition; a still-stopped upstream must
	// not re-issue it every pass.
	e.tick(ctx)
	if got := len(commander.stopCalls()); got != 1 {
		t.Errorf("stops after third pass = %d, want 1 (transition only)", got)
	}
}

func mustStops(t *testing.T, commander *mockCommander, want int) []stopCall {
	t.Helper()
	stops := commander.stopCalls()
	if len(stops) != want {
		t.Fatalf("stop calls = %d, want %d", len(stops), want)
	}
	return stops
}

func TestEngine_CascadeStopsEveryDependentOnce(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(
		edge("il-1", "belt-main", "auger-2"),
		edge("il-2", "belt-main", "auger-1"),
		edge("il-3", "belt-main", "auger-1"), // duplicate edge
	)
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	e := newTestEngine(t, source, commander, &mockEventSink{})

	e.tick(ctx)
	commander.setRunning("belt-main", false)
	e.tick(ctx)

	stops := mustStops(t, commander, 2)
	if stops[0].name != "auger-1" || stops[1].name != "auger-2" {
		t.Errorf("stops = %v, want [auger-1 auger-2] in stable order", stops)
	}
}

func TestEngine_StopFailureNeverAbortsSiblings(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(
		edge("il-1", "belt-main", "auger-1"),
		edge("il-2", "belt-main", "auger-2"),
	)
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	commander.stopErrs["auger-1"] = errors.New("bus write failed")
	sink := &mockEventSink{err: errors.New("disk full")}
	e := newTestEngine(t, source, commander, sink)

	e.tick(ctx)
	commander.setRunning("belt-main", false)
	e.tick(ctx)

	stops := commander.stopCalls()
	if len(stops) != 2 {
		t.Fatalf("stop calls = %d, want 2 (failure must not abort siblings)", len(stops))
	}
	if stops[1].name != "auger-2" {
		t.Errorf("second stop = %q, want auger-2", stops[1].name)
	}
}

func TestEngine_FailedStatusReadLeavesTrackerUnchanged(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	e := newTestEngine(t, source, commander, &mockEventSink{})

	e.tick(ctx)

	// Unreachable upstream: no transition observed, no cascade, and the
	// permission cache keeps the last known (running) state.
	commander.setStatusError("belt-main", errors.New("bus timeout"))
	e.tick(ctx)
	if got := len(commander.stopCalls()); got != 0 {
		t.Fatalf("stops after failed read = %d, want 0", got)
	}
	if d := e.CanStart("auger-1"); !d.Allowed {
		t.Errorf("CanStart(auger-1) after failed read = %+v, want allowed", d)
	}

	// The upstream comes back stopped: the tick sees true→false and
	// cascades exactly once.
	commander.setStatusError("belt-main", nil)
	commander.setRunning("belt-main", false)
	e.tick(ctx)
	mustStops(t, commander, 1)
}

func TestEngine_StatusWithoutRunningFieldIgnored(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	e := newTestEngine(t, source, commander, &mockEventSink{})

	e.tick(ctx)
	commander.statuses["belt-main"] = equipment.StatusMap{"rpm": 0.0}
	e.tick(ctx)

	if got := len(commander.stopCalls()); got != 0 {
		t.Errorf("stops = %d, want 0 when status carries no running field", got)
	}
	if d := e.CanStart("auger-1"); !d.Allowed {
		t.Errorf("CanStart(auger-1) = %+v, want allowed (tracker unchanged)", d)
	}
}

// ─── Permission cache ────────────────────────────────────────────────────────

func TestEngine_CanStartWithoutDependenciesAlwaysAllowed(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	e := newTestEngine(t, source, commander, &mockEventSink{})

	e.tick(ctx)
	commander.setRunning("belt-main", false)
	e.tick(ctx)

	// belt-main itself has no upstream and stays allowed even while it
	// blocks its own dependents.
	if d := e.CanStart("belt-main"); !d.Allowed {
		t.Errorf("CanStart(belt-main) = %+v, want allowed", d)
	}
	// Equipment no rule mentions is always allowed.
	if d := e.CanStart("fan-7"); !d.Allowed {
		t.Errorf("CanStart(fan-7) = %+v, want allowed", d)
	}
}

func TestEngine_CanStartBeforeFirstPublishIsAllowed(t *testing.T) {
	e := NewEngine(Config{}, newMockRuleSource(), newMockCommander(), &mockEventSink{}, nil)
	if d := e.CanStart("anything"); !d.Allowed {
		t.Errorf("CanStart before first publish = %+v, want allowed", d)
	}
}

func TestEngine_CanStartNamesEveryStoppedUpstream(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(
		edge("il-1", "belt-main", "auger-1"),
		edge("il-2", "belt-cross", "auger-1"),
	)
	commander := newMockCommander()
	commander.setRunning("belt-main", false)
	commander.setRunning("belt-cross", false)
	e := newTestEngine(t, source, commander, &mockEventSink{})

	e.tick(ctx)

	d := e.CanStart("auger-1")
	if d.Allowed {
		t.Fatal("CanStart(auger-1) = allowed, want blocked by both belts")
	}
	if len(d.BlockedBy) != 2 || d.BlockedBy[0] != "belt-cross" || d.BlockedBy[1] != "belt-main" {
		t.Errorf("BlockedBy = %v, want sorted [belt-cross belt-main]", d.BlockedBy)
	}

	// One prerequisite back is not enough.
	commander.setRunning("belt-cross", true)
	e.tick(ctx)
	d = e.CanStart("auger-1")
	if d.Allowed || len(d.BlockedBy) != 1 || d.BlockedBy[0] != "belt-main" {
		t.Errorf("CanStart(auger-1) = %+v, want blocked by belt-main only", d)
	}

	// Both running again: the block lifts.
	commander.setRunning("belt-main", true)
	e.tick(ctx)
	if d := e.CanStart("auger-1"); !d.Allowed {
		t.Errorf("CanStart(auger-1) with both running = %+v, want allowed", d)
	}
}

func TestEngine_DecisionIsCopiedOut(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", false)
	e := newTestEngine(t, source, commander, &mockEventSink{})

	e.tick(ctx)

	d := e.CanStart("auger-1")
	d.BlockedBy[0] = "mutated"
	if again := e.CanStart("auger-1"); again.BlockedBy[0] != "belt-main" {
		t.Error("CanStart result shares state with the cache")
	}

	perms := e.Permissions()
	if d, ok := perms["auger-1"]; !ok || d.Allowed {
		t.Errorf("Permissions()[auger-1] = %+v, want blocked entry", d)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

func TestEngine_ReloadRecomputesFromTrackedState(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", false)
	e := newTestEngine(t, source, commander, &mockEventSink{})

	e.tick(ctx)
	if d := e.CanStart("auger-1"); d.Allowed {
		t.Fatal("precondition: auger-1 should be blocked")
	}

	// A new rule hangs auger-2 off the same stopped upstream. The reload
	// must block it from tracked state alone, without a bus read.
	reads := commander.statusCallCount("belt-main")
	source.setRules(
		edge("il-1", "belt-main", "auger-1"),
		edge("il-2", "belt-main", "auger-2"),
	)
	if err := e.ReloadRules(ctx); err != nil {
		t.Fatalf("ReloadRules() error = %v", err)
	}
	if got := commander.statusCallCount("belt-main"); got != reads {
		t.Errorf("status reads during reload = %d, want %d (no fresh bus read)", got, reads)
	}
	if d := e.CanStart("auger-2"); d.Allowed {
		t.Errorf("CanStart(auger-2) after reload = %+v, want blocked", d)
	}

	// Store failure keeps the previous graph in force.
	source.setError(errors.New("store offline"))
	if err := e.ReloadRules(ctx); err == nil {
		t.Error("ReloadRules() with failing store returned nil error")
	}
	if got := len(e.Rules()); got != 2 {
		t.Errorf("rule count after failed reload = %d, want 2", got)
	}

	// Rules removed: blocks lift and stale trackers are dropped.
	source.setError(nil)
	source.setRules()
	if err := e.ReloadRules(ctx); err != nil {
		t.Fatalf("ReloadRules() error = %v", err)
	}
	if d := e.CanStart("auger-1"); !d.Allowed {
		t.Errorf("CanStart(auger-1) with no rules = %+v, want allowed", d)
	}
	if got := len(e.Rules()); got != 0 {
		t.Errorf("rule count = %d, want 0", got)
	}
}

// ─── Wiring ──────────────────────────────────────────────────────────────────

func TestEngine_HubAndRecorderWiring(t *testing.T) {
	ctx := context.Background()
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	e := newTestEngine(t, source, commander, &mockEventSink{})

	hub := &mockHub{}
	recorder := &mockRecorder{}
	e.SetHub(hub)
	e.SetRecorder(recorder)

	e.tick(ctx)
	commander.setRunning("belt-main", false)
	e.tick(ctx)

	if len(hub.channels) != 1 || hub.channels[0] != "interlock.trip" {
		t.Errorf("hub channels = %v, want [interlock.trip]", hub.channels)
	}
	if recorder.ticks != 2 {
		t.Errorf("recorded ticks = %d, want 2", recorder.ticks)
	}
	if len(recorder.trips) != 1 || recorder.trips[0] != "belt-main>auger-1" {
		t.Errorf("recorded trips = %v, want [belt-main>auger-1]", recorder.trips)
	}
}

// ─── Lifecycle ───────────────────────────────────────────────────────────────

func TestEngine_StartStop(t *testing.T) {
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	e := NewEngine(Config{RefreshInterval: 5 * time.Millisecond}, source, commander, &mockEventSink{}, nil)

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := e.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	deadline := time.After(2 * time.Second)
	for commander.statusCallCount("belt-main") == 0 {
		select {
		case <-deadline:
			t.Fatal("refresh loop never read the upstream")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A rule-change notification forces a reload.
	listCalls := source.listCallCount()
	source.changes <- rules.Change{Kind: rules.ChangeUpdated, RuleID: "il-1"}
	deadline = time.After(2 * time.Second)
	for source.listCallCount() <= listCalls {
		select {
		case <-deadline:
			t.Fatal("rule change never drove a reload")
		case <-time.After(5 * time.Millisecond):
		}
	}

	e.Stop()
	e.Stop() // second stop is a no-op
}

func TestEngine_RefreshPoke(t *testing.T) {
	source := newMockRuleSource(edge("il-1", "belt-main", "auger-1"))
	commander := newMockCommander()
	commander.setRunning("belt-main", true)
	e := NewEngine(Config{RefreshInterval: time.Hour}, source, commander, &mockEventSink{}, nil)

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer e.Stop()

	e.Refresh()
	deadline := time.After(2 * time.Second)
	for commander.statusCallCount("belt-main") == 0 {
		select {
		case <-deadline:
			t.Fatal("refresh poke never drove a pass")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
