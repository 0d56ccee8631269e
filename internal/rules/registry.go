package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// ChangeKind identifies the kind of rule mutation a notification reports.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change is delivered to subscribers whenever a rule is mutated.
// Subscribers reload the rule set they care about rather than applying
// the change incrementally, so the payload stays minimal.
type Change struct {
	Kind   ChangeKind
	RuleID string
}

// changeBufferSize is the per-subscriber notification buffer. A slow
// subscriber loses coalesced notifications rather than blocking writers;
// it reloads the full set on the next one it receives.
const changeBufferSize = 16

// Registry provides rule management with caching, thread safety, and
// change notification fan-out. It wraps a Repository and adds an
// in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by write-through CRUD operations. Every mutation notifies subscribers
// so the engines can reload without polling the database.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	logger  Logger
	cacheMu sync.RWMutex

	alarmCache     map[string]*AlarmRule
	interlockCache map[string]*InterlockRule

	subsMu        sync.Mutex
	alarmSubs     []chan Change
	interlockSubs []chan Change
}

// NewRegistry creates a new rule registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:           repo,
		alarmCache:     make(map[string]*AlarmRule),
		interlockCache: make(map[string]*InterlockRule),
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all rules from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	alarmRules, err := r.repo.ListAlarmRules(ctx)
	if err != nil {
		return fmt.Errorf("loading alarm rules: %w", err)
	}
	interlockRules, err := r.repo.ListInterlockRules(ctx)
	if err != nil {
		return fmt.Errorf("loading interlock rules: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.alarmCache = make(map[string]*AlarmRule, len(alarmRules))
	for i := range alarmRules {
		rule := alarmRules[i]
		r.alarmCache[rule.ID] = rule.DeepCopy()
	}

	r.interlockCache = make(map[string]*InterlockRule, len(interlockRules))
	for i := range interlockRules {
		rule := interlockRules[i]
		r.interlockCache[rule.ID] = rule.DeepCopy()
	}

	r.logger.Info("rule cache refreshed",
		"alarm_rules", len(alarmRules),
		"interlock_rules", len(interlockRules),
	)
	return nil
}

// ─── Change Subscriptions ───────────────────────────────────────────────────

// SubscribeAlarmChanges returns a channel that receives a Change for
// every alarm rule mutation. The channel is buffered; notifications to
// a full buffer are dropped (the subscriber reloads everything per
// notification, so drops only coalesce reloads).
func (r *Registry) SubscribeAlarmChanges() <-chan Change {
	ch := make(chan Change, changeBufferSize)
	r.subsMu.Lock()
	r.alarmSubs = append(r.alarmSubs, ch)
	r.subsMu.Unlock()
	return ch
}

// SubscribeInterlockChanges returns a channel that receives a Change
// for every interlock rule mutation.
func (r *Registry) SubscribeInterlockChanges() <-chan Change {
	ch := make(chan Change, changeBufferSize)
	r.subsMu.Lock()
	r.interlockSubs = append(r.interlockSubs, ch)
	r.subsMu.Unlock()
	return ch
}

func (r *Registry) notifyAlarm(change Change) {
	r.subsMu.Lock()
	subs := r.alarmSubs
	r.subsMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- change:
		default:
			r.logger.Debug("alarm change notification coalesced", "rule_id", change.RuleID)
		}
	}
}

func (r *Registry) notifyInterlock(change Change) {
	r.subsMu.Lock()
	subs := r.interlockSubs
	r.subsMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- change:
		default:
			r.logger.Debug("interlock change notification coalesced", "rule_id", change.RuleID)
		}
	}
}

// ─── Alarm Rules ────────────────────────────────────────────────────────────

// GetAlarmRule retrieves an alarm rule by ID.
// The returned rule is a deep copy; callers can safely modify it.
func (r *Registry) GetAlarmRule(_ context.Context, id string) (*AlarmRule, error) {
	r.cacheMu.RLock()
	cached, ok := r.alarmCache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrRuleNotFound
}

// ListAlarmRules retrieves all alarm rules from the cache.
// Returns deep copies sorted by name then ID for deterministic ordering.
func (r *Registry) ListAlarmRules(_ context.Context) ([]AlarmRule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	rulesOut := make([]AlarmRule, 0, len(r.alarmCache))
	for _, rule := range r.alarmCache {
		rulesOut = append(rulesOut, *rule.DeepCopy())
	}
	sortAlarmRules(rulesOut)
	return rulesOut, nil
}

// ListEnabledAlarmRules retrieves enabled alarm rules, each carrying
// only its enabled conditions. This is the alarm engine's load path.
func (r *Registry) ListEnabledAlarmRules(_ context.Context) ([]AlarmRule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var rulesOut []AlarmRule
	for _, rule := range r.alarmCache {
		if !rule.Enabled {
			continue
		}
		cpy := rule.DeepCopy()
		cpy.Conditions = cpy.EnabledConditions()
		rulesOut = append(rulesOut, *cpy)
	}
	sortAlarmRules(rulesOut)
	return rulesOut, nil
}

// CreateAlarmRule validates, persists, caches, and announces a new rule.
func (r *Registry) CreateAlarmRule(ctx context.Context, rule *AlarmRule) error {
	// Generate ID and apply defaults if not provided
	if rule.ID == "" {
		rule.ID = GenerateID()
	}
	if rule.Logic == "" {
		rule.Logic = LogicAny
	}
	if rule.MaxMuteMinutes == 0 {
		rule.MaxMuteMinutes = defaultMuteMinutes
	}

	if err := ValidateAlarmRule(rule); err != nil {
		return err
	}

	if err := r.repo.CreateAlarmRule(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.alarmCache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("alarm rule created", "id", rule.ID, "name", rule.Name)
	r.notifyAlarm(Change{Kind: ChangeCreated, RuleID: rule.ID})
	return nil
}

// UpdateAlarmRule validates, persists, updates the cache, and announces
// the change.
func (r *Registry) UpdateAlarmRule(ctx context.Context, rule *AlarmRule) error {
	if err := ValidateAlarmRule(rule); err != nil {
		return err
	}

	if err := r.repo.UpdateAlarmRule(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.alarmCache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("alarm rule updated", "id", rule.ID, "name", rule.Name)
	r.notifyAlarm(Change{Kind: ChangeUpdated, RuleID: rule.ID})
	return nil
}

// DeleteAlarmRule removes a rule from persistence and cache, and
// announces the deletion.
func (r *Registry) DeleteAlarmRule(ctx context.Context, id string) error {
	if err := r.repo.DeleteAlarmRule(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.alarmCache, id)
	r.cacheMu.Unlock()

	r.logger.Info("alarm rule deleted", "id", id)
	r.notifyAlarm(Change{Kind: ChangeDeleted, RuleID: id})
	return nil
}

// AlarmRuleCount returns the number of cached alarm rules.
func (r *Registry) AlarmRuleCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.alarmCache)
}

// ─── Interlock Rules ────────────────────────────────────────────────────────

// GetInterlockRule retrieves an interlock rule by ID.
func (r *Registry) GetInterlockRule(_ context.Context, id string) (*InterlockRule, error) {
	r.cacheMu.RLock()
	cached, ok := r.interlockCache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}
	return nil, ErrRuleNotFound
}

// ListInterlockRules retrieves all interlock rules from the cache,
// sorted by upstream then downstream name.
func (r *Registry) ListInterlockRules(_ context.Context) ([]InterlockRule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	rulesOut := make([]InterlockRule, 0, len(r.interlockCache))
	for _, rule := range r.interlockCache {
		rulesOut = append(rulesOut, *rule.DeepCopy())
	}
	sortInterlockRules(rulesOut)
	return rulesOut, nil
}

// ListEnabledInterlockRules retrieves only enabled interlock rules.
// This is the interlock engine's load path.
func (r *Registry) ListEnabledInterlockRules(_ context.Context) ([]InterlockRule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var rulesOut []InterlockRule
	for _, rule := range r.interlockCache {
		if rule.Enabled {
			rulesOut = append(rulesOut, *rule.DeepCopy())
		}
	}
	sortInterlockRules(rulesOut)
	return rulesOut, nil
}

// CreateInterlockRule validates, persists, caches, and announces a new
// interlock rule.
func (r *Registry) CreateInterlockRule(ctx context.Context, rule *InterlockRule) error {
	if rule.ID == "" {
		rule.ID = GenerateID()
	}

	if err := ValidateInterlockRule(rule); err != nil {
		return err
	}

	if err := r.repo.CreateInterlockRule(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.interlockCache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("interlock rule created",
		"id", rule.ID,
		"upstream", rule.UpstreamName,
		"downstream", rule.DownstreamName,
	)
	r.notifyInterlock(Change{Kind: ChangeCreated, RuleID: rule.ID})
	return nil
}

// UpdateInterlockRule validates, persists, updates the cache, and
// announces the change.
func (r *Registry) UpdateInterlockRule(ctx context.Context, rule *InterlockRule) error {
	if err := ValidateInterlockRule(rule); err != nil {
		return err
	}

	if err := r.repo.UpdateInterlockRule(ctx, rule); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.interlockCache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("interlock rule updated", "id", rule.ID)
	r.notifyInterlock(Change{Kind: ChangeUpdated, RuleID: rule.ID})
	return nil
}

// DeleteInterlockRule removes an interlock rule and announces the
// deletion.
func (r *Registry) DeleteInterlockRule(ctx context.Context, id string) error {
	if err := r.repo.DeleteInterlockRule(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.interlockCache, id)
	r.cacheMu.Unlock()

	r.logger.Info("interlock rule deleted", "id", id)
	r.notifyInterlock(Change{Kind: ChangeDeleted, RuleID: id})
	return nil
}

// InterlockRuleCount returns the number of cached interlock rules.
func (r *Registry) InterlockRuleCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.interlockCache)
}

// ─── Sorting ────────────────────────────────────────────────────────────────

// sortAlarmRules sorts rules by name then ID, matching the DB query
// ordering. Engines rely on this for a stable evaluation order.
func sortAlarmRules(rulesOut []AlarmRule) {
	sort.Slice(rulesOut, func(i, j int) bool {
		if rulesOut[i].Name != rulesOut[j].Name {
			return rulesOut[i].Name < rulesOut[j].Name
		}
		return rulesOut[i].ID < rulesOut[j].ID
	})
}

// sortInterlockRules sorts rules by upstream then downstream name.
func sortInterlockRules(rulesOut []InterlockRule) {
	sort.Slice(rulesOut, func(i, j int) bool {
		if rulesOut[i].UpstreamName != rulesOut[j].UpstreamName {
			return rulesOut[i].UpstreamName < rulesOut[j].UpstreamName
		}
		return rulesOut[i].DownstreamName < rulesOut[j].DownstreamName
	})
}
