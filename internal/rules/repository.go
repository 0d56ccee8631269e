package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for rule persistence.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Alarm rule CRUD
	GetAlarmRule(ctx context.Context, id string) (*AlarmRule, error)
	ListAlarmRules(ctx context.Context) ([]AlarmRule, error)
	ListEnabledAlarmRules(ctx context.Context) ([]AlarmRule, error)
	CreateAlarmRule(ctx context.Context, rule *AlarmRule) error
	UpdateAlarmRule(ctx context.Context, rule *AlarmRule) error
	DeleteAlarmRule(ctx context.Context, id string) error

	// Interlock rule CRUD
	GetInterlockRule(ctx context.Context, id string) (*InterlockRule, error)
	ListInterlockRules(ctx context.Context) ([]InterlockRule, error)
	ListEnabledInterlockRules(ctx context.Context) ([]InterlockRule, error)
	CreateInterlockRule(ctx context.Context, rule *InterlockRule) error
	UpdateInterlockRule(ctx context.Context, rule *InterlockRule) error
	DeleteInterlockRule(ctx context.Context, id string) error
}

// alarmRuleColumns is the SELECT column list for alarm rule queries.
const alarmRuleColumns = `id, name, siren_names, logic, auto_clear, enabled,
			max_mute_minutes, created_at, updated_at`

// conditionColumns is the SELECT column list for alarm condition queries.
const conditionColumns = `id, rule_id, source_type, source_name, condition,
			threshold, enabled, created_at`

// interlockColumns is the SELECT column list for interlock rule queries.
const interlockColumns = `id, upstream_name, downstream_name, enabled, created_at, updated_at`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ─── Alarm Rules ────────────────────────────────────────────────────────────

// GetAlarmRule retrieves an alarm rule, with its conditions, by ID.
func (r *SQLiteRepository) GetAlarmRule(ctx context.Context, id string) (*AlarmRule, error) {
	query := `SELECT ` + alarmRuleColumns + ` FROM alarm_rules WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rule, err := scanAlarmRuleRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying alarm rule: %w", err)
	}

	conditions, err := r.queryConditions(ctx,
		`SELECT `+conditionColumns+` FROM alarm_conditions WHERE rule_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, err
	}
	rule.Conditions = conditions

	return rule, nil
}

// ListAlarmRules retrieves all alarm rules with their conditions,
// ordered by name for stable evaluation order.
func (r *SQLiteRepository) ListAlarmRules(ctx context.Context) ([]AlarmRule, error) {
	query := `SELECT ` + alarmRuleColumns + ` FROM alarm_rules ORDER BY name, id`
	return r.queryAlarmRules(ctx, query, false)
}

// ListEnabledAlarmRules retrieves enabled alarm rules only, each
// carrying only its enabled conditions. This is the engine load path.
func (r *SQLiteRepository) ListEnabledAlarmRules(ctx context.Context) ([]AlarmRule, error) {
	query := `SELECT ` + alarmRuleColumns + ` FROM alarm_rules WHERE enabled = 1 ORDER BY name, id`
	return r.queryAlarmRules(ctx, query, true)
}

// CreateAlarmRule inserts a rule and its conditions in one transaction.
func (r *SQLiteRepository) CreateAlarmRule(ctx context.Context, rule *AlarmRule) error {
	sirensJSON, err := json.Marshal(rule.SirenNames)
	if err != nil {
		return fmt.Errorf("marshalling siren names: %w", err)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	query := `
		INSERT INTO alarm_rules (
			id, name, siren_names, logic, auto_clear, enabled,
			max_mute_minutes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		string(sirensJSON),
		string(rule.Logic),
		boolToInt(rule.AutoClear),
		boolToInt(rule.Enabled),
		rule.MaxMuteMinutes,
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting alarm rule: %w", err)
	}

	if err := insertConditions(ctx, tx, rule.ID, rule.Conditions, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing alarm rule: %w", err)
	}
	return nil
}

// UpdateAlarmRule rewrites a rule and replaces its condition set in one
// transaction.
func (r *SQLiteRepository) UpdateAlarmRule(ctx context.Context, rule *AlarmRule) error {
	sirensJSON, err := json.Marshal(rule.SirenNames)
	if err != nil {
		return fmt.Errorf("marshalling siren names: %w", err)
	}

	now := time.Now().UTC()
	rule.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	query := `
		UPDATE alarm_rules SET
			name = ?, siren_names = ?, logic = ?, auto_clear = ?,
			enabled = ?, max_mute_minutes = ?, updated_at = ?
		WHERE id = ?`

	result, err := tx.ExecContext(ctx, query,
		rule.Name,
		string(sirensJSON),
		string(rule.Logic),
		boolToInt(rule.AutoClear),
		boolToInt(rule.Enabled),
		rule.MaxMuteMinutes,
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("updating alarm rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}

	// Conditions are owned by the rule; replace the whole set.
	if _, err := tx.ExecContext(ctx, "DELETE FROM alarm_conditions WHERE rule_id = ?", rule.ID); err != nil {
		return fmt.Errorf("clearing conditions: %w", err)
	}
	if err := insertConditions(ctx, tx, rule.ID, rule.Conditions, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing alarm rule update: %w", err)
	}
	return nil
}

// DeleteAlarmRule removes a rule by ID. Conditions cascade via the
// foreign key.
func (r *SQLiteRepository) DeleteAlarmRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alarm_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting alarm rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// insertConditions writes a rule's conditions inside an open transaction.
func insertConditions(ctx context.Context, tx *sql.Tx, ruleID string, conditions []AlarmCondition, now time.Time) error {
	query := `
		INSERT INTO alarm_conditions (
			id, rule_id, source_type, source_name, condition,
			threshold, enabled, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for i := range conditions {
		c := &conditions[i]
		if c.ID == "" {
			c.ID = GenerateID()
		}
		c.RuleID = ruleID
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}

		_, err := tx.ExecContext(ctx, query,
			c.ID,
			c.RuleID,
			string(c.SourceType),
			c.SourceName,
			string(c.Condition),
			nullableFloat(c.Threshold),
			boolToInt(c.Enabled),
			c.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting condition: %w", err)
		}
	}
	return nil
}

// queryAlarmRules loads rules matching the query, then attaches their
// conditions with a single follow-up query.
func (r *SQLiteRepository) queryAlarmRules(ctx context.Context, query string, enabledOnly bool) ([]AlarmRule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying alarm rules: %w", err)
	}
	defer rows.Close()

	var rulesOut []AlarmRule
	for rows.Next() {
		rule, scanErr := scanAlarmRuleRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning alarm rule: %w", scanErr)
		}
		rulesOut = append(rulesOut, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alarm rules: %w", err)
	}

	if len(rulesOut) == 0 {
		return rulesOut, nil
	}

	condQuery := `SELECT ` + conditionColumns + ` FROM alarm_conditions`
	if enabledOnly {
		condQuery += ` WHERE enabled = 1`
	}
	condQuery += ` ORDER BY rule_id, created_at, id`

	conditions, err := r.queryConditions(ctx, condQuery)
	if err != nil {
		return nil, err
	}

	byRule := make(map[string][]AlarmCondition, len(rulesOut))
	for _, c := range conditions {
		byRule[c.RuleID] = append(byRule[c.RuleID], c)
	}
	for i := range rulesOut {
		rulesOut[i].Conditions = byRule[rulesOut[i].ID]
		if rulesOut[i].Conditions == nil {
			rulesOut[i].Conditions = []AlarmCondition{}
		}
	}

	return rulesOut, nil
}

// queryConditions executes a condition query and scans the results.
func (r *SQLiteRepository) queryConditions(ctx context.Context, query string, args ...any) ([]AlarmCondition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conditions: %w", err)
	}
	defer rows.Close()

	var conditions []AlarmCondition
	for rows.Next() {
		c, scanErr := scanConditionRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning condition: %w", scanErr)
		}
		conditions = append(conditions, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conditions: %w", err)
	}
	if conditions == nil {
		conditions = []AlarmCondition{}
	}
	return conditions, nil
}

// ─── Interlock Rules ────────────────────────────────────────────────────────

// GetInterlockRule retrieves an interlock rule by ID.
func (r *SQLiteRepository) GetInterlockRule(ctx context.Context, id string) (*InterlockRule, error) {
	query := `SELECT ` + interlockColumns + ` FROM interlock_rules WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rule, err := scanInterlockRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("querying interlock rule: %w", err)
	}
	return rule, nil
}

// ListInterlockRules retrieves all interlock rules ordered by upstream
// then downstream name.
func (r *SQLiteRepository) ListInterlockRules(ctx context.Context) ([]InterlockRule, error) {
	query := `SELECT ` + interlockColumns + ` FROM interlock_rules ORDER BY upstream_name, downstream_name`
	return r.queryInterlockRules(ctx, query)
}

// ListEnabledInterlockRules retrieves only enabled interlock rules.
// This is the engine load path.
func (r *SQLiteRepository) ListEnabledInterlockRules(ctx context.Context) ([]InterlockRule, error) {
	query := `SELECT ` + interlockColumns + ` FROM interlock_rules WHERE enabled = 1 ORDER BY upstream_name, downstream_name`
	return r.queryInterlockRules(ctx, query)
}

// CreateInterlockRule inserts a new interlock rule.
func (r *SQLiteRepository) CreateInterlockRule(ctx context.Context, rule *InterlockRule) error {
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO interlock_rules (
			id, upstream_name, downstream_name, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		rule.ID,
		rule.UpstreamName,
		rule.DownstreamName,
		boolToInt(rule.Enabled),
		rule.CreatedAt.Format(time.RFC3339),
		rule.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("inserting interlock rule: %w", err)
	}
	return nil
}

// UpdateInterlockRule modifies an existing interlock rule.
func (r *SQLiteRepository) UpdateInterlockRule(ctx context.Context, rule *InterlockRule) error {
	rule.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE interlock_rules SET
			upstream_name = ?, downstream_name = ?, enabled = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		rule.UpstreamName,
		rule.DownstreamName,
		boolToInt(rule.Enabled),
		rule.UpdatedAt.Format(time.RFC3339),
		rule.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		return fmt.Errorf("updating interlock rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteInterlockRule removes an interlock rule by ID.
func (r *SQLiteRepository) DeleteInterlockRule(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM interlock_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting interlock rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// queryInterlockRules executes a query and returns a slice of rules.
func (r *SQLiteRepository) queryInterlockRules(ctx context.Context, query string, args ...any) ([]InterlockRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying interlock rules: %w", err)
	}
	defer rows.Close()

	var rulesOut []InterlockRule
	for rows.Next() {
		rule, scanErr := scanInterlockRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning interlock rule: %w", scanErr)
		}
		rulesOut = append(rulesOut, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating interlock rules: %w", err)
	}
	return rulesOut, nil
}

// ─── Row Scanning Helpers ───────────────────────────────────────────────────

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlarmRuleRow(scanner rowScanner) (*AlarmRule, error) {
	var r AlarmRule
	var sirensJSON, logic string
	var autoClear, enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&r.ID,
		&r.Name,
		&sirensJSON,
		&logic,
		&autoClear,
		&enabled,
		&r.MaxMuteMinutes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Logic = RuleLogic(logic)
	r.AutoClear = autoClear != 0
	r.Enabled = enabled != 0

	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		r.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		r.UpdatedAt = t
	}

	if sirensJSON != "" && sirensJSON != "[]" {
		if jsonErr := json.Unmarshal([]byte(sirensJSON), &r.SirenNames); jsonErr != nil {
			return nil, fmt.Errorf("unmarshalling siren names: %w", jsonErr)
		}
	}
	if r.SirenNames == nil {
		r.SirenNames = []string{}
	}

	return &r, nil
}

func scanConditionRow(scanner rowScanner) (*AlarmCondition, error) {
	var c AlarmCondition
	var sourceType, condition string
	var threshold sql.NullFloat64
	var enabled int
	var createdAt string

	err := scanner.Scan(
		&c.ID,
		&c.RuleID,
		&sourceType,
		&c.SourceName,
		&condition,
		&threshold,
		&enabled,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.SourceType = SourceType(sourceType)
	c.Condition = ConditionOp(condition)
	c.Enabled = enabled != 0

	if threshold.Valid {
		v := threshold.Float64
		c.Threshold = &v
	}
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		c.CreatedAt = t
	}

	return &c, nil
}

func scanInterlockRow(scanner rowScanner) (*InterlockRule, error) {
	var r InterlockRule
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&r.ID,
		&r.UpstreamName,
		&r.DownstreamName,
		&enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Enabled = enabled != 0
	if t, parseErr := time.Parse(time.RFC3339, createdAt); parseErr == nil {
		r.CreatedAt = t
	}
	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		r.UpdatedAt = t
	}

	return &r, nil
}

// ─── SQL Helpers ────────────────────────────────────────────────────────────

func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
