package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Query limits.
const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Filter controls which events to return. Zero-valued fields are ignored.
type Filter struct {
	EquipmentName string    // optional: filter by equipment name
	EventType     string    // optional: filter by event type
	Since         time.Time // optional: events at or after this instant
	Until         time.Time // optional: events before this instant
	Limit         int       // default 100, max 500
}

// Repository defines the interface for event log operations.
type Repository interface {
	LogEvent(ctx context.Context, e Event) error
	List(ctx context.Context, filter Filter) ([]Event, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository stores events in the event_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new event log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// LogEvent inserts an event. ID and Timestamp are generated if empty.
func (r *SQLiteRepository) LogEvent(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()[:8]
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var metadataJSON *string
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling event metadata: %w", err)
		}
		s := string(b)
		metadataJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (id, equipment_name, event_type, from_value, to_value, mode, triggered_by, metadata, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EquipmentName, e.EventType,
		nullableString(e.FromValue), nullableString(e.ToValue),
		e.Mode, e.TriggeredBy, metadataJSON,
		e.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// List returns events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	var conditions []string
	var args []any

	if filter.EquipmentName != "" {
		conditions = append(conditions, "equipment_name = ?")
		args = append(args, filter.EquipmentName)
	}
	if filter.EventType != "" {
		conditions = append(conditions, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, equipment_name, event_type, from_value, to_value, mode, triggered_by, metadata, timestamp FROM event_log %s ORDER BY timestamp DESC LIMIT ?",
		where,
	)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var list []Event
	for rows.Next() {
		var e Event
		var fromValue, toValue, metadataJSON sql.NullString
		var timestamp string

		if err := rows.Scan(&e.ID, &e.EquipmentName, &e.EventType,
			&fromValue, &toValue, &e.Mode, &e.TriggeredBy, &metadataJSON, &timestamp); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		if fromValue.Valid {
			e.FromValue = fromValue.String
		}
		if toValue.Valid {
			e.ToValue = toValue.String
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			var metadata map[string]any
			if json.Unmarshal([]byte(metadataJSON.String), &metadata) == nil {
				e.Metadata = metadata
			}
		}

		t, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, fmt.Errorf("parsing event timestamp %q: %w", timestamp, err)
		}
		e.Timestamp = t

		list = append(list, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}

	if list == nil {
		list = []Event{}
	}

	return list, nil
}

// PruneBefore deletes events older than the cutoff and returns how many
// were removed. Called periodically so the event log doesn't grow without
// bound on a long-lived controller.
func (r *SQLiteRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM event_log WHERE timestamp < ?",
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning events: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return deleted, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
