package equipment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for equipment persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves equipment by its unique identifier.
	// Returns ErrEquipmentNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*Equipment, error)

	// GetByName retrieves equipment by its unique name.
	// Returns ErrEquipmentNotFound if it does not exist.
	GetByName(ctx context.Context, name string) (*Equipment, error)

	// List retrieves all equipment ordered by name.
	List(ctx context.Context) ([]Equipment, error)

	// ListByType retrieves all equipment of a specific type.
	ListByType(ctx context.Context, t EquipmentType) ([]Equipment, error)

	// ListEnabled retrieves all enabled equipment.
	ListEnabled(ctx context.Context) ([]Equipment, error)

	// Create inserts new equipment.
	// Returns ErrEquipmentExists if the ID or name is already taken.
	Create(ctx context.Context, e *Equipment) error

	// Update modifies existing equipment.
	// Returns ErrEquipmentNotFound if it does not exist.
	Update(ctx context.Context, e *Equipment) error

	// Delete removes equipment by ID.
	// Returns ErrEquipmentNotFound if it does not exist.
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const equipmentColumns = "id, name, type, bus_address, enabled, created_at, updated_at"

// GetByID retrieves equipment by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Equipment, error) {
	query := "SELECT " + equipmentColumns + " FROM equipment WHERE id = ?"

	row := r.db.QueryRowContext(ctx, query, id)
	e, err := scanEquipmentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("querying equipment by id: %w", err)
	}
	return e, nil
}

// GetByName retrieves equipment by its unique name.
func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*Equipment, error) {
	query := "SELECT " + equipmentColumns + " FROM equipment WHERE name = ?"

	row := r.db.QueryRowContext(ctx, query, name)
	e, err := scanEquipmentRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEquipmentNotFound
		}
		return nil, fmt.Errorf("querying equipment by name: %w", err)
	}
	return e, nil
}

// List retrieves all equipment ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Equipment, error) {
	query := "SELECT " + equipmentColumns + " FROM equipment ORDER BY name"
	return r.queryEquipment(ctx, query)
}

// ListByType retrieves all equipment of a specific type.
func (r *SQLiteRepository) ListByType(ctx context.Context, t EquipmentType) ([]Equipment, error) {
	query := "SELECT " + equipmentColumns + " FROM equipment WHERE type = ? ORDER BY name"
	return r.queryEquipment(ctx, query, string(t))
}

// ListEnabled retrieves all enabled equipment.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]Equipment, error) {
	query := "SELECT " + equipmentColumns + " FROM equipment WHERE enabled = 1 ORDER BY name"
	return r.queryEquipment(ctx, query)
}

// Create inserts new equipment.
func (r *SQLiteRepository) Create(ctx context.Context, e *Equipment) error {
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	query := `
		INSERT INTO equipment (id, name, type, bus_address, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID,
		e.Name,
		string(e.Type),
		e.BusAddress,
		boolToInt(e.Enabled),
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrEquipmentExists
		}
		return fmt.Errorf("inserting equipment: %w", err)
	}

	return nil
}

// Update modifies existing equipment.
func (r *SQLiteRepository) Update(ctx context.Context, e *Equipment) error {
	e.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE equipment
		SET name = ?, type = ?, bus_address = ?, enabled = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		e.Name,
		string(e.Type),
		e.BusAddress,
		boolToInt(e.Enabled),
		e.UpdatedAt.Format(time.RFC3339),
		e.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrEquipmentExists
		}
		return fmt.Errorf("updating equipment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEquipmentNotFound
	}

	return nil
}

// Delete removes equipment by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM equipment WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting equipment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrEquipmentNotFound
	}

	return nil
}

// queryEquipment executes a query and returns a slice of equipment.
func (r *SQLiteRepository) queryEquipment(ctx context.Context, query string, args ...any) ([]Equipment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying equipment: %w", err)
	}
	defer rows.Close()

	var items []Equipment
	for rows.Next() {
		e, err := scanEquipmentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning equipment: %w", err)
		}
		items = append(items, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating equipment: %w", err)
	}

	return items, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEquipmentRow scans a row or rows result into an Equipment.
func scanEquipmentRow(scanner rowScanner) (*Equipment, error) {
	var e Equipment
	var equipmentType string
	var enabled int
	var createdAt, updatedAt string

	err := scanner.Scan(
		&e.ID,
		&e.Name,
		&equipmentType,
		&e.BusAddress,
		&enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Type = EquipmentType(equipmentType)
	e.Enabled = enabled != 0

	var parseErr error
	e.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	e.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &e, nil
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
