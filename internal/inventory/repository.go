package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
)

// SQLiteRepository implements Repository using SQLite.
//
// The upsert statement is prepared once and reused; the recorder calls
// Upsert after every successful poll cycle, so it is the hot path.
//
// Thread Safety: All methods are safe for concurrent use.
type SQLiteRepository struct {
	db *sql.DB

	upsertStmt *sql.Stmt
	stmtMu     sync.Mutex
}

// NewSQLiteRepository creates a new SQLite-backed inventory repository.
// The db parameter should be an open connection with the devices table
// migrated.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts the record or refreshes an existing row.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("device id is required")
	}

	stmt, err := r.prepareUpsert()
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		rec.ID,
		rec.Name,
		string(rec.Category),
		rec.Manufacturer,
		rec.Model,
		rec.FirmwareVersion,
		rec.FirstSeen.UTC().Format(time.RFC3339),
		rec.LastSeen.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}

	return nil
}

// Get retrieves a record by device ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	query := `
		SELECT id, name, category, manufacturer, model, firmware_version,
			first_seen, last_seen
		FROM devices
		WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return rec, nil
}

// List retrieves all records ordered by device ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	query := `
		SELECT id, name, category, manufacturer, model, firmware_version,
			first_seen, last_seen
		FROM devices
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	return records, nil
}

// Count returns the number of devices ever seen.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting devices: %w", err)
	}
	return count, nil
}

// Close releases the prepared statement. The repository is unusable
// afterwards.
func (r *SQLiteRepository) Close() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.upsertStmt == nil {
		return nil
	}
	err := r.upsertStmt.Close()
	r.upsertStmt = nil
	if err != nil {
		return fmt.Errorf("closing upsert statement: %w", err)
	}
	return nil
}

// prepareUpsert returns the upsert statement, preparing it on first use.
func (r *SQLiteRepository) prepareUpsert() (*sql.Stmt, error) {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.upsertStmt != nil {
		return r.upsertStmt, nil
	}

	// first_seen survives the conflict; identity fields and last_seen
	// track the latest snapshot.
	stmt, err := r.db.Prepare(`
		INSERT INTO devices (id, name, category, manufacturer, model, firmware_version, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			manufacturer = excluded.manufacturer,
			model = excluded.model,
			firmware_version = excluded.firmware_version,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return nil, fmt.Errorf("preparing upsert statement: %w", err)
	}

	r.upsertStmt = stmt
	return stmt, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans a row or rows result into a Record.
func scanRecord(scanner rowScanner) (*Record, error) {
	var rec Record
	var category string
	var firstSeen, lastSeen string

	err := scanner.Scan(
		&rec.ID,
		&rec.Name,
		&category,
		&rec.Manufacturer,
		&rec.Model,
		&rec.FirmwareVersion,
		&firstSeen,
		&lastSeen,
	)
	if err != nil {
		return nil, err
	}

	rec.Category = device.Category(category)

	rec.FirstSeen, err = time.Parse(time.RFC3339, firstSeen)
	if err != nil {
		return nil, fmt.Errorf("parsing first_seen: %w", err)
	}
	rec.LastSeen, err = time.Parse(time.RFC3339, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}

	return &rec, nil
}
