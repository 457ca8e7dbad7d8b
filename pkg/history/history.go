// Package history keeps a local record of launched instances in a
// SQLite file, so past launches remain inspectable after the instances
// are gone. Recording is best-effort from the CLI's point of view: a
// failed write never fails the command that triggered it.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is one launch, updated as the instance moves through its life.
type Record struct {
	// InstanceID is the launched instance.
	InstanceID string

	// Deployment is the workspace deployment the instance came from.
	Deployment string

	// WorkspaceType is the deployment's workspace type.
	WorkspaceType string

	// Region is where the instance ran.
	Region string

	// KeyPath is where the secret key was written, when one was.
	KeyPath string

	// LaunchedAt is when the launch request succeeded.
	LaunchedAt time.Time

	// TerminatedAt is when termination was requested, nil while unknown.
	TerminatedAt *time.Time

	// FinalStatus is the last observed status, empty while running.
	FinalStatus string
}

// Store is a launch-history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating as needed) the history database at path and
// brings its schema up to date.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs the embedded schema migrations.
func (s *Store) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordLaunch inserts a new launch record. Launching the same instance
// twice is a caller bug and surfaces as a constraint error.
func (s *Store) RecordLaunch(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO launches (instance_id, wdeployment_id, workspace_type, region, key_path, launched_at, terminated_at, final_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.InstanceID,
		rec.Deployment,
		rec.WorkspaceType,
		rec.Region,
		rec.KeyPath,
		rec.LaunchedAt,
		rec.TerminatedAt,
		rec.FinalStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to record launch: %w", err)
	}
	return nil
}

// RecordTermination marks a launch as finished with its final status.
// Terminations of instances this store never saw launch are ignored.
func (s *Store) RecordTermination(ctx context.Context, instanceID, finalStatus string, at time.Time) error {
	query := `
		UPDATE launches
		SET terminated_at = ?, final_status = ?
		WHERE instance_id = ?
	`

	if _, err := s.db.ExecContext(ctx, query, at, finalStatus, instanceID); err != nil {
		return fmt.Errorf("failed to record termination: %w", err)
	}
	return nil
}

// List returns launch records, most recent first. A non-positive limit
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT instance_id, wdeployment_id, workspace_type, region, key_path, launched_at, terminated_at, final_status
		FROM launches
		ORDER BY launched_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list launches: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.InstanceID,
			&rec.Deployment,
			&rec.WorkspaceType,
			&rec.Region,
			&rec.KeyPath,
			&rec.LaunchedAt,
			&rec.TerminatedAt,
			&rec.FinalStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan launch record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read launch records: %w", err)
	}
	return records, nil
}
