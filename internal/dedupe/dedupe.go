package dedupe

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/tendant/nd3-capture-pipeline/internal/storage"
)

// Tracker counts how often each archive has been submitted for processing
type Tracker struct {
	db     *sql.DB
	driver string
}

// NewTracker creates a new dedupe tracker on an open record store database
func NewTracker(ctx context.Context, db *sql.DB, driver string) (*Tracker, error) {
	tracker := &Tracker{db: db, driver: driver}

	// Create table if not exists
	if err := tracker.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure dedupe table: %w", err)
	}

	return tracker, nil
}

// ensureTable creates the archive_dedupe table if it doesn't exist
func (t *Tracker) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS archive_dedupe (
			archive_name  TEXT PRIMARY KEY,
			last_job_id   TEXT,
			first_seen_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_seen_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			seen_count    INTEGER DEFAULT 1
		)
	`

	_, err := t.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create archive_dedupe table: %w", err)
	}

	log.Printf("✓ archive_dedupe table ready")
	return nil
}

// Record records an archive submission and returns the seen count
func (t *Tracker) Record(ctx context.Context, archiveName string, jobID string) (int, error) {
	// Upsert: increment seen_count if exists, insert if not
	query := storage.Rebind(t.driver, `
		INSERT INTO archive_dedupe (archive_name, last_job_id, first_seen_at, last_seen_at, seen_count)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, 1)
		ON CONFLICT (archive_name) DO UPDATE
		SET last_seen_at = CURRENT_TIMESTAMP,
		    seen_count = archive_dedupe.seen_count + 1,
		    last_job_id = excluded.last_job_id
		RETURNING seen_count
	`)

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, archiveName, jobID).Scan(&seenCount)
	if err != nil {
		return 0, fmt.Errorf("failed to record dedupe: %w", err)
	}

	return seenCount, nil
}

// GetSeenCount retrieves the seen count for an archive
func (t *Tracker) GetSeenCount(ctx context.Context, archiveName string) (int, error) {
	query := storage.Rebind(t.driver, `SELECT seen_count FROM archive_dedupe WHERE archive_name = ?`)

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, archiveName).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}

	return seenCount, nil
}
