package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// Driver names accepted by OpenSQLStore
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SQLStore saves metadata records to SQLite or PostgreSQL
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore opens the database and creates the records table if needed
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	if driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", driver, err)
	}
	if driver == DriverSQLite {
		// the job queue is the only writer; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	store := &SQLStore{db: db, driver: driver}
	if err := store.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// ensureTable creates the nd3_records table if it doesn't exist
func (s *SQLStore) ensureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS nd3_records (
			id                 TEXT PRIMARY KEY,
			original_file_name TEXT NOT NULL,
			status             TEXT NOT NULL DEFAULT 'pending',
			meta               TEXT NOT NULL,
			created_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create nd3_records table: %w", err)
	}

	log.Printf("✓ nd3_records table ready (%s)", s.driver)
	return nil
}

// Save inserts the record with a new UUID and returns that ID
func (s *SQLStore) Save(ctx context.Context, meta *pipeline.Nd3Metadata) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	query := Rebind(s.driver, `
		INSERT INTO nd3_records (id, original_file_name, status, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query, id, meta.OriginalFileName, StatusProcessed, string(data), now, now); err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}
	return id, nil
}

// Get loads a record by ID
func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	query := Rebind(s.driver, `SELECT id, original_file_name, status, meta FROM nd3_records WHERE id = ?`)

	var rec Record
	var data string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.OriginalFileName, &rec.Status, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to query record %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(data), &rec.Meta); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return &rec, nil
}

// DB exposes the connection so the ingest ledger can share it
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Driver returns the database driver name
func (s *SQLStore) Driver() string {
	return s.driver
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// NopStore accepts records without persisting them
type NopStore struct{}

// Save returns a fresh ID and discards the record
func (NopStore) Save(ctx context.Context, meta *pipeline.Nd3Metadata) (string, error) {
	return uuid.New().String(), nil
}

// Close is a no-op
func (NopStore) Close() error { return nil }

// Rebind rewrites ? placeholders to $n for PostgreSQL
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
