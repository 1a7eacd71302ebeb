package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	_ "github.com/lib/pq"
)

// Runtime owns the DBOS context, the capture queue and a plain connection to
// the system database for status lookups
type Runtime struct {
	dbosContext dbos.DBOSContext
	captures    dbos.WorkflowQueue
	config      Config
	db          *sql.DB
	launched    bool
}

// NewRuntime connects to the system database and creates the capture queue.
// Workflows must be registered on Context() before Launch.
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DBOS_SYSTEM_DATABASE_URL is required")
	}
	cfg.WithDefaults()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid DBOS database url: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("DBOS system database unreachable: %w", err)
	}

	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Runtime{
		dbosContext: dbosCtx,
		// captures run one at a time per worker, matching the local queue
		captures: dbos.NewWorkflowQueue(dbosCtx, cfg.QueueName, dbos.WithWorkerConcurrency(1)),
		config:   cfg,
		db:       db,
	}, nil
}

// Launch starts dequeuing and recovers captures left pending by a previous run
func (r *Runtime) Launch() error {
	if err := dbos.Launch(r.dbosContext); err != nil {
		return err
	}
	r.launched = true
	log.Printf("✓ DBOS launched (app %s, queue %s)", r.config.AppName, r.config.QueueName)
	return nil
}

// Shutdown stops DBOS, waiting up to timeout for the running workflow, and
// closes the status connection
func (r *Runtime) Shutdown(timeout time.Duration) error {
	if r.launched {
		dbos.Shutdown(r.dbosContext, timeout)
		r.launched = false
	}
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// Context returns the DBOS context workflows are registered and run on
func (r *Runtime) Context() dbos.DBOSContext {
	return r.dbosContext
}

// QueueName returns the name of the capture queue
func (r *Runtime) QueueName() string {
	return r.config.QueueName
}
