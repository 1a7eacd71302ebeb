package dbosruntime

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://localhost/nd3"}
	cfg.WithDefaults()

	assert.Equal(t, "nd3d", cfg.AppName)
	assert.Equal(t, "nd3-captures", cfg.QueueName)

	cfg = Config{AppName: "worker", QueueName: "q"}
	cfg.WithDefaults()
	assert.Equal(t, "worker", cfg.AppName)
	assert.Equal(t, "q", cfg.QueueName)
}

func TestNewRuntimeRequiresDatabase(t *testing.T) {
	_, err := NewRuntime(context.Background(), Config{})
	assert.EqualError(t, err, "DBOS_SYSTEM_DATABASE_URL is required")
}

// statusDB mimics the DBOS system schema on sqlite
func statusDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `ATTACH DATABASE ':memory:' AS dbos`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE dbos.workflow_status (
		workflow_uuid TEXT PRIMARY KEY,
		status TEXT,
		name TEXT,
		queue_name TEXT,
		created_at INTEGER,
		updated_at INTEGER
	)`)
	require.NoError(t, err)
	return db
}

func TestQueryWorkflowStatus(t *testing.T) {
	db := statusDB(t)
	_, err := db.Exec(`INSERT INTO dbos.workflow_status VALUES ('capture1-1700000000123', 'SUCCESS', 'captureWorkflow', NULL, 1, 2)`)
	require.NoError(t, err)

	info, err := QueryWorkflowStatus(context.Background(), db, "capture1-1700000000123")
	require.NoError(t, err)
	assert.Equal(t, &WorkflowStatusInfo{
		WorkflowUUID: "capture1-1700000000123",
		Status:       "SUCCESS",
		Name:         "captureWorkflow",
		CreatedAt:    1,
		UpdatedAt:    2,
	}, info)
}

func TestQueryWorkflowStatus_NotFound(t *testing.T) {
	db := statusDB(t)

	_, err := QueryWorkflowStatus(context.Background(), db, "missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
