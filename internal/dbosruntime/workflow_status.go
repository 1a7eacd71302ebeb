package dbosruntime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrWorkflowNotFound is returned when no workflow has the requested id
var ErrWorkflowNotFound = errors.New("workflow not found")

// WorkflowStatusInfo represents the status of a durable capture workflow
type WorkflowStatusInfo struct {
	WorkflowUUID string `json:"workflow_uuid" yaml:"workflow_uuid"`
	Status       string `json:"status" yaml:"status"`
	Name         string `json:"name" yaml:"name"`
	QueueName    string `json:"queue_name,omitempty" yaml:"queue_name,omitempty"`
	CreatedAt    int64  `json:"created_at" yaml:"created_at"`
	UpdatedAt    int64  `json:"updated_at" yaml:"updated_at"`
}

const statusQuery = `
	SELECT workflow_uuid, status, name, COALESCE(queue_name, ''), created_at, updated_at
	FROM dbos.workflow_status
	WHERE workflow_uuid = $1
`

// GetWorkflowStatus retrieves the status of a workflow from the DBOS status table
func (r *Runtime) GetWorkflowStatus(ctx context.Context, workflowUUID string) (*WorkflowStatusInfo, error) {
	if r.db == nil {
		return nil, errors.New("DBOS runtime is shut down")
	}
	return QueryWorkflowStatus(ctx, r.db, workflowUUID)
}

// QueryWorkflowStatus reads one row of dbos.workflow_status through db
func QueryWorkflowStatus(ctx context.Context, db *sql.DB, workflowUUID string) (*WorkflowStatusInfo, error) {
	var info WorkflowStatusInfo
	err := db.QueryRowContext(ctx, statusQuery, workflowUUID).Scan(
		&info.WorkflowUUID,
		&info.Status,
		&info.Name,
		&info.QueueName,
		&info.CreatedAt,
		&info.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", workflowUUID, ErrWorkflowNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow status: %w", err)
	}

	return &info, nil
}
