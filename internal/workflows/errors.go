package workflows

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not registered
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExtraction is matched by every error that abandoned a job before its tools ran
	ErrExtraction = errors.New("archive extraction failed")

	// ErrPersistence is matched by every error from the record store
	ErrPersistence = errors.New("record persistence failed")

	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid workflow request")
)

// PersistenceError is a record store failure. The job's files stay on disk.
type PersistenceError struct {
	JobID string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting %s: %v", e.JobID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPersistence) hold
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// MetadataWriteError is a failed meta.json write. It is a warning: the
// record still goes to persistence.
type MetadataWriteError struct {
	Dir string
	Err error
}

func (e *MetadataWriteError) Error() string {
	return fmt.Sprintf("writing metadata in %s: %v", e.Dir, e.Err)
}

func (e *MetadataWriteError) Unwrap() error { return e.Err }
