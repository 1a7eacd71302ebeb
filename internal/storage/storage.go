package storage

import (
	"context"

	"github.com/tendant/nd3-capture-pipeline/pkg/pipeline"
)

// RecordStore persists finished metadata records
type RecordStore interface {
	// Save stores the record and returns its ID
	Save(ctx context.Context, meta *pipeline.Nd3Metadata) (string, error)

	// Close releases the underlying connection
	Close() error
}

// Record is a stored metadata row
type Record struct {
	ID               string               `json:"id"`
	OriginalFileName string               `json:"originalFileName"`
	Status           string               `json:"status"`
	Meta             pipeline.Nd3Metadata `json:"meta"`
}

// StatusProcessed is the status of every record saved by the pipeline
const StatusProcessed = "processed"
