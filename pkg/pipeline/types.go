package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// CaptureJob is one archive waiting for, or going through, processing
type CaptureJob struct {
	ID          string    `json:"id"`
	ArchivePath string    `json:"archive_path"`
	BaseName    string    `json:"base_name"`
	OutputDir   string    `json:"output_dir,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewCaptureJob derives a job from an archive path. The ID is the archive
// name without suffix plus the creation instant in unix milliseconds.
func NewCaptureJob(archivePath, suffix string, now time.Time) CaptureJob {
	base := strings.TrimSuffix(filepath.Base(archivePath), suffix)
	return CaptureJob{
		ID:          fmt.Sprintf("%s-%d", base, now.UnixMilli()),
		ArchivePath: archivePath,
		BaseName:    base,
		CreatedAt:   now,
	}
}

// Stage is the coordinator state of a job
type Stage string

// Stage constants
const (
	StageQueued        Stage = "queued"
	StageExtracting    Stage = "extracting"
	StageOrchestrating Stage = "orchestrating"
	StageSynthesizing  Stage = "synthesizing"
	StagePersisting    Stage = "persisting"
	StageDone          Stage = "done"
	StageErrored       Stage = "errored"
)

// JobType constants
const (
	JobCapture      = "capture"
	JobResynthesize = "resynthesize"
)

// Event names published to the notification sink
const (
	EventDecompressionComplete = "decompressionComplete"
	EventShellCommandsDone     = "shellCommandsDone"
	EventFileProcessed         = "fileProcessed"
	EventJobFailed             = "jobFailed"
)

// UnknownCommand is the akallCommand value when capture parameters cannot be decoded
const UnknownCommand = "UNKNOWN"

// Timestamp is the capture instant parsed from the original image name
type Timestamp struct {
	Unix          *string `json:"unix"`
	HumanReadable *string `json:"humanReadable"`
}

// CaptureParameters are decoded from the color and depth file names
type CaptureParameters struct {
	FrameRate       *int    `json:"frameRate"`
	Compression     *string `json:"compression"`
	ColorResolution *string `json:"colorResolution"`
	DepthMode       *string `json:"depthMode"`
	DepthResolution *string `json:"depthResolution"`
	FieldOfView     *string `json:"fieldOfView"`
	WorkingRange    *string `json:"workingRange"`
	ExposureTime    *string `json:"exposureTime"`
}

// Channels holds the per-channel color images
type Channels struct {
	Blue  *string `json:"blue"`
	Green *string `json:"green"`
	Red   *string `json:"red"`
}

// Reconstruction pairs a point cloud with the color image it was built from
type Reconstruction struct {
	PLY        string `json:"ply"`
	ColorImage string `json:"colorImage"`
}

// Outputs lists every derived artifact found in an output directory
type Outputs struct {
	OriginalJPEG      *string          `json:"originalJPEG"`
	Channels          Channels         `json:"channels"`
	Nd3Reconstruction []Reconstruction `json:"nd3Reconstruction"`
	RawConverted      []string         `json:"rawConverted"`
	DepthImage        *string          `json:"depthImage"`
	NIRImage          *string          `json:"nirImage"`
	Thumbnail         *string          `json:"thumbnail"`
}

// Nd3Metadata is the record written to meta.json and handed to persistence
type Nd3Metadata struct {
	OriginalFileName  string            `json:"originalFileName"`
	ProcessedPath     string            `json:"processedPath"`
	Timestamp         Timestamp         `json:"timestamp"`
	AkallCommand      string            `json:"akallCommand"`
	CaptureParameters CaptureParameters `json:"captureParameters"`
	Outputs           Outputs           `json:"outputs"`
}

// Event is a lifecycle notification for a job
type Event struct {
	Name    string            `json:"event"`
	JobID   string            `json:"job_id"`
	Stage   Stage             `json:"stage"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Request asks a workflow to run against a capture. For resynthesis only
// Capture.OutputDir (and optionally Capture.BaseName) is used.
type Request struct {
	Job     string     `json:"job"`
	Capture CaptureJob `json:"capture"`
}
