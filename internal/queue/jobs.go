package queue

import (
	"context"
	"time"

	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// FetchFunc downloads a job's source video and returns its local path
type FetchFunc func(ctx context.Context) (string, error)

// Job represents one split request
type Job struct {
	ID          string          `json:"job_id"`
	RequestName string          `json:"request_name"`
	SourceType  string          `json:"source_type"`
	VideoPath   string          `json:"-"`
	Segments    []types.Segment `json:"-"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Progress    types.Progress  `json:"progress"`
	Report      *types.Report   `json:"report,omitempty"`
	ArchivePath string          `json:"archive_path,omitempty"`
	ReportPath  string          `json:"report_path,omitempty"`
	PublishURLs []string        `json:"publish_urls,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	// Fetch, when set, runs on the worker before extraction to
	// produce VideoPath (remote and Drive sources).
	Fetch FetchFunc `json:"-"`
}

// NewJob creates a new job with default values
func NewJob(id, requestName, sourceType, videoPath string, segments []types.Segment) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		RequestName: requestName,
		SourceType:  sourceType,
		VideoPath:   videoPath,
		Segments:    segments,
		Status:      types.StatusQueued,
		Progress:    types.Progress{JobID: id, Total: len(segments)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Done reports whether the job reached a terminal status
func (j *Job) Done() bool {
	return j.Status == types.StatusCompleted || j.Status == types.StatusFailed
}
