package types

import (
	"strconv"
	"time"
)

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusFetching   = "FETCHING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// Source type constants
const (
	SourceUpload = "upload"
	SourceGDrive = "gdrive"
	SourceRemote = "remote"
	SourceCLI    = "cli"
)

// Segment outcome constants
const (
	SegmentSucceeded = "SUCCEEDED"
	SegmentFailed    = "FAILED"
)

// Segment is one validated row of a diarization table
type Segment struct {
	Row     int     `json:"row"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`

	// Raw renderings of start/end as they appeared in the table.
	StartText string `json:"-"`
	EndText   string `json:"-"`
}

// Duration returns end - start in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// StartLabel returns the start time as written in the input table
func (s Segment) StartLabel() string {
	return label(s.StartText, s.Start)
}

// EndLabel returns the end time as written in the input table
func (s Segment) EndLabel() string {
	return label(s.EndText, s.End)
}

func label(raw string, v float64) string {
	if raw != "" {
		return raw
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ExtractionResult is the outcome of processing one segment
type ExtractionResult struct {
	Segment   Segment   `json:"segment"`
	Status    string    `json:"status"`
	ClipPath  string    `json:"clip_path,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Succeeded reports whether the segment produced a clip
func (r ExtractionResult) Succeeded() bool {
	return r.Status == SegmentSucceeded
}

// Failure identifies one failed segment in a report
type Failure struct {
	Row     int       `json:"row"`
	Segment Segment   `json:"segment"`
	Kind    ErrorKind `json:"kind"`
	Error   string    `json:"error"`
}

// Report aggregates the results of one pipeline run
type Report struct {
	Total       int                 `json:"total"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	Failures    []Failure           `json:"failures"`
	Results     []ExtractionResult  `json:"results"`
	Speakers    map[string][]string `json:"speakers"`
	ArchivePath string              `json:"archive_path"`
	ArchiveSize int64               `json:"archive_size"`
	Elapsed     time.Duration       `json:"elapsed"`
}

// Progress is emitted after each segment is processed
type Progress struct {
	JobID     string `json:"job_id,omitempty"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Row       int    `json:"row"`
	Speaker   string `json:"speaker"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// Fraction returns completed/total in [0,1]
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}
