package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// ErrJobNotFound is returned when a job ID has no stored record
var ErrJobNotFound = errors.New("job not found")

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// JobRecord is the persisted summary of a job
type JobRecord struct {
	JobID       string    `json:"job_id"`
	RequestName string    `json:"request_name"`
	SourceType  string    `json:"source_type"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	ArchivePath string    `json:"archive_path,omitempty"`
	ReportPath  string    `json:"report_path,omitempty"`
	PublishURLs []string  `json:"publish_urls,omitempty"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MetadataDB handles SQLite database operations
type MetadataDB struct {
	db *sql.DB
}

// NewMetadataDB creates a new metadata database
func NewMetadataDB(dbPath string) (*MetadataDB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		request_name TEXT NOT NULL,
		source_type TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		archive_path TEXT NOT NULL DEFAULT '',
		report_path TEXT NOT NULL DEFAULT '',
		publish_urls TEXT NOT NULL DEFAULT '',
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS segment_results (
		job_id TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		start_seconds REAL NOT NULL,
		end_seconds REAL NOT NULL,
		speaker TEXT NOT NULL,
		status TEXT NOT NULL,
		clip_path TEXT NOT NULL DEFAULT '',
		error_kind TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (job_id, row_number)
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_request_name ON jobs(request_name);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &MetadataDB{db: db}, nil
}

// SaveJob inserts or updates a job record
func (mdb *MetadataDB) SaveJob(rec JobRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	query := `
	INSERT INTO jobs (job_id, request_name, source_type, status, error, archive_path, report_path,
		publish_urls, total, succeeded, failed, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(job_id) DO UPDATE SET
		status = excluded.status,
		error = excluded.error,
		archive_path = excluded.archive_path,
		report_path = excluded.report_path,
		publish_urls = excluded.publish_urls,
		total = excluded.total,
		succeeded = excluded.succeeded,
		failed = excluded.failed,
		updated_at = excluded.updated_at
	`

	_, err := mdb.db.Exec(query, rec.JobID, rec.RequestName, rec.SourceType, rec.Status, rec.Error,
		rec.ArchivePath, rec.ReportPath, joinURLs(rec.PublishURLs), rec.Total, rec.Succeeded, rec.Failed,
		formatTime(rec.CreatedAt), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", rec.JobID, err)
	}
	return nil
}

// SaveResults replaces the stored per-segment results of a job
func (mdb *MetadataDB) SaveResults(jobID string, results []types.ExtractionResult) error {
	tx, err := mdb.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM segment_results WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}

	stmt, err := tx.Prepare(`
	INSERT INTO segment_results (job_id, row_number, start_seconds, end_seconds, speaker, status, clip_path, error_kind, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		seg := r.Segment
		if _, err := stmt.Exec(jobID, seg.Row, seg.Start, seg.End, seg.Speaker, r.Status,
			r.ClipPath, string(r.ErrorKind), r.Error); err != nil {
			return fmt.Errorf("failed to save result for row %d: %w", seg.Row, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by ID
func (mdb *MetadataDB) GetJob(jobID string) (*JobRecord, error) {
	row := mdb.db.QueryRow(selectJobs+` WHERE job_id = ?`, jobID)
	rec, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return rec, nil
}

// ListJobs returns the most recent jobs first
func (mdb *MetadataDB) ListJobs(limit int) ([]JobRecord, error) {
	rows, err := mdb.db.Query(selectJobs+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []JobRecord{}
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read job: %w", err)
		}
		jobs = append(jobs, *rec)
	}
	return jobs, rows.Err()
}

// GetResults returns the stored per-segment results of a job in row order
func (mdb *MetadataDB) GetResults(jobID string) ([]types.ExtractionResult, error) {
	rows, err := mdb.db.Query(`
	SELECT row_number, start_seconds, end_seconds, speaker, status, clip_path, error_kind, error
	FROM segment_results WHERE job_id = ? ORDER BY row_number
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []types.ExtractionResult
	for rows.Next() {
		var (
			r    types.ExtractionResult
			kind string
		)
		if err := rows.Scan(&r.Segment.Row, &r.Segment.Start, &r.Segment.End, &r.Segment.Speaker,
			&r.Status, &r.ClipPath, &kind, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to read result: %w", err)
		}
		r.ErrorKind = types.ErrorKind(kind)
		results = append(results, r)
	}
	return results, rows.Err()
}

// Close closes the database connection
func (mdb *MetadataDB) Close() error {
	return mdb.db.Close()
}

const selectJobs = `
	SELECT job_id, request_name, source_type, status, error, archive_path, report_path,
		publish_urls, total, succeeded, failed, created_at, updated_at
	FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*JobRecord, error) {
	var (
		rec                  JobRecord
		urls                 string
		createdAt, updatedAt string
	)
	err := s.Scan(&rec.JobID, &rec.RequestName, &rec.SourceType, &rec.Status, &rec.Error,
		&rec.ArchivePath, &rec.ReportPath, &urls, &rec.Total, &rec.Succeeded, &rec.Failed,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.PublishURLs = splitURLs(urls)
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func joinURLs(urls []string) string {
	return strings.Join(urls, "\n")
}

func splitURLs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
