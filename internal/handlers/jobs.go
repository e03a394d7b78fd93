package handlers

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-splitter/internal/queue"
	"github.com/codebuildervaibhav/diarization-splitter/internal/storage"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

const defaultListLimit = 50

// JobsHandler serves job status, history and archives
type JobsHandler struct {
	workerPool *queue.WorkerPool
	db         *storage.MetadataDB
}

// NewJobsHandler creates a new jobs handler. db may be nil.
func NewJobsHandler(workerPool *queue.WorkerPool, db *storage.MetadataDB) *JobsHandler {
	return &JobsHandler{
		workerPool: workerPool,
		db:         db,
	}
}

// List returns live and stored jobs, newest first
func (h *JobsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	seen := make(map[string]bool)
	jobs := []storage.JobRecord{}
	for _, job := range h.workerPool.List() {
		seen[job.ID] = true
		jobs = append(jobs, recordOf(job))
	}

	if h.db != nil {
		stored, err := h.db.ListJobs(limit)
		if err != nil {
			return errorJSON(c, 500, err.Error(), "ERR_DATABASE")
		}
		for _, rec := range stored {
			if !seen[rec.JobID] {
				jobs = append(jobs, rec)
			}
		}
	}

	sort.SliceStable(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return c.JSON(fiber.Map{"jobs": jobs})
}

// Status returns a job with its progress and report
func (h *JobsHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("id")

	if job, ok := h.workerPool.Get(jobID); ok {
		return c.JSON(job)
	}

	rec, err := h.stored(jobID)
	if err != nil {
		return h.lookupError(c, err)
	}
	results, err := h.db.GetResults(jobID)
	if err != nil {
		return errorJSON(c, 500, err.Error(), "ERR_DATABASE")
	}
	return c.JSON(fiber.Map{
		"job":     rec,
		"results": results,
	})
}

// Archive sends the job's zip archive
func (h *JobsHandler) Archive(c *fiber.Ctx) error {
	jobID := c.Params("id")

	var status, archivePath, name string
	if job, ok := h.workerPool.Get(jobID); ok {
		status, archivePath, name = job.Status, job.ArchivePath, job.RequestName
	} else {
		rec, err := h.stored(jobID)
		if err != nil {
			return h.lookupError(c, err)
		}
		status, archivePath, name = rec.Status, rec.ArchivePath, rec.RequestName
	}

	if status != types.StatusCompleted {
		return errorJSON(c, fiber.StatusConflict, "Job has not completed (status "+status+")", "ERR_NOT_READY")
	}
	if archivePath == "" {
		return errorJSON(c, 404, "Archive not found", "ERR_NOT_FOUND")
	}
	if _, err := os.Stat(archivePath); err != nil {
		return errorJSON(c, 404, "Archive file is no longer available", "ERR_NOT_FOUND")
	}

	filename := filepath.Base(archivePath)
	if name != "" {
		filename = sanitizeDownloadName(name) + ".zip"
	}
	return c.Download(archivePath, filename)
}

func (h *JobsHandler) stored(jobID string) (*storage.JobRecord, error) {
	if h.db == nil {
		return nil, storage.ErrJobNotFound
	}
	return h.db.GetJob(jobID)
}

func (h *JobsHandler) lookupError(c *fiber.Ctx, err error) error {
	if errors.Is(err, storage.ErrJobNotFound) {
		return errorJSON(c, 404, "Job not found", "ERR_NOT_FOUND")
	}
	return errorJSON(c, 500, err.Error(), "ERR_DATABASE")
}

func recordOf(job queue.Job) storage.JobRecord {
	rec := storage.JobRecord{
		JobID:       job.ID,
		RequestName: job.RequestName,
		SourceType:  job.SourceType,
		Status:      job.Status,
		Error:       job.Error,
		ArchivePath: job.ArchivePath,
		ReportPath:  job.ReportPath,
		PublishURLs: job.PublishURLs,
		Total:       len(job.Segments),
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if job.Report != nil {
		rec.Total, rec.Succeeded, rec.Failed = job.Report.Total, job.Report.Succeeded, job.Report.Failed
	}
	return rec
}

func sanitizeDownloadName(name string) string {
	out := []rune{}
	for _, r := range name {
		switch {
		case r < 0x20, r == 0x7f, r == '"', r == '/', r == '\\':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "segments"
	}
	return string(out)
}
