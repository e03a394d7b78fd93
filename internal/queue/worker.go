package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
	"github.com/codebuildervaibhav/diarization-splitter/internal/pipeline"
	"github.com/codebuildervaibhav/diarization-splitter/internal/storage"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// ErrQueueFull is returned by Enqueue when the job buffer is full
var ErrQueueFull = errors.New("job queue is full")

// ErrPoolStopped is returned by Enqueue after Stop
var ErrPoolStopped = errors.New("worker pool is stopped")

// MediaBackend opens source videos and cuts clips from them
type MediaBackend interface {
	Open(ctx context.Context, path string) (*media.Source, error)
	pipeline.Trimmer
}

// Config configures a WorkerPool
type Config struct {
	Workers        int
	QueueSize      int
	ScratchDir     string
	PublishBackoff time.Duration
}

// WorkerPool manages a pool of workers processing split jobs
type WorkerPool struct {
	logger     zerolog.Logger
	cfg        Config
	backend    MediaBackend
	local      *storage.LocalStorage
	db         *storage.MetadataDB
	publishers []storage.Publisher

	jobQueue chan *Job
	wg       sync.WaitGroup
	cancel   context.CancelFunc

	mu          sync.RWMutex
	stopped     bool
	jobs        map[string]*Job
	subscribers map[string][]chan types.Progress
}

// NewWorkerPool creates a new worker pool. db may be nil and publishers
// may be empty.
func NewWorkerPool(
	logger zerolog.Logger,
	cfg Config,
	backend MediaBackend,
	local *storage.LocalStorage,
	db *storage.MetadataDB,
	publishers ...storage.Publisher,
) *WorkerPool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 100
	}
	if cfg.PublishBackoff <= 0 {
		cfg.PublishBackoff = time.Second
	}
	return &WorkerPool{
		logger:      logging.WithComponent(logger, "queue"),
		cfg:         cfg,
		backend:     backend,
		local:       local,
		db:          db,
		publishers:  publishers,
		jobQueue:    make(chan *Job, cfg.QueueSize),
		jobs:        make(map[string]*Job),
		subscribers: make(map[string][]chan types.Progress),
	}
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (wp *WorkerPool) Start(ctx context.Context) {
	ctx, wp.cancel = context.WithCancel(ctx)
	wp.logger.Info().Int("workers", wp.cfg.Workers).Msg("starting worker pool")
	for i := 0; i < wp.cfg.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop cancels in-flight work and waits for the workers to exit
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	if wp.cancel != nil {
		wp.cancel()
	}
	wp.wg.Wait()
}

// Enqueue registers a job and adds it to the queue
func (wp *WorkerPool) Enqueue(job *Job) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	job.Status = types.StatusQueued
	job.Progress = types.Progress{JobID: job.ID, Total: len(job.Segments), Message: "Queued"}
	job.UpdatedAt = time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	select {
	case wp.jobQueue <- job:
	default:
		return ErrQueueFull
	}
	wp.jobs[job.ID] = job

	wp.logger.Info().
		Str("job_id", job.ID).
		Str("source", job.SourceType).
		Str("name", job.RequestName).
		Int("segments", len(job.Segments)).
		Msg("job enqueued")
	return nil
}

// Get returns a snapshot of a job known to this process
func (wp *WorkerPool) Get(id string) (Job, bool) {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	job, ok := wp.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all jobs, newest first
func (wp *WorkerPool) List() []Job {
	wp.mu.RLock()
	jobs := make([]Job, 0, len(wp.jobs))
	for _, job := range wp.jobs {
		jobs = append(jobs, *job)
	}
	wp.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs
}

// Subscribe returns a channel of progress updates for a job. The channel
// is closed when the job finishes, immediately if it already has. Slow
// readers miss intermediate updates. Call the returned func to unsubscribe.
func (wp *WorkerPool) Subscribe(id string) (<-chan types.Progress, func(), bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	job, ok := wp.jobs[id]
	if !ok {
		return nil, func() {}, false
	}

	ch := make(chan types.Progress, 64)
	if job.Done() {
		final := job.Progress
		final.Status = job.Status
		ch <- final
		close(ch)
		return ch, func() {}, true
	}

	wp.subscribers[id] = append(wp.subscribers[id], ch)
	unsubscribe := func() {
		wp.mu.Lock()
		defer wp.mu.Unlock()
		subs := wp.subscribers[id]
		for i, c := range subs {
			if c == ch {
				wp.subscribers[id] = append(subs[:i], subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsubscribe, true
}

// update applies fn to a job under the lock and fans the resulting
// progress out to subscribers
func (wp *WorkerPool) update(job *Job, fn func(*Job)) {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	fn(job)
	job.UpdatedAt = time.Now()
	job.Progress.JobID = job.ID

	progress := job.Progress
	progress.Status = job.Status
	for _, ch := range wp.subscribers[job.ID] {
		select {
		case ch <- progress:
		default:
		}
	}

	if job.Done() {
		for _, ch := range wp.subscribers[job.ID] {
			close(ch)
		}
		delete(wp.subscribers, job.ID)
	}
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	logger := wp.logger.With().Int("worker", id).Logger()
	logger.Debug().Msg("worker started")

	for job := range wp.jobQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("job_id", job.ID).
						Str("stack", string(debug.Stack())).
						Msgf("panic processing job: %v", r)
					wp.fail(job, fmt.Errorf("worker panic: %v", r))
				}
			}()

			wp.processJob(ctx, logger, job)
		}()
	}
}

// processJob runs fetch, extraction, storage and publishing for one job
func (wp *WorkerPool) processJob(ctx context.Context, logger zerolog.Logger, job *Job) {
	logger = logger.With().Str("job_id", job.ID).Logger()
	logger.Info().Msg("processing job")
	defer wp.cleanupTempFile(logger, job)

	if err := ctx.Err(); err != nil {
		wp.fail(job, err)
		return
	}

	if job.Fetch != nil {
		wp.update(job, func(j *Job) {
			j.Status = types.StatusFetching
			j.Progress.Message = "Fetching source video"
		})
		path, err := job.Fetch(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("fetch failed")
			wp.fail(job, fmt.Errorf("fetch failed: %w", err))
			return
		}
		wp.update(job, func(j *Job) { j.VideoPath = path })
	}

	wp.update(job, func(j *Job) {
		j.Status = types.StatusProcessing
		j.Progress.Message = "Opening source video"
	})

	src, err := wp.backend.Open(ctx, job.VideoPath)
	if err != nil {
		logger.Error().Err(err).Msg("cannot open source")
		wp.fail(job, err)
		return
	}

	workArchive := filepath.Join(wp.cfg.ScratchDir, job.ID+".zip")
	p := pipeline.New(logger, wp.backend)
	report, err := p.Run(ctx, src, job.Segments, pipeline.Options{
		ScratchDir:  wp.cfg.ScratchDir,
		ArchivePath: workArchive,
		Progress: func(pr types.Progress) {
			wp.update(job, func(j *Job) { j.Progress = pr })
		},
	})
	if err != nil {
		logger.Error().Err(err).Msg("extraction failed")
		os.Remove(workArchive)
		wp.fail(job, err)
		return
	}

	stored, err := wp.local.SaveArchive(job.ID, job.RequestName, workArchive, report)
	if err != nil {
		logger.Error().Err(err).Msg("local save failed")
		os.Remove(workArchive)
		wp.fail(job, types.WrapError(types.KindIO, 0, err, "failed to store archive"))
		return
	}
	report.ArchivePath = stored.ArchivePath

	var urls []string
	for _, pub := range wp.publishers {
		url, err := storage.PublishWithRetry(ctx, logger, pub, stored, wp.cfg.PublishBackoff)
		if err != nil {
			logger.Warn().Err(err).Str("publisher", pub.Name()).Msg("publish failed, archive kept locally only")
			continue
		}
		urls = append(urls, url)
	}

	wp.update(job, func(j *Job) {
		j.Status = types.StatusCompleted
		j.Report = report
		j.ArchivePath = stored.ArchivePath
		j.ReportPath = stored.ReportPath
		j.PublishURLs = urls
		j.Progress.Completed = report.Total
		j.Progress.Total = report.Total
		j.Progress.Message = fmt.Sprintf("%d of %d segments extracted", report.Succeeded, report.Total)
	})
	wp.persist(logger, job, report)

	logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Str("archive", stored.ArchivePath).
		Strs("published", urls).
		Msg("job completed")
}

// fail marks a job failed and records it
func (wp *WorkerPool) fail(job *Job, err error) {
	wp.update(job, func(j *Job) {
		j.Status = types.StatusFailed
		j.Error = err.Error()
		j.Progress.Message = err.Error()
	})
	wp.persist(wp.logger, job, nil)
}

// persist writes the job (and per-segment results when present) to the database
func (wp *WorkerPool) persist(logger zerolog.Logger, job *Job, report *types.Report) {
	if wp.db == nil {
		return
	}

	snapshot, _ := wp.Get(job.ID)
	rec := storage.JobRecord{
		JobID:       snapshot.ID,
		RequestName: snapshot.RequestName,
		SourceType:  snapshot.SourceType,
		Status:      snapshot.Status,
		Error:       snapshot.Error,
		ArchivePath: snapshot.ArchivePath,
		ReportPath:  snapshot.ReportPath,
		PublishURLs: snapshot.PublishURLs,
		Total:       len(snapshot.Segments),
		CreatedAt:   snapshot.CreatedAt,
	}
	if report != nil {
		rec.Total, rec.Succeeded, rec.Failed = report.Total, report.Succeeded, report.Failed
	}

	if err := wp.db.SaveJob(rec); err != nil {
		logger.Error().Err(err).Msg("database save failed")
		return
	}
	if report != nil {
		if err := wp.db.SaveResults(job.ID, report.Results); err != nil {
			logger.Error().Err(err).Msg("saving segment results failed")
		}
	}
}

// cleanupTempFile removes the job's temporary source video
func (wp *WorkerPool) cleanupTempFile(logger zerolog.Logger, job *Job) {
	snapshot, _ := wp.Get(job.ID)
	if snapshot.VideoPath == "" {
		return
	}
	if err := os.Remove(snapshot.VideoPath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("path", snapshot.VideoPath).Msg("failed to cleanup temp file")
	}
}
