package cleanup

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
)

// stagingPrefix matches the per-run directories the pipeline stages clips in
const stagingPrefix = "segments-"

// Stats summarises one sweep
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
}

// Scheduler handles cleanup of temporary files
type Scheduler struct {
	logger   zerolog.Logger
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(logger zerolog.Logger, tempDir string, intervalMinutes, maxAgeHours int) *Scheduler {
	return &Scheduler{
		logger:   logging.WithComponent(logger, "cleanup"),
		tempDir:  tempDir,
		interval: time.Duration(intervalMinutes) * time.Minute,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		stopChan: make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every interval
func (s *Scheduler) Start() {
	s.logger.Info().Msg("running initial temp file cleanup")
	s.Sweep(time.Now())

	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case now := <-ticker.C:
				s.Sweep(now)
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()

	s.logger.Info().
		Dur("interval", s.interval).
		Dur("max_age", s.maxAge).
		Msg("cleanup scheduler started")
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.logger.Info().Msg("cleanup scheduler stopped")
	})
}

// Sweep removes files older than the max age from the temp directory,
// along with staging directories left behind by interrupted runs
func (s *Scheduler) Sweep(now time.Time) Stats {
	var stats Stats
	var staleDirs []string

	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}

		age := now.Sub(info.ModTime())
		if info.IsDir() {
			if path != s.tempDir && strings.HasPrefix(info.Name(), stagingPrefix) && age > s.maxAge {
				staleDirs = append(staleDirs, path)
				return filepath.SkipDir
			}
			return nil
		}

		if age > s.maxAge {
			size := info.Size()
			if err := os.Remove(path); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("failed to delete old file")
				return nil
			}
			stats.Files++
			stats.Bytes += size
			s.logger.Debug().
				Str("file", filepath.Base(path)).
				Dur("age", age.Round(time.Hour)).
				Str("size", humanize.Bytes(uint64(size))).
				Msg("deleted old temp file")
		}
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("error during cleanup")
	}

	for _, dir := range staleDirs {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn().Err(err).Str("path", dir).Msg("failed to delete stale staging directory")
			continue
		}
		stats.Dirs++
	}

	if stats.Files > 0 || stats.Dirs > 0 {
		s.logger.Info().
			Int("files", stats.Files).
			Int("dirs", stats.Dirs).
			Str("freed", humanize.Bytes(uint64(stats.Bytes))).
			Msg("cleanup complete")
	}
	return stats
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	return os.MkdirAll(tempDir, 0755)
}
