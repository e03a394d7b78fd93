package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// Trimmer extracts the [start, end) range of a source into outPath
type Trimmer interface {
	Trim(ctx context.Context, src *media.Source, start, end float64, outPath string) error
}

// ProgressFunc receives a progress update after each segment
type ProgressFunc func(types.Progress)

// Options configures a single run
type Options struct {
	// ScratchDir is where clips are staged before archiving. A private
	// directory is created inside it and removed when Run returns.
	// Empty means the OS temp directory.
	ScratchDir string

	// ArchivePath is where the zip is written. Required.
	ArchivePath string

	// Progress is called after every segment. Optional.
	Progress ProgressFunc
}

// Pipeline cuts one clip per segment and packages them into an archive
type Pipeline struct {
	logger  zerolog.Logger
	trimmer Trimmer
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, trimmer Trimmer) *Pipeline {
	return &Pipeline{
		logger:  logging.WithComponent(logger, "pipeline"),
		trimmer: trimmer,
	}
}

// Run extracts every segment from src in order and writes the archive.
// Per-segment failures are recorded in the report and never stop the run;
// only staging or archive I/O failures (ErrIO) and context cancellation
// between segments are returned as errors.
func (p *Pipeline) Run(ctx context.Context, src *media.Source, segments []types.Segment, opts Options) (*types.Report, error) {
	if src == nil {
		return nil, errors.New("source cannot be nil")
	}
	if opts.ArchivePath == "" {
		return nil, errors.New("archive path cannot be empty")
	}

	started := time.Now()
	p.logger.Info().
		Str("source", src.Path).
		Int("segments", len(segments)).
		Str("archive", opts.ArchivePath).
		Msg("starting extraction")

	if opts.ScratchDir != "" {
		if err := os.MkdirAll(opts.ScratchDir, 0755); err != nil {
			return nil, types.WrapError(types.KindIO, 0, err, "failed to create scratch directory")
		}
	}
	stageDir, err := os.MkdirTemp(opts.ScratchDir, "segments-*")
	if err != nil {
		return nil, types.WrapError(types.KindIO, 0, err, "failed to create staging directory")
	}
	defer os.RemoveAll(stageDir)

	ext := src.Ext
	if ext == "" {
		ext = defaultExt
	}
	names := newNamer(ext)

	report := &types.Report{
		Total:    len(segments),
		Failures: []types.Failure{},
		Results:  make([]types.ExtractionResult, 0, len(segments)),
		Speakers: make(map[string][]string),
	}
	var clips []string

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run interrupted after %d of %d segments: %w", i, len(segments), err)
		}

		result := p.extract(ctx, src, seg, stageDir, names)
		report.Results = append(report.Results, result)

		if result.Succeeded() {
			report.Succeeded++
			clips = append(clips, result.ClipPath)
			report.Speakers[seg.Speaker] = append(report.Speakers[seg.Speaker], result.ClipPath)
		} else {
			report.Failed++
			report.Failures = append(report.Failures, types.Failure{
				Row:     seg.Row,
				Segment: seg,
				Kind:    result.ErrorKind,
				Error:   result.Error,
			})
		}

		if opts.Progress != nil {
			opts.Progress(types.Progress{
				Completed: i + 1,
				Total:     len(segments),
				Row:       seg.Row,
				Speaker:   seg.Speaker,
				Status:    result.Status,
				Message:   fmt.Sprintf("Processing segment %d/%d (%s)", i+1, len(segments), seg.Speaker),
			})
		}
	}

	size, err := writeArchive(opts.ArchivePath, stageDir, clips)
	if err != nil {
		return nil, types.WrapError(types.KindIO, 0, err, "failed to write archive")
	}
	report.ArchivePath = opts.ArchivePath
	report.ArchiveSize = size
	report.Elapsed = time.Since(started)

	p.logger.Info().
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int64("archive_bytes", size).
		Dur("elapsed", report.Elapsed).
		Msg("extraction complete")

	return report, nil
}

// extract processes one segment. Any failure is captured in the result.
func (p *Pipeline) extract(ctx context.Context, src *media.Source, seg types.Segment, stageDir string, names *namer) types.ExtractionResult {
	result := types.ExtractionResult{Segment: seg}

	fail := func(err error) types.ExtractionResult {
		kind := types.KindOf(err)
		if kind == "" {
			kind = types.KindMedia
		}
		result.Status = types.SegmentFailed
		result.ErrorKind = kind
		result.Error = err.Error()
		p.logger.Warn().
			Err(err).
			Int("row", seg.Row).
			Str("speaker", seg.Speaker).
			Msg("segment failed")
		return result
	}

	if seg.End > src.Duration {
		return fail(types.NewError(types.KindRange, seg.Row,
			"end %s exceeds source duration %.2f", seg.EndLabel(), src.Duration))
	}

	rel := names.next(seg)
	outPath := filepath.Join(stageDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fail(types.WrapError(types.KindIO, seg.Row, err, "failed to create speaker directory"))
	}

	if err := p.trimmer.Trim(ctx, src, seg.Start, seg.End, outPath); err != nil {
		_ = os.Remove(outPath)
		var typed *types.Error
		if errors.As(err, &typed) && typed.Row == 0 {
			typed.Row = seg.Row
		}
		return fail(err)
	}

	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		_ = os.Remove(outPath)
		return fail(types.NewError(types.KindMedia, seg.Row, "trimming produced no output"))
	}

	names.reserve(rel)
	result.Status = types.SegmentSucceeded
	result.ClipPath = rel

	p.logger.Debug().
		Int("row", seg.Row).
		Str("clip", rel).
		Msg("segment extracted")
	return result
}
