package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/diarization-splitter/internal/diarization"
	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
	"github.com/codebuildervaibhav/diarization-splitter/internal/pipeline"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// errSegmentsFailed makes the process exit non-zero after the report is printed
var errSegmentsFailed = errors.New("one or more segments failed")

type splitOptions struct {
	video      string
	table      string
	out        string
	scratch    string
	copyCodec  bool
	threads    int
	noProgress bool
}

func newSplitCommand(ctx *commandContext) *cobra.Command {
	opts := &splitOptions{}

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Cut one clip per diarization row and bundle them into a zip archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.video, "video", "", "Source video file")
	cmd.Flags().StringVar(&opts.table, "diarization", "", "Diarization table (CSV with start,end,speaker)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "segments.zip", "Output archive path")
	cmd.Flags().StringVar(&opts.scratch, "scratch", "", "Directory for staging clips (default: system temp)")
	cmd.Flags().BoolVar(&opts.copyCodec, "copy", false, "Stream copy instead of re-encoding (fast, cuts on keyframes)")
	cmd.Flags().IntVar(&opts.threads, "threads", 0, "ffmpeg thread count (0 = ffmpeg default)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("diarization")

	return cmd
}

func runSplit(cmd *cobra.Command, ctx *commandContext, opts *splitOptions) error {
	out := cmd.OutOrStdout()
	logger := ctx.logger(cmd)

	// The table is validated before any media work.
	f, err := os.Open(opts.table)
	if err != nil {
		return fmt.Errorf("open diarization table: %w", err)
	}
	segments, err := diarization.Load(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", opts.table, err)
	}

	cfg, err := ctx.loadConfig()
	if err != nil {
		return err
	}
	mediaOpts := media.Options{
		FFmpegPath:  cfg.FFmpeg.FFmpegPath,
		FFprobePath: cfg.FFmpeg.FFprobePath,
		Threads:     cfg.FFmpeg.Threads,
		CopyCodec:   cfg.FFmpeg.CopyCodec || opts.copyCodec,
		Preset:      cfg.FFmpeg.Preset,
		CRF:         cfg.FFmpeg.CRF,
	}
	if opts.threads > 0 {
		mediaOpts.Threads = opts.threads
	}

	archivePath, err := filepath.Abs(opts.out)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	lock := flock.New(archivePath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", archivePath, err)
	}
	if !locked {
		return fmt.Errorf("another split is already writing %s", archivePath)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	executor, err := ctx.newBackend(logger, mediaOpts)
	if err != nil {
		return err
	}

	src, err := executor.Open(cmd.Context(), opts.video)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.video, err)
	}

	var bar *progressbar.ProgressBar
	if !opts.noProgress && isTerminal(cmd.ErrOrStderr()) {
		bar = progressbar.NewOptions(len(segments),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("Extracting segments"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	p := pipeline.New(logger, executor)
	report, err := p.Run(cmd.Context(), src, segments, pipeline.Options{
		ScratchDir:  opts.scratch,
		ArchivePath: archivePath,
		Progress: func(pr types.Progress) {
			if bar != nil {
				bar.Describe(fmt.Sprintf("Extracting segments (%s)", pr.Speaker))
				_ = bar.Set(pr.Completed)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	printReport(out, report)
	if report.Failed > 0 {
		return errSegmentsFailed
	}
	return nil
}

func printReport(w io.Writer, report *types.Report) {
	fmt.Fprintf(w, "Extracted %d of %d segments in %s\n",
		report.Succeeded, report.Total, report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Archive: %s (%s)\n\n", report.ArchivePath, humanize.Bytes(uint64(report.ArchiveSize)))

	if clips := clipsTable(report); clips != "" {
		fmt.Fprintln(w, clips)
	}

	if len(report.Failures) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%d segment(s) failed:\n", report.Failed)
	fmt.Fprintln(w, failuresTable(report.Failures))
}
