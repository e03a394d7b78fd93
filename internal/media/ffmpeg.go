package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// Options configures clip encoding
type Options struct {
	FFmpegPath  string
	FFprobePath string
	Threads     int
	CopyCodec   bool // stream copy instead of re-encoding; cuts snap to keyframes
	Preset      string
	CRF         int
}

// Executor runs ffprobe and ffmpeg for source inspection and trimming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	opts        Options
}

// New creates a new executor, resolving the ffmpeg and ffprobe binaries
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegPath, err := lookPath(opts.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := lookPath(opts.FFprobePath, "ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	if opts.Preset == "" {
		opts.Preset = DefaultPreset
	}
	if opts.CRF == 0 {
		opts.CRF = DefaultCRF
	}

	return &Executor{
		logger:      logging.WithComponent(logger, "ffmpeg"),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		opts:        opts,
	}, nil
}

func lookPath(configured, fallback string) (string, error) {
	name := strings.TrimSpace(configured)
	if name == "" {
		name = fallback
	}
	return exec.LookPath(name)
}

// Open probes the source video and returns a read-only handle on it
func (e *Executor) Open(ctx context.Context, path string) (*Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, types.WrapError(types.KindMedia, 0, err, "source video is not readable")
	}

	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, types.WrapError(types.KindMedia, 0, err,
			fmt.Sprintf("ffprobe failed: %s", strings.TrimSpace(string(output))))
	}

	source, err := parseProbe(output, path)
	if err != nil {
		return nil, err
	}
	source.SizeBytes = info.Size()

	e.logger.Info().
		Str("source", path).
		Float64("duration", source.Duration).
		Str("format", source.FormatName).
		Bool("has_audio", source.HasAudio).
		Msg("source video opened")

	return source, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

func parseProbe(output []byte, path string) (*Source, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, types.WrapError(types.KindMedia, 0, err, "failed to parse ffprobe output")
	}

	source := &Source{
		Path:       path,
		FormatName: probe.Format.FormatName,
		Ext:        extOf(path),
	}
	if !ValidateVideoFormat(path) {
		source.Ext = containerExt(probe.Format.FormatName)
	}

	duration, _ := strconv.ParseFloat(probe.Format.Duration, 64)
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			source.HasVideo = true
		case "audio":
			source.HasAudio = true
		}
		// Some containers only report duration per stream.
		if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil && d > duration {
			duration = d
		}
	}
	source.Duration = duration

	if !source.HasVideo {
		return nil, types.NewError(types.KindMedia, 0, "source has no video stream")
	}
	if source.Duration <= 0 {
		return nil, types.NewError(types.KindMedia, 0, "source duration is unknown")
	}
	return source, nil
}

// run executes ffmpeg with the given arguments, returning stderr on failure
func (e *Executor) run(ctx context.Context, args []string) error {
	baseArgs := []string{"-y", "-hide_banner", "-loglevel", "error", "-nostdin"}
	if e.opts.Threads > 0 {
		baseArgs = append(baseArgs, "-threads", strconv.Itoa(e.opts.Threads))
	}
	args = append(baseArgs, args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
