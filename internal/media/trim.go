package media

import (
	"context"
	"os"
	"strconv"

	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "fast"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
)

// codecs maps an output container to the video/audio encoders it accepts
var codecs = map[string][2]string{
	"mp4":  {"libx264", "aac"},
	"m4v":  {"libx264", "aac"},
	"mov":  {"libx264", "aac"},
	"mkv":  {"libx264", "aac"},
	"avi":  {"libx264", "libmp3lame"},
	"webm": {"libvpx-vp9", "libopus"},
}

// CodecsFor returns the encoders used for a container extension
func CodecsFor(ext string) (video, audio string) {
	if c, ok := codecs[ext]; ok {
		return c[0], c[1]
	}
	return DefaultVideoCodec, DefaultAudioCodec
}

// Trim writes the [start, end) range of src to outPath. The output
// container follows the extension of outPath.
func (e *Executor) Trim(ctx context.Context, src *Source, start, end float64, outPath string) error {
	if end <= start {
		return types.NewError(types.KindRange, 0, "invalid clip range %.3f-%.3f", start, end)
	}

	e.logger.Debug().
		Str("input", src.Path).
		Str("output", outPath).
		Float64("start", start).
		Float64("end", end).
		Bool("copy_codec", e.opts.CopyCodec).
		Msg("extracting clip")

	args := trimArgs(src, start, end, outPath, e.opts)
	if err := e.run(ctx, args); err != nil {
		// ffmpeg may leave a truncated file behind
		_ = os.Remove(outPath)
		return types.WrapError(types.KindMedia, 0, err, "clip extraction failed")
	}
	return nil
}

// trimArgs builds the ffmpeg arguments for one clip. -ss before -i seeks
// the input; with re-encoding the cut is frame accurate.
func trimArgs(src *Source, start, end float64, outPath string, opts Options) []string {
	args := []string{
		"-ss", formatSeconds(start),
		"-i", src.Path,
		"-t", formatSeconds(end - start),
		"-map", "0:v:0",
	}
	if src.HasAudio {
		args = append(args, "-map", "0:a:0?")
	}

	if opts.CopyCodec {
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	} else {
		videoCodec, audioCodec := CodecsFor(extOf(outPath))
		args = append(args, "-c:v", videoCodec)
		if videoCodec == "libx264" {
			preset := opts.Preset
			if preset == "" {
				preset = DefaultPreset
			}
			args = append(args, "-preset", preset)
		}
		crf := opts.CRF
		if crf == 0 {
			crf = DefaultCRF
		}
		args = append(args, "-crf", strconv.Itoa(crf))
		if videoCodec == "libvpx-vp9" {
			args = append(args, "-b:v", "0")
		}
		if src.HasAudio {
			args = append(args, "-c:a", audioCodec)
		}
	}

	return append(args, outPath)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
