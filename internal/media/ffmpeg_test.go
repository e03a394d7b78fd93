package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH")
	}
}

// makeTestVideo renders a short test pattern with a tone
func makeTestVideo(t *testing.T, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.mp4")
	dur := formatSeconds(seconds)
	cmd := exec.Command("ffmpeg", "-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=160x120:rate=25:duration="+dur,
		"-f", "lavfi", "-i", "sine=frequency=440:duration="+dur,
		"-c:v", "libx264", "-preset", "ultrafast", "-c:a", "aac", "-shortest",
		path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("cannot render test video: %v: %s", err, out)
	}
	return path
}

func TestValidateVideoFormat(t *testing.T) {
	for _, name := range []string{"talk.mp4", "TALK.MOV", "a.b.webm", "x.mkv"} {
		if !ValidateVideoFormat(name) {
			t.Errorf("%s should be accepted", name)
		}
	}
	for _, name := range []string{"talk.mp3", "table.csv", "noext"} {
		if ValidateVideoFormat(name) {
			t.Errorf("%s should be rejected", name)
		}
	}
}

func TestTrimArgsReencode(t *testing.T) {
	src := NewSource("/in/session.mp4", 10)
	args := trimArgs(src, 0.03, 2.28, "/out/segment_0.03_2.28.mp4", Options{})
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-ss 0.030 -i /in/session.mp4 -t 2.250",
		"-c:v libx264 -preset fast -crf 23",
		"-c:a aac",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "/out/segment_0.03_2.28.mp4" {
		t.Errorf("output must be the last argument, got %q", args[len(args)-1])
	}
}

func TestTrimArgsWebmAndCopy(t *testing.T) {
	src := NewSource("/in/a.webm", 10)
	src.HasAudio = false
	joined := strings.Join(trimArgs(src, 1, 2, "/out/x.webm", Options{CRF: 30}), " ")
	if !strings.Contains(joined, "-c:v libvpx-vp9 -crf 30 -b:v 0") {
		t.Errorf("unexpected webm args %q", joined)
	}
	if strings.Contains(joined, "-c:a") || strings.Contains(joined, "0:a:0") {
		t.Errorf("silent source must not map audio: %q", joined)
	}

	copied := strings.Join(trimArgs(NewSource("/in/a.mp4", 10), 1, 2, "/out/x.mp4", Options{CopyCodec: true}), " ")
	if !strings.Contains(copied, "-c copy") || strings.Contains(copied, "libx264") {
		t.Errorf("unexpected copy args %q", copied)
	}
}

func TestParseProbe(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"codec_type": "video", "duration": "12.480000"},
			{"codec_type": "audio", "duration": "12.500000"}
		],
		"format": {"duration": "12.500000", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
	}`)
	src, err := parseProbe(raw, "/in/Session.MP4")
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if src.Duration != 12.5 || src.Ext != "mp4" || !src.HasAudio || !src.HasVideo {
		t.Fatalf("unexpected source %+v", src)
	}

	_, err = parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`), "a.mp4")
	if !errors.Is(err, types.ErrMedia) {
		t.Fatalf("audio-only source should be a media error, got %v", err)
	}

	_, err = parseProbe([]byte(`not json`), "a.mp4")
	if !errors.Is(err, types.ErrMedia) {
		t.Fatalf("garbage should be a media error, got %v", err)
	}

	// downloads without a usable extension take it from the container
	src, err = parseProbe([]byte(`{"streams":[{"codec_type":"video"}],"format":{"duration":"4","format_name":"matroska,webm"}}`), "/tmp/job-1.download")
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if src.Ext != "mkv" {
		t.Fatalf("ext = %q, want mkv", src.Ext)
	}

	// unknown containers never leak the download's extension into clip names
	for _, format := range []string{"flv", ""} {
		raw := fmt.Sprintf(`{"streams":[{"codec_type":"video"}],"format":{"duration":"4","format_name":%q}}`, format)
		src, err = parseProbe([]byte(raw), "/tmp/job-2.download")
		if err != nil {
			t.Fatalf("parseProbe(%q): %v", format, err)
		}
		if src.Ext != DefaultExt {
			t.Errorf("format %q: ext = %q, want %s", format, src.Ext, DefaultExt)
		}
	}
}

func TestOpenAndTrim(t *testing.T) {
	skipIfNoFFmpeg(t)
	sourcePath := makeTestVideo(t, 3)

	executor, err := New(zerolog.Nop(), Options{Preset: "ultrafast"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	src, err := executor.Open(ctx, sourcePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if math.Abs(src.Duration-3) > 0.1 {
		t.Fatalf("duration = %v, want ~3", src.Duration)
	}

	out := filepath.Join(t.TempDir(), "clip.mp4")
	if err := executor.Trim(ctx, src, 0.5, 1.75, out); err != nil {
		t.Fatalf("Trim: %v", err)
	}

	clip, err := executor.Open(ctx, out)
	if err != nil {
		t.Fatalf("Open clip: %v", err)
	}
	if math.Abs(clip.Duration-1.25) > 0.1 {
		t.Fatalf("clip duration = %v, want ~1.25", clip.Duration)
	}
}

func TestOpenCorruptSource(t *testing.T) {
	skipIfNoFFmpeg(t)
	path := filepath.Join(t.TempDir(), "broken.mp4")
	if err := os.WriteFile(path, []byte("not a video"), 0o644); err != nil {
		t.Fatal(err)
	}

	executor, err := New(zerolog.Nop(), Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := executor.Open(context.Background(), path); !errors.Is(err, types.ErrMedia) {
		t.Fatalf("expected media error, got %v", err)
	}
}
