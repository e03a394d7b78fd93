package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

const sessionTable = "start,end,speaker\n0.03,2.28,therapist\n2.28,4.09,patient\n4.09,5.50,therapist\n5.50,7.75,patient\n"

type fakeBackend struct {
	duration float64
}

func (f fakeBackend) Open(_ context.Context, path string) (*media.Source, error) {
	return media.NewSource(path, f.duration), nil
}

func (f fakeBackend) Trim(_ context.Context, _ *media.Source, start, end float64, outPath string) error {
	return os.WriteFile(outPath, []byte(fmt.Sprintf("%.2f-%.2f", start, end)), 0o644)
}

func fakeFactory(duration float64) backendFactory {
	return func(zerolog.Logger, media.Options) (backend, error) {
		return fakeBackend{duration: duration}, nil
	}
}

func runCLI(t *testing.T, factory backendFactory, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(factory)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "none.yaml")))
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTable(t *testing.T, dir, table string) string {
	t.Helper()
	path := filepath.Join(dir, "d.csv")
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidatePrintsSummary(t *testing.T) {
	table := writeTable(t, t.TempDir(), sessionTable)
	out, err := runCLI(t, fakeFactory(10), "validate", table)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "4 segments, 2 speakers, ends at 7.75s") {
		t.Fatalf("output:\n%s", out)
	}
	for _, want := range []string{"therapist", "patient", "3.66"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidateReportsRow(t *testing.T) {
	table := writeTable(t, t.TempDir(), "start,end,speaker\n1,2,a\n3,x,b\n")
	_, err := runCLI(t, fakeFactory(10), "validate", table)
	if !errors.Is(err, types.ErrValue) {
		t.Fatalf("expected value error, got %v", err)
	}
	if !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("error should name the row: %v", err)
	}
}

func TestSplitWritesArchive(t *testing.T) {
	dir := t.TempDir()
	table := writeTable(t, dir, sessionTable)
	archive := filepath.Join(dir, "out", "segments.zip")

	out, err := runCLI(t, fakeFactory(10), "split", "--video", filepath.Join(dir, "session.mp4"),
		"--diarization", table, "--out", archive, "--scratch", filepath.Join(dir, "scratch"))
	if err != nil {
		t.Fatalf("split: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Extracted 4 of 4 segments") {
		t.Fatalf("output:\n%s", out)
	}

	r, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer r.Close()
	if len(r.File) != 4 {
		t.Fatalf("archive has %d entries", len(r.File))
	}
	if _, err := os.Stat(archive + ".lock"); !os.IsNotExist(err) {
		t.Fatal("lock file should be removed after the run")
	}
}

func TestSplitFailuresExitNonZero(t *testing.T) {
	dir := t.TempDir()
	table := writeTable(t, dir, sessionTable)

	out, err := runCLI(t, fakeFactory(5), "split", "--video", filepath.Join(dir, "session.mp4"),
		"--diarization", table, "--out", filepath.Join(dir, "segments.zip"))
	if !errors.Is(err, errSegmentsFailed) {
		t.Fatalf("expected errSegmentsFailed, got %v", err)
	}
	if !strings.Contains(out, "2 segment(s) failed") || !strings.Contains(out, "exceeds source duration") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestSplitRejectsInvalidTableBeforeOpeningVideo(t *testing.T) {
	dir := t.TempDir()
	table := writeTable(t, dir, "start,end\n1,2\n")
	opened := false
	factory := func(zerolog.Logger, media.Options) (backend, error) {
		opened = true
		return fakeBackend{duration: 10}, nil
	}

	_, err := runCLI(t, factory, "split", "--video", "v.mp4", "--diarization", table, "--out", filepath.Join(dir, "s.zip"))
	if !errors.Is(err, types.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if opened {
		t.Fatal("media backend should not be created for an invalid table")
	}
}

func TestSplitRefusesLockedOutput(t *testing.T) {
	dir := t.TempDir()
	table := writeTable(t, dir, sessionTable)
	archive := filepath.Join(dir, "segments.zip")

	held := flock.New(archive + ".lock")
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer held.Unlock()

	_, err := runCLI(t, fakeFactory(10), "split", "--video", "v.mp4", "--diarization", table, "--out", archive)
	if err == nil || !strings.Contains(err.Error(), "already writing") {
		t.Fatalf("expected lock error, got %v", err)
	}
}
