package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// errTooLarge is returned when a remote source exceeds the upload limit
var errTooLarge = errors.New("source exceeds the maximum file size")

// downloadTo creates path and fills it from copyFn, removing it on failure.
// At most maxBytes are accepted.
func downloadTo(path string, maxBytes int64, copyFn func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	w := &limitedWriter{w: out, remaining: maxBytes}
	copyErr := copyFn(w)
	closeErr := out.Close()

	if copyErr == nil && w.exceeded {
		copyErr = errTooLarge
	}
	if copyErr != nil || closeErr != nil {
		os.Remove(path)
		if copyErr != nil {
			return copyErr
		}
		return fmt.Errorf("failed to write temp file: %w", closeErr)
	}
	return nil
}

// limitedWriter fails once more than remaining bytes are written
type limitedWriter struct {
	w         io.Writer
	remaining int64
	exceeded  bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.remaining {
		l.exceeded = true
		return 0, errTooLarge
	}
	n, err := l.w.Write(p)
	l.remaining -= int64(n)
	return n, err
}

func removeQuietly(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

// contextCopy copies r to w, stopping early when ctx is cancelled
func contextCopy(ctx context.Context, w io.Writer, r io.Reader) error {
	buf := make([]byte, 256<<10)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
