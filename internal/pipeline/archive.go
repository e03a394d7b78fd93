package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
)

// writeArchive bundles the staged clips into a zip at archivePath. Each
// staged file is removed as soon as it has been copied into the archive.
// The archive is written to a temp file and renamed into place.
func writeArchive(archivePath, stageDir string, clips []string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return 0, fmt.Errorf("failed to create archive directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".archive-*.zip")
	if err != nil {
		return 0, fmt.Errorf("failed to create archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	zw := zip.NewWriter(tmp)
	for _, rel := range clips {
		if err := addFile(zw, filepath.Join(stageDir, filepath.FromSlash(rel)), rel); err != nil {
			zw.Close()
			tmp.Close()
			return 0, err
		}
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return 0, fmt.Errorf("failed to move archive into place: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat archive: %w", err)
	}
	return info.Size(), nil
}

func addFile(zw *zip.Writer, src, name string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open clip %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat clip %s: %w", name, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build header for %s: %w", name, err)
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to archive: %w", name, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s to archive: %w", name, err)
	}

	f.Close()
	_ = os.Remove(src)
	return nil
}
