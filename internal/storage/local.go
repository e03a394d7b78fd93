package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// StoredArchive describes an archive kept in the output directory
type StoredArchive struct {
	ArchivePath string `json:"archive_path"`
	ReportPath  string `json:"report_path"`
	BaseName    string `json:"base_name"`
}

// LocalStorage keeps finished archives and their reports on the local filesystem
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// SaveArchive moves a finished archive into a dated directory
// (outputs/2025/01/23/) next to a JSON copy of its report.
func (ls *LocalStorage) SaveArchive(jobID, requestName, archivePath string, report *types.Report) (*StoredArchive, error) {
	now := ls.now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create date directory: %w", err)
	}

	// 20250123_143022_session_one_3f2a9c1d
	baseName := fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), sanitizeFilename(requestName), shortID(jobID))
	baseName = freeBaseName(dateDir, baseName)
	stored := &StoredArchive{
		ArchivePath: filepath.Join(dateDir, baseName+".zip"),
		ReportPath:  filepath.Join(dateDir, baseName+"_report.json"),
		BaseName:    baseName,
	}

	if err := moveFile(archivePath, stored.ArchivePath); err != nil {
		return nil, fmt.Errorf("failed to store archive: %w", err)
	}

	doc := stored.reportDocument(jobID, requestName, now, report)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(stored.ReportPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	return stored, nil
}

func (s *StoredArchive) reportDocument(jobID, requestName string, createdAt time.Time, report *types.Report) map[string]interface{} {
	doc := map[string]interface{}{
		"job_id":       jobID,
		"request_name": requestName,
		"created_at":   createdAt,
		"archive_path": s.ArchivePath,
	}
	if report != nil {
		doc["total"] = report.Total
		doc["succeeded"] = report.Succeeded
		doc["failed"] = report.Failed
		doc["failures"] = report.Failures
		doc["speakers"] = report.Speakers
		doc["archive_size"] = report.ArchiveSize
		doc["elapsed_seconds"] = report.Elapsed.Seconds()
	}
	return doc
}

// shortID keeps archives of concurrent jobs with the same name apart
func shortID(jobID string) string {
	id := sanitizeFilename(strings.ReplaceAll(jobID, "-", ""))
	if runes := []rune(id); len(runes) > 8 {
		id = string(runes[:8])
	}
	return id
}

// freeBaseName appends _1, _2, ... until neither the archive nor the report exists
func freeBaseName(dir, base string) string {
	candidate := base
	for i := 1; ; i++ {
		_, zipErr := os.Stat(filepath.Join(dir, candidate+".zip"))
		_, reportErr := os.Stat(filepath.Join(dir, candidate+"_report.json"))
		if os.IsNotExist(zipErr) && os.IsNotExist(reportErr) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
}

// moveFile renames src to dst, copying across filesystems when needed
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	in.Close()
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// sanitizeFilename reduces a request name to a safe single file name component
func sanitizeFilename(name string) string {
	result := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return -1
		case strings.ContainsRune(`/\:*?"<>|`, r), r == ' ':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))

	result = strings.Trim(result, "._")
	if result == "" {
		return "untitled"
	}
	if runes := []rune(result); len(runes) > 100 {
		result = string(runes[:100]) // Limit length
	}
	return result
}
