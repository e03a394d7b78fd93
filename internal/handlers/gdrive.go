package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/queue"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// DriveDownloader fetches a Drive file through the authenticated API
type DriveDownloader interface {
	Download(ctx context.Context, fileID string, w io.Writer) (int64, error)
}

// GDriveHandler handles Google Drive link processing
type GDriveHandler struct {
	logger     zerolog.Logger
	workerPool *queue.WorkerPool
	drive      DriveDownloader
	httpClient *http.Client
	tempDir    string
	maxBytes   int64

	// downloadURL builds the public download link for a file ID
	downloadURL func(fileID string) string
}

// NewGDriveHandler creates a new Google Drive handler. drive may be nil, in
// which case only publicly shared files can be fetched.
func NewGDriveHandler(logger zerolog.Logger, workerPool *queue.WorkerPool, drive DriveDownloader, tempDir string, maxSizeMB int) *GDriveHandler {
	return &GDriveHandler{
		logger:     logging.WithComponent(logger, "gdrive"),
		workerPool: workerPool,
		drive:      drive,
		httpClient: http.DefaultClient,
		tempDir:    tempDir,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		downloadURL: func(fileID string) string {
			return fmt.Sprintf("https://drive.google.com/uc?export=download&id=%s", fileID)
		},
	}
}

// SourceRequest is the JSON body of the remote source endpoints
type SourceRequest struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	Diarization string `json:"diarization"`
}

// Handle processes Google Drive link requests
func (h *GDriveHandler) Handle(c *fiber.Ctx) error {
	var req SourceRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "Invalid request body", "ERR_INVALID_BODY")
	}

	segments, err := tableFromString(req.Diarization)
	if err != nil {
		return taxonomyError(c, err)
	}

	if req.URL == "" {
		return errorJSON(c, 400, "URL is required", "ERR_NO_URL")
	}

	fileID := extractGDriveFileID(req.URL)
	if fileID == "" {
		return errorJSON(c, 400, "Invalid Google Drive URL", "ERR_INVALID_URL")
	}

	if req.Name == "" {
		req.Name = "gdrive_file"
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.tempDir, jobID+".download")

	job := queue.NewJob(jobID, req.Name, types.SourceGDrive, "", segments)
	job.Fetch = func(ctx context.Context) (string, error) {
		if err := h.fetch(ctx, fileID, tempPath); err != nil {
			return "", err
		}
		return tempPath, nil
	}

	if err := h.workerPool.Enqueue(job); err != nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, err.Error(), "ERR_QUEUE_UNAVAILABLE")
	}

	return c.JSON(fiber.Map{
		"job_id":   jobID,
		"status":   types.StatusQueued,
		"segments": len(segments),
		"message":  "Google Drive file queued for download and processing",
	})
}

// fetch downloads the file with the Drive API when available, falling
// back to the public download link
func (h *GDriveHandler) fetch(ctx context.Context, fileID, dst string) error {
	h.logger.Info().Str("file_id", fileID).Msg("downloading from Google Drive")

	if h.drive != nil {
		err := downloadTo(dst, h.maxBytes, func(w io.Writer) error {
			_, err := h.drive.Download(ctx, fileID, w)
			return err
		})
		if err == nil {
			return nil
		}
		h.logger.Warn().Err(err).Str("file_id", fileID).Msg("Drive API download failed, trying public link")
	}

	return downloadTo(dst, h.maxBytes, func(w io.Writer) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.downloadURL(fileID), nil)
		if err != nil {
			return err
		}
		resp, err := h.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to download file from Google Drive: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("file not accessible (may be private or doesn't exist): HTTP %d", resp.StatusCode)
		}
		return contextCopy(ctx, w, resp.Body)
	})
}

var (
	driveFilePattern  = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveQueryPattern = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveIDPattern    = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// extractGDriveFileID extracts the file ID from various Google Drive URL formats
func extractGDriveFileID(url string) string {
	// https://drive.google.com/file/d/{ID}/view
	if matches := driveFilePattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// https://drive.google.com/open?id={ID}
	if matches := driveQueryPattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	// bare ID
	if matches := driveIDPattern.FindStringSubmatch(url); len(matches) > 1 {
		return matches[1]
	}

	return ""
}
