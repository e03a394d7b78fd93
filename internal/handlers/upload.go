package handlers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
	"github.com/codebuildervaibhav/diarization-splitter/internal/queue"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// UploadHandler handles video plus table uploads
type UploadHandler struct {
	logger     zerolog.Logger
	workerPool *queue.WorkerPool
	tempDir    string
	maxSizeMB  int
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(logger zerolog.Logger, workerPool *queue.WorkerPool, tempDir string, maxSizeMB int) *UploadHandler {
	return &UploadHandler{
		logger:     logging.WithComponent(logger, "upload"),
		workerPool: workerPool,
		tempDir:    tempDir,
		maxSizeMB:  maxSizeMB,
	}
}

// Handle processes the upload request
func (h *UploadHandler) Handle(c *fiber.Ctx) error {
	// The table is validated before the video is touched.
	segments, err := tableFromForm(c)
	if err != nil {
		return taxonomyError(c, err)
	}

	file, err := c.FormFile("video")
	if err != nil {
		return errorJSON(c, 400, "No video uploaded", "ERR_NO_FILE")
	}

	requestName := c.FormValue("name")
	if requestName == "" {
		requestName = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}
	if requestName == "" {
		requestName = "untitled"
	}

	maxSize := int64(h.maxSizeMB) * 1024 * 1024
	if file.Size > maxSize {
		return errorJSON(c, 400, fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB), "ERR_FILE_TOO_LARGE")
	}

	if !media.ValidateVideoFormat(file.Filename) {
		return errorJSON(c, 400,
			fmt.Sprintf("Unsupported video format (supported: %s)", strings.Join(media.SupportedFormats(), ", ")),
			"ERR_INVALID_FORMAT")
	}

	jobID := uuid.New().String()
	extension := strings.ToLower(filepath.Ext(file.Filename))
	tempPath := filepath.Join(h.tempDir, jobID+extension)

	if err := c.SaveFile(file, tempPath); err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to save uploaded video")
		return errorJSON(c, 500, "Failed to save file", "ERR_SAVE_FAILED")
	}

	job := queue.NewJob(jobID, requestName, types.SourceUpload, tempPath, segments)
	if err := h.workerPool.Enqueue(job); err != nil {
		removeQuietly(tempPath)
		return errorJSON(c, fiber.StatusServiceUnavailable, err.Error(), "ERR_QUEUE_UNAVAILABLE")
	}

	return c.JSON(fiber.Map{
		"job_id":   jobID,
		"status":   types.StatusQueued,
		"segments": len(segments),
		"message":  "Video uploaded successfully, processing started",
	})
}
