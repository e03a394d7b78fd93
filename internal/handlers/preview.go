package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-splitter/internal/diarization"
)

// previewRows is how many validated rows the preview returns
const previewRows = 10

// PreviewHandler validates a diarization table without running a job
type PreviewHandler struct{}

// NewPreviewHandler creates a new preview handler
func NewPreviewHandler() *PreviewHandler {
	return &PreviewHandler{}
}

// Handle returns the first rows and the summary of an uploaded table
func (h *PreviewHandler) Handle(c *fiber.Ctx) error {
	segments, err := tableFromForm(c)
	if err != nil {
		return taxonomyError(c, err)
	}

	rows := segments
	if len(rows) > previewRows {
		rows = rows[:previewRows]
	}

	return c.JSON(fiber.Map{
		"rows":    rows,
		"summary": diarization.Summarize(segments),
	})
}
