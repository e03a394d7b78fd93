package handlers

import (
	"errors"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/diarization-splitter/internal/diarization"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// maxTableBytes caps diarization tables sent inline or as a form file
const maxTableBytes = 8 << 20

func errorJSON(c *fiber.Ctx, status int, message, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

// taxonomyError maps a classified error to a JSON body with its code and row
func taxonomyError(c *fiber.Ctx, err error) error {
	kind := types.KindOf(err)
	status := fiber.StatusBadRequest
	switch kind {
	case "", types.KindIO:
		status = fiber.StatusInternalServerError
	case types.KindMedia:
		status = fiber.StatusUnprocessableEntity
	}

	body := fiber.Map{
		"error": err.Error(),
		"code":  kind.Code(),
	}
	if row := types.RowOf(err); row > 0 {
		body["row"] = row
	}
	var typed *types.Error
	if errors.As(err, &typed) && len(typed.Fields) > 0 {
		body["fields"] = typed.Fields
	}
	return c.Status(status).JSON(body)
}

// tableFromForm loads the diarization table uploaded as the "diarization" form file
func tableFromForm(c *fiber.Ctx) ([]types.Segment, error) {
	header, err := c.FormFile("diarization")
	if err != nil {
		return nil, types.NewError(types.KindSchema, 0, "diarization table is required")
	}
	if header.Size > maxTableBytes {
		return nil, types.NewError(types.KindSchema, 0, "diarization table is too large")
	}
	return loadMultipart(header)
}

func loadMultipart(header *multipart.FileHeader) ([]types.Segment, error) {
	f, err := header.Open()
	if err != nil {
		return nil, types.WrapError(types.KindIO, 0, err, "failed to read diarization table")
	}
	defer f.Close()
	return diarization.Load(f)
}

// tableFromString loads a diarization table sent inline in a JSON body
func tableFromString(table string) ([]types.Segment, error) {
	if strings.TrimSpace(table) == "" {
		return nil, types.NewError(types.KindSchema, 0, "diarization table is required")
	}
	if len(table) > maxTableBytes {
		return nil, types.NewError(types.KindSchema, 0, "diarization table is too large")
	}
	return diarization.LoadString(table)
}
