// Package handlers contains the fiber handlers of the conversion service.
package handlers

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"docconvert/internal/domain"
	"docconvert/internal/infra/logging"
)

// HTMLConverter turns HTML into a stored PDF.
type HTMLConverter interface {
	Convert(ctx context.Context, req domain.HTMLRequest) (domain.ConversionResponse, error)
}

// DocumentConverter turns a PDF into a stored editable document.
type DocumentConverter interface {
	Convert(ctx context.Context, req domain.DocumentRequest) (domain.ConversionResponse, error)
}

// Conversions serves the conversion endpoints.
type Conversions struct {
	HTML      HTMLConverter
	Documents DocumentConverter
	// MaxUploadBytes bounds multipart uploads; 0 disables the check here and
	// leaves it to the converter.
	MaxUploadBytes int
}

// HandleHTML converts a JSON or form encoded HTML document to PDF.
func (h *Conversions) HandleHTML(c *fiber.Ctx) error {
	var req domain.HTMLRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}

	resp, err := h.HTML.Convert(c.UserContext(), req)
	if err != nil {
		logging.Error("HTML conversion failed", "filename", req.Filename, "error", err.Error())
		return toHTTPError(err)
	}
	return c.JSON(resp)
}

// HandleDocument converts a PDF given inline or by URL.
func (h *Conversions) HandleDocument(c *fiber.Ctx) error {
	var req domain.DocumentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return h.convertDocument(c, req)
}

// HandleUpload converts a PDF sent as the multipart field "file".
func (h *Conversions) HandleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, `multipart field "file" is required`)
	}
	if h.MaxUploadBytes > 0 && fh.Size > int64(h.MaxUploadBytes) {
		return toHTTPError(domain.Wrap(domain.ErrTooLarge,
			fmt.Errorf("upload is %d bytes, limit is %d", fh.Size, h.MaxUploadBytes)))
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot read upload: "+err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot read upload: "+err.Error())
	}

	inline, _ := strconv.ParseBool(c.FormValue("return_inline"))
	req := domain.DocumentRequest{
		Upload:       data,
		Filename:     c.FormValue("filename"),
		ReturnInline: inline,
	}
	if req.Filename == "" {
		req.Filename = fh.Filename
	}
	return h.convertDocument(c, req)
}

func (h *Conversions) convertDocument(c *fiber.Ctx, req domain.DocumentRequest) error {
	resp, err := h.Documents.Convert(c.UserContext(), req)
	if err != nil {
		logging.Error("Document conversion failed", "filename", req.Filename, "error", err.Error())
		return toHTTPError(err)
	}
	return c.JSON(resp)
}
