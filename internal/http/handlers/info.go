package handlers

import (
	"github.com/gofiber/fiber/v2"

	"docconvert/internal/extract"
	"docconvert/internal/render"
)

// RenderStats reports render session counters.
type RenderStats interface {
	Stats() render.Stats
}

// ExtractStats reports extraction worker counters.
type ExtractStats interface {
	Stats() extract.PoolStats
}

// Info serves the banner and runtime statistics.
type Info struct {
	Render  RenderStats
	Extract ExtractStats
	Ready   func() bool
}

// HandleIndex answers GET / with the service banner.
func (h *Info) HandleIndex(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "HTML to PDF Converter API",
		"status":  "running",
	})
}

// HandleStats returns render and extraction counters.
func (h *Info) HandleStats(c *fiber.Ctx) error {
	out := fiber.Map{"fonts_ready": h.Ready == nil || h.Ready()}
	if h.Render != nil {
		out["render"] = h.Render.Stats()
	}
	if h.Extract != nil {
		out["extract"] = h.Extract.Stats()
	}
	return c.JSON(out)
}
