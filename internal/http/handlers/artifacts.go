package handlers

import (
	"github.com/gofiber/fiber/v2"

	"docconvert/internal/infra/logging"
	"docconvert/internal/infra/storage"
)

// ArtifactStore is the read and delete side of an artifact store.
type ArtifactStore interface {
	Read(key string) ([]byte, error)
	Delete(key string) error
}

// Artifacts serves stored artifacts of one kind.
type Artifacts struct {
	Store       ArtifactStore
	Locker      storage.Locker
	ContentType string
	// Label names the artifact kind in messages, e.g. "PDF".
	Label string
}

// HandleGet downloads the artifact named by the key route parameter.
func (h *Artifacts) HandleGet(c *fiber.Ctx) error {
	key := c.Params("key")
	data, err := h.Store.Read(key)
	if err != nil {
		return toHTTPError(err)
	}

	c.Attachment(key)
	c.Set(fiber.HeaderContentType, h.ContentType)
	return c.Send(data)
}

// HandleDelete removes the artifact named by the key route parameter.
func (h *Artifacts) HandleDelete(c *fiber.Ctx) error {
	key := c.Params("key")
	if h.Locker != nil {
		unlock, err := h.Locker.Lock(c.UserContext(), key)
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Artifact is busy: "+err.Error())
		}
		defer unlock()
	}

	if err := h.Store.Delete(key); err != nil {
		return toHTTPError(err)
	}
	logging.Info("Artifact deleted", "kind", h.Label, "key", key)
	return c.JSON(fiber.Map{
		"success": true,
		"message": h.Label + " deleted",
	})
}
