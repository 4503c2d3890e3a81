package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/models"
)

type TapService interface {
	Start(ctx context.Context, clientID string) (*models.Tap, error)
	Get(ctx context.Context, id string) (*models.Tap, error)
	Close(ctx context.Context, id string) (*models.Tap, error)
}

// TapHandler serves the kiosk "Tap your RFID card" screen.
type TapHandler struct {
	taps TapService
}

func NewTapHandler(s TapService) *TapHandler {
	return &TapHandler{taps: s}
}

// Start handles POST /api/tap. The body is optional; the client id defaults
// to the caller's IP.
func (h *TapHandler) Start(c *fiber.Ctx) error {
	var req models.StartTapRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badJSON(c)
		}
	}
	if req.ClientID == "" {
		req.ClientID = c.IP()
	}

	tap, err := h.taps.Start(c.UserContext(), req.ClientID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tap)
}

// Get handles GET /api/tap/:id
func (h *TapHandler) Get(c *fiber.Ctx) error {
	tap, err := h.taps.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tap)
}

// Close handles DELETE /api/tap/:id
func (h *TapHandler) Close(c *fiber.Ctx) error {
	tap, err := h.taps.Close(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(tap)
}
