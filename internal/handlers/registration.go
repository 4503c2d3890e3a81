package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/models"
)

type RegistrationService interface {
	Begin(ctx context.Context, rfid string, attempt int) (*models.RegistrationWindow, error)
	Submit(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error)
}

type RegistrationHandler struct {
	reg RegistrationService
}

func NewRegistrationHandler(s RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{reg: s}
}

// Begin handles GET /api/register?rfid=&attempt=
func (h *RegistrationHandler) Begin(c *fiber.Ctx) error {
	rfid := strings.TrimSpace(c.Query("rfid"))
	if rfid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "rfid required"})
	}

	window, err := h.reg.Begin(c.UserContext(), rfid, c.QueryInt("attempt", 0))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(window)
}

// Submit handles POST /api/register
func (h *RegistrationHandler) Submit(c *fiber.Ctx) error {
	var req models.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return badJSON(c)
	}

	resp, err := h.reg.Submit(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	c.Set("Cache-Control", "no-store")
	return c.Status(fiber.StatusCreated).JSON(resp)
}
