package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/auth"
	"github.com/ezvendo/portal/internal/middleware"
	"github.com/ezvendo/portal/internal/models"
)

type AuthService interface {
	SignIn(ctx context.Context, email, password string) (*models.LoginResponse, error)
	SignOut(ctx context.Context, claims *auth.Claims) error
	Me(ctx context.Context, rfid string) (*models.UserDTO, error)
}

type AuthHandler struct {
	auth AuthService
}

func NewAuthHandler(s AuthService) *AuthHandler {
	return &AuthHandler{auth: s}
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badJSON(c)
	}
	if req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(models.ErrorResponse{Error: "email and password required"})
	}

	resp, err := h.auth.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	c.Set("Cache-Control", "no-store")
	return c.Status(fiber.StatusOK).JSON(resp)
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.SignOut(c.UserContext(), middleware.Claims(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	me, err := h.auth.Me(c.UserContext(), middleware.Claims(c).CardID())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(me)
}
