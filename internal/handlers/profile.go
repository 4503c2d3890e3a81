package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/auth"
	"github.com/ezvendo/portal/internal/middleware"
	"github.com/ezvendo/portal/internal/models"
)

type ProfileService interface {
	Get(ctx context.Context, rfid string) (*models.Profile, error)
	Update(ctx context.Context, rfid string, req models.UpdateProfileRequest) (*models.Profile, error)
	Deactivate(ctx context.Context, rfid, password string) error
	AvatarUpload(ctx context.Context, rfid string) (*models.AvatarUpload, error)
}

// SignOuter revokes the token used for a deactivated account.
type SignOuter interface {
	SignOut(ctx context.Context, claims *auth.Claims) error
}

type ProfileHandler struct {
	profiles ProfileService
	auth     SignOuter
}

func NewProfileHandler(profiles ProfileService, auth SignOuter) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, auth: auth}
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	p, err := h.profiles.Get(c.UserContext(), middleware.Claims(c).CardID())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// Update handles PUT /api/profile
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	var req models.UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badJSON(c)
	}
	p, err := h.profiles.Update(c.UserContext(), middleware.Claims(c).CardID(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

// Deactivate handles POST /api/profile/deactivate
func (h *ProfileHandler) Deactivate(c *fiber.Ctx) error {
	var req models.DeactivateRequest
	if err := c.BodyParser(&req); err != nil {
		return badJSON(c)
	}
	claims := middleware.Claims(c)
	if err := h.profiles.Deactivate(c.UserContext(), claims.CardID(), req.Password); err != nil {
		return respondError(c, err)
	}
	if h.auth != nil {
		// the account is gone either way; a failed revocation only leaves a dead token
		_ = h.auth.SignOut(c.UserContext(), claims)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Avatar handles POST /api/profile/avatar
func (h *ProfileHandler) Avatar(c *fiber.Ctx) error {
	up, err := h.profiles.AvatarUpload(c.UserContext(), middleware.Claims(c).CardID())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(up)
}
