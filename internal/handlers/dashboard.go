package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/middleware"
	"github.com/ezvendo/portal/internal/models"
)

type BillingService interface {
	Dashboard(ctx context.Context, rfid string) (*models.Dashboard, error)
	StartSession(ctx context.Context, rfid string) (*models.ActiveSession, error)
	StopSession(ctx context.Context, rfid string) error
	TopUpInstructions() models.TopUpInstructions
}

type HistoryService interface {
	Transactions(ctx context.Context, rfid string) (*models.TransactionHistory, error)
}

// DashboardHandler serves the signed-in card holder's pages.
type DashboardHandler struct {
	billing BillingService
	history HistoryService
}

func NewDashboardHandler(billing BillingService, history HistoryService) *DashboardHandler {
	return &DashboardHandler{billing: billing, history: history}
}

// Dashboard handles GET /api/dashboard
func (h *DashboardHandler) Dashboard(c *fiber.Ctx) error {
	d, err := h.billing.Dashboard(c.UserContext(), middleware.Claims(c).CardID())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(d)
}

// StartSession handles POST /api/session/start
func (h *DashboardHandler) StartSession(c *fiber.Ctx) error {
	s, err := h.billing.StartSession(c.UserContext(), middleware.Claims(c).CardID())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(s)
}

// StopSession handles POST /api/session/stop
func (h *DashboardHandler) StopSession(c *fiber.Ctx) error {
	if err := h.billing.StopSession(c.UserContext(), middleware.Claims(c).CardID()); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TopUp handles GET /api/topup
func (h *DashboardHandler) TopUp(c *fiber.Ctx) error {
	return c.JSON(h.billing.TopUpInstructions())
}

// Transactions handles GET /api/transactions
func (h *DashboardHandler) Transactions(c *fiber.Ctx) error {
	history, err := h.history.Transactions(c.UserContext(), middleware.Claims(c).CardID())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(history)
}
