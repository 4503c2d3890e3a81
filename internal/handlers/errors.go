package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/services"
	"github.com/ezvendo/portal/internal/validation"
)

// errorStatus maps service errors to a status code and the message shown to users.
var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{common.ErrUnavailable, fiber.StatusServiceUnavailable, services.MsgUnavailable},
	{common.ErrNotFound, fiber.StatusNotFound, "not found"},
	{common.ErrUnauthorized, fiber.StatusUnauthorized, "invalid credentials"},
	{common.ErrInvalidToken, fiber.StatusUnauthorized, "invalid token"},
	{common.ErrAccountInactive, fiber.StatusForbidden, "Account is not active"},
	{common.ErrEmailTaken, fiber.StatusConflict, "Email already registered"},
	{common.ErrReaderBusy, fiber.StatusConflict, "Reader is busy. Please wait for the current scan to finish."},
	{common.ErrNoActiveTap, fiber.StatusConflict, "No tap is waiting for a card"},
	{common.ErrAlreadyRegistered, fiber.StatusConflict, "Card already registered"},
	{common.ErrRegistrationExpired, fiber.StatusGone, "Time limit reached. Please try again from the home screen."},
	{common.ErrAttemptsExhausted, fiber.StatusForbidden, "Attempts Already Used"},
	{common.ErrInsufficientBalance, fiber.StatusPaymentRequired, "Insufficient balance. Please top up."},
	{common.ErrSessionActive, fiber.StatusConflict, "A session is already running"},
	{common.ErrNoActiveSession, fiber.StatusConflict, "No active session"},
}

// respondError writes the JSON error for err.
func respondError(c *fiber.Ctx, err error) error {
	var fields validation.Errors
	if errors.As(err, &fields) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ValidationErrorResponse{
			Error:  validation.MsgFixErrors,
			Fields: fields,
		})
	}
	if errors.Is(err, common.ErrValidation) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return c.Status(e.status).JSON(models.ErrorResponse{Error: e.message})
		}
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Error: services.MsgUnavailable})
}

func badJSON(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "invalid json"})
}
