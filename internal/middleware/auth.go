package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/auth"
	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/models"
)

const (
	claimsKey = "claims"

	HeaderKioskKey = "X-Kiosk-Key"
)

// Authenticator validates access tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// AuthRequired accepts "Authorization: Bearer <token>" and stores the claims
// in the request locals.
func AuthRequired(authn Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{Error: "missing auth"})
		}

		claims, err := authn.Authenticate(c.UserContext(), strings.TrimSpace(token))
		if err != nil {
			if errors.Is(err, common.ErrUnavailable) {
				return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Error: "Something went wrong. Please try again."})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{Error: "invalid token"})
		}
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// Claims returns the claims stored by AuthRequired, nil outside of it.
func Claims(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(claimsKey).(*auth.Claims)
	return claims
}

// KioskKeyRequired protects endpoints the kiosk hardware calls.
func KioskKeyRequired(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(HeaderKioskKey)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{Error: "invalid kiosk key"})
		}
		return c.Next()
	}
}
