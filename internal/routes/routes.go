package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/handlers"
	"github.com/ezvendo/portal/internal/middleware"
)

// Handlers are the HTTP endpoints of the portal, built in cmd/server.
type Handlers struct {
	Health       *handlers.HealthHandler
	Status       *handlers.StatusHandler
	Auth         *handlers.AuthHandler
	Tap          *handlers.TapHandler
	Registration *handlers.RegistrationHandler
	Dashboard    *handlers.DashboardHandler
	Profile      *handlers.ProfileHandler
	Kiosk        *handlers.KioskHandler
	WS           *handlers.WSHandler
}

type Options struct {
	Authn    middleware.Authenticator
	KioskKey string
	// APIRateLimit is the per-IP request budget per minute for /api; 0 disables it.
	APIRateLimit int
}

func Register(app *fiber.App, h Handlers, opts Options) {
	// ============================================================================
	// PUBLIC API
	// ============================================================================
	api := app.Group("/api")
	if opts.APIRateLimit > 0 {
		api.Use(middleware.APIRateLimiter(opts.APIRateLimit))
	}

	api.Get("/health", h.Health.Health)
	api.Get("/status", h.Status.GetStatus)

	// kiosk screen
	api.Post("/tap", h.Tap.Start)
	api.Get("/tap/:id", h.Tap.Get)
	api.Delete("/tap/:id", h.Tap.Close)

	// ============================================================================
	// AUTH AND REGISTRATION (strict rate limiting)
	// ============================================================================
	api.Get("/register", middleware.AuthRateLimiter(), h.Registration.Begin)
	api.Post("/register", middleware.AuthRateLimiter(), h.Registration.Submit)
	api.Post("/auth/login", middleware.AuthRateLimiter(), h.Auth.Login)

	requireAuth := middleware.AuthRequired(opts.Authn)
	api.Post("/auth/logout", requireAuth, h.Auth.Logout)
	api.Get("/auth/me", requireAuth, h.Auth.Me)

	// ============================================================================
	// SIGNED-IN PORTAL
	// ============================================================================
	api.Get("/dashboard", requireAuth, h.Dashboard.Dashboard)
	api.Post("/session/start", requireAuth, h.Dashboard.StartSession)
	api.Post("/session/stop", requireAuth, h.Dashboard.StopSession)
	api.Get("/topup", requireAuth, h.Dashboard.TopUp)
	api.Get("/transactions", requireAuth, h.Dashboard.Transactions)

	api.Get("/profile", requireAuth, h.Profile.Get)
	api.Put("/profile", requireAuth, h.Profile.Update)
	api.Post("/profile/deactivate", requireAuth, h.Profile.Deactivate)
	api.Post("/profile/avatar", requireAuth, h.Profile.Avatar)

	// ============================================================================
	// KIOSK HARDWARE
	// ============================================================================
	kiosk := api.Group("/kiosk", middleware.KioskKeyRequired(opts.KioskKey))
	kiosk.Post("/scans", h.Kiosk.Scan)
	kiosk.Get("/scans", h.Kiosk.Scans)
	kiosk.Post("/coins", h.Kiosk.Coin)

	// ============================================================================
	// WEBSOCKETS
	// ============================================================================
	app.Get("/ws/tap/:id", h.WS.TapUpgrade, h.WS.Stream())
	app.Get("/ws/card", h.WS.CardUpgrade, h.WS.Stream())
}
