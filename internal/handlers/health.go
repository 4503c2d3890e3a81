package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version,omitempty"`
}

type HealthHandler struct {
	checks  map[string]Check
	version string
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Check, version string) *HealthHandler {
	return &HealthHandler{checks: checks, version: version, timeout: 2 * time.Second}
}

// Health handles GET /api/health. Any failing dependency answers 503.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	services, overall := h.run(c.UserContext())

	statusCode := fiber.StatusOK
	if overall == "degraded" {
		statusCode = fiber.StatusServiceUnavailable
	}
	return c.Status(statusCode).JSON(HealthResponse{
		Status:    overall,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
	})
}

func (h *HealthHandler) run(ctx context.Context) (map[string]string, string) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make(map[string]string, len(names))
	overall := "healthy"
	for _, name := range names {
		if h.checks[name] == nil {
			services[name] = "not_initialized"
			overall = "degraded"
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.checks[name](cctx)
		cancel()
		if err != nil {
			services[name] = "unhealthy: " + err.Error()
			overall = "degraded"
			continue
		}
		services[name] = "healthy"
	}
	return services, overall
}
