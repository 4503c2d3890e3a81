package handlers

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/middleware"
)

// StatusDeps are the parts of the running system reported by GET /api/status.
type StatusDeps struct {
	DB          *sql.DB
	Checks      map[string]Check
	OnlineUsers func(ctx context.Context) (int, error)
	Listener    interface{ Connected() bool }
	Sockets     interface{ Total() int }
	Requests    *middleware.RequestStats
	Version     string
}

type StatusHandler struct {
	deps      StatusDeps
	health    *HealthHandler
	startTime time.Time
}

func NewStatusHandler(deps StatusDeps) *StatusHandler {
	return &StatusHandler{
		deps:      deps,
		health:    NewHealthHandler(deps.Checks, deps.Version),
		startTime: time.Now(),
	}
}

// SystemStatus is the body of GET /api/status.
type SystemStatus struct {
	Backend     BackendStatus             `json:"backend"`
	Database    DatabaseStatus            `json:"database"`
	Services    map[string]string         `json:"services"`
	ScanReader  string                    `json:"scan_listener"`
	OnlineUsers int                       `json:"online_users"`
	Sockets     int                       `json:"websocket_clients"`
	Requests    *middleware.RequestCounts `json:"requests,omitempty"`
}

type BackendStatus struct {
	Status       string `json:"status"`
	ResponseTime int    `json:"responseTime"`
	Uptime       int64  `json:"uptime"`
	Version      string `json:"version"`
}

type DatabaseStatus struct {
	Status         string `json:"status"`
	Connections    int    `json:"connections"`
	MaxConnections int    `json:"maxConnections"`
}

// GetStatus handles GET /api/status.
func (h *StatusHandler) GetStatus(c *fiber.Ctx) error {
	startRequest := time.Now()
	ctx := c.UserContext()

	services, _ := h.health.run(ctx)
	status := SystemStatus{
		Backend: BackendStatus{
			Status:  "online",
			Uptime:  int64(time.Since(h.startTime).Seconds()),
			Version: h.deps.Version,
		},
		Database:   DatabaseStatus{Status: "offline"},
		Services:   services,
		ScanReader: "disconnected",
	}

	if h.deps.DB != nil && services["mysql"] == "healthy" {
		stats := h.deps.DB.Stats()
		status.Database = DatabaseStatus{
			Status:         "online",
			Connections:    stats.InUse,
			MaxConnections: stats.MaxOpenConnections,
		}
	}
	if h.deps.Listener != nil && h.deps.Listener.Connected() {
		status.ScanReader = "connected"
	}
	if h.deps.OnlineUsers != nil {
		if n, err := h.deps.OnlineUsers(ctx); err == nil {
			status.OnlineUsers = n
		}
	}
	if h.deps.Sockets != nil {
		status.Sockets = h.deps.Sockets.Total()
	}
	if h.deps.Requests != nil {
		counts := h.deps.Requests.Snapshot()
		status.Requests = &counts
	}

	status.Backend.ResponseTime = int(time.Since(startRequest).Milliseconds())
	return c.JSON(status)
}
