package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezvendo/portal/internal/middleware"
)

func ok(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name    string
		checks  map[string]Check
		status  int
		overall string
	}{
		{"all healthy", map[string]Check{"mysql": ok, "redis": ok}, fiber.StatusOK, "healthy"},
		{"redis down", map[string]Check{"mysql": ok, "redis": func(context.Context) error { return errors.New("refused") }}, fiber.StatusServiceUnavailable, "degraded"},
		{"not wired", map[string]Check{"mysql": nil}, fiber.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/health", NewHealthHandler(tt.checks, "test").Health)

			resp, body := do(t, app, "GET", "/health", nil, "")
			assert.Equal(t, tt.status, resp.StatusCode)

			var out HealthResponse
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, tt.overall, out.Status)
			assert.Len(t, out.Services, len(tt.checks))
		})
	}
}

type fakeListener bool

func (f fakeListener) Connected() bool { return bool(f) }

type fakeSockets int

func (f fakeSockets) Total() int { return int(f) }

func TestStatusHandler(t *testing.T) {
	stats := &middleware.RequestStats{}
	h := NewStatusHandler(StatusDeps{
		Checks:      map[string]Check{"mysql": func(context.Context) error { return errors.New("down") }, "redis": ok},
		OnlineUsers: func(context.Context) (int, error) { return 4, nil },
		Listener:    fakeListener(true),
		Sockets:     fakeSockets(2),
		Requests:    stats,
		Version:     "1.2.3",
	})
	app := fiber.New()
	app.Get("/status", h.GetStatus)

	resp, body := do(t, app, "GET", "/status", nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var s SystemStatus
	require.NoError(t, json.Unmarshal(body, &s))
	assert.Equal(t, "online", s.Backend.Status)
	assert.Equal(t, "1.2.3", s.Backend.Version)
	assert.Equal(t, "offline", s.Database.Status)
	assert.Equal(t, "healthy", s.Services["redis"])
	assert.Equal(t, "unhealthy: down", s.Services["mysql"])
	assert.Equal(t, "connected", s.ScanReader)
	assert.Equal(t, 4, s.OnlineUsers)
	assert.Equal(t, 2, s.Sockets)
	require.NotNil(t, s.Requests)
}
