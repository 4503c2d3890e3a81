package middleware

import (
	"errors"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
)

// RequestStats counts requests for the status endpoint.
type RequestStats struct {
	total        atomic.Int64
	clientErrors atomic.Int64
	serverErrors atomic.Int64
}

type RequestCounts struct {
	Total        int64 `json:"total"`
	ClientErrors int64 `json:"client_errors"`
	ServerErrors int64 `json:"server_errors"`
}

func (s *RequestStats) Snapshot() RequestCounts {
	return RequestCounts{
		Total:        s.total.Load(),
		ClientErrors: s.clientErrors.Load(),
		ServerErrors: s.serverErrors.Load(),
	}
}

// Metrics counts each request by outcome. Errors returned by inner handlers
// are classified by their fiber status code.
func Metrics(stats *RequestStats) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		stats.total.Add(1)
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if err != nil {
			status = fiber.StatusInternalServerError
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		switch {
		case status >= 500:
			stats.serverErrors.Add(1)
		case status >= 400:
			stats.clientErrors.Add(1)
		}
		return err
	}
}
