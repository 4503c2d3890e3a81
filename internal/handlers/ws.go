package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/middleware"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/realtime"
)

const topicKey = "ws_topic"

// Subscriber attaches a websocket connection to a topic until it closes.
type Subscriber interface {
	Serve(topic string, conn *websocket.Conn)
}

type WSHandler struct {
	hub   Subscriber
	taps  TapService
	authn middleware.Authenticator
}

func NewWSHandler(hub Subscriber, taps TapService, authn middleware.Authenticator) *WSHandler {
	return &WSHandler{hub: hub, taps: taps, authn: authn}
}

// TapUpgrade checks GET /ws/tap/:id before the upgrade.
func (h *WSHandler) TapUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	id := c.Params("id")
	if _, err := h.taps.Get(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	c.Locals(topicKey, realtime.TapTopic(id))
	return c.Next()
}

// CardUpgrade checks GET /ws/card?token= before the upgrade. Browsers cannot
// set headers on websocket requests, so the token rides in the query.
func (h *WSHandler) CardUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{Error: "missing auth"})
	}
	claims, err := h.authn.Authenticate(c.UserContext(), token)
	if err != nil {
		if errors.Is(err, common.ErrUnavailable) {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{Error: "invalid token"})
	}
	c.Locals(topicKey, realtime.CardTopic(claims.CardID()))
	return c.Next()
}

// Stream serves an upgraded connection on the topic chosen by the upgrade check.
func (h *WSHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		topic, _ := conn.Locals(topicKey).(string)
		if topic == "" {
			_ = conn.Close()
			return
		}
		h.hub.Serve(topic, conn)
	})
}
