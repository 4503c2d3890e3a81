package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/repositories/scanlog"
	"github.com/ezvendo/portal/internal/rfid"
)

const (
	defaultScanLimit = 20
	maxScanLimit     = 200
)

// ScanPublisher hands a scan to the reader channel.
type ScanPublisher interface {
	Publish(ctx context.Context, s rfid.Scan) error
}

// Crediter tops up a card.
type Crediter interface {
	Credit(ctx context.Context, rfid string, amount models.Centavos, source string) (*models.Transaction, error)
}

// KioskHandler serves the endpoints the kiosk hardware calls.
type KioskHandler struct {
	scans   ScanPublisher
	credits Crediter
	log     scanlog.Repository
	now     func() time.Time
}

func NewKioskHandler(scans ScanPublisher, credits Crediter, log scanlog.Repository) *KioskHandler {
	return &KioskHandler{scans: scans, credits: credits, log: log, now: time.Now}
}

// Scan handles POST /api/kiosk/scans. The body is the reader payload as-is.
func (h *KioskHandler) Scan(c *fiber.Ctx) error {
	scan, err := rfid.ParseScan(c.Body(), h.now())
	if err != nil {
		if errors.Is(err, rfid.ErrEmptyCardID) {
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "card id required"})
		}
		return badJSON(c)
	}
	if err := h.scans.Publish(c.UserContext(), scan); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Error: "scan channel unavailable"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"card_id":   scan.CardID,
		"timestamp": scan.Timestamp.UnixMilli(),
	})
}

// Coin handles POST /api/kiosk/coins
func (h *KioskHandler) Coin(c *fiber.Ctx) error {
	var coin models.CoinInserted
	if err := c.BodyParser(&coin); err != nil {
		return badJSON(c)
	}
	if coin.RFIDCardID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "rfid_card_id required"})
	}

	tx, err := h.credits.Credit(c.UserContext(), coin.RFIDCardID, coin.Amount, models.SourceCoin)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tx)
}

// Scans handles GET /api/kiosk/scans?card_id=&limit=
func (h *KioskHandler) Scans(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultScanLimit)
	if limit <= 0 {
		limit = defaultScanLimit
	}
	if limit > maxScanLimit {
		limit = maxScanLimit
	}

	entries, err := h.log.Recent(c.UserContext(), c.Query("card_id"), int64(limit))
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{Error: "scan log unavailable"})
	}
	if entries == nil {
		entries = []scanlog.Entry{}
	}
	return c.JSON(fiber.Map{"scans": entries})
}
