package services

import (
	"context"
	"time"

	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/repositories"
)

const historyDays = 7

type HistoryService struct {
	store store
	loc   *time.Location
	now   func() time.Time
}

func NewHistoryService(tx db.Transactor, repos repositories.Manager, cfg *config.Config) *HistoryService {
	return &HistoryService{
		store: newStore(tx, repos, cfg),
		loc:   cfg.Location(),
		now:   time.Now,
	}
}

// Transactions returns the card's transactions of the last seven days by day.
func (s *HistoryService) Transactions(ctx context.Context, rfid string) (*models.TransactionHistory, error) {
	now := s.now()
	since := startOfDay(now, s.loc).AddDate(0, 0, -historyDays)

	txs, err := doValue(ctx, s.store, func(ctx context.Context) ([]models.Transaction, error) {
		return s.store.transactions().ListByCard(ctx, rfid, since, 0)
	})
	if err != nil {
		return nil, err
	}
	h := GroupTransactions(txs, now, s.loc)
	return &h, nil
}

// GroupTransactions buckets newest-first transactions by local calendar day.
// Anything older than seven days before today is left out.
func GroupTransactions(txs []models.Transaction, now time.Time, loc *time.Location) models.TransactionHistory {
	today := startOfDay(now, loc)
	yesterday := today.AddDate(0, 0, -1)
	oldest := today.AddDate(0, 0, -historyDays)

	h := models.TransactionHistory{
		Today:     []models.Transaction{},
		Yesterday: []models.Transaction{},
		Last7Days: []models.Transaction{},
	}
	for _, tx := range txs {
		at := tx.CreatedAt.In(loc)
		switch {
		case !at.Before(today):
			h.Today = append(h.Today, tx)
		case !at.Before(yesterday):
			h.Yesterday = append(h.Yesterday, tx)
		case !at.Before(oldest):
			h.Last7Days = append(h.Last7Days, tx)
		}
	}
	return h
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
