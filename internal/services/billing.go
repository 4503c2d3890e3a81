package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/events"
	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/realtime"
	"github.com/ezvendo/portal/internal/repositories"
)

// Card topic event types.
const (
	EventSessionStarted = "session_started"
	EventSessionStopped = "session_stopped"
	EventSessionExpired = "session_expired"
	EventBalanceUpdated = "balance_updated"
)

const (
	recentTransactions = 3
	sweepBatch         = 100
)

// BillingService meters internet sessions against card balances.
type BillingService struct {
	store    store
	events   events.Publisher
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time

	rate          models.Centavos
	interval      time.Duration
	lowBalance    models.Centavos
	sweepInterval time.Duration
}

func NewBillingService(tx db.Transactor, repos repositories.Manager, publisher events.Publisher, notifier Notifier, cfg *config.Config, logger logging.Logger) *BillingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &BillingService{
		store:         newStore(tx, repos, cfg),
		events:        publisher,
		notifier:      notifier,
		logger:        logger,
		now:           time.Now,
		rate:          models.Centavos(cfg.BillingRateCents),
		interval:      cfg.BillingInterval,
		lowBalance:    models.Centavos(cfg.LowBalanceCents),
		sweepInterval: cfg.SweepInterval,
	}
}

func (s *BillingService) Dashboard(ctx context.Context, rfid string) (*models.Dashboard, error) {
	user, err := s.activeUser(ctx, rfid)
	if err != nil {
		return nil, err
	}
	now := s.now()

	active, err := doValue(ctx, s.store, func(ctx context.Context) (*models.WifiSession, error) {
		sess, err := s.store.sessions().GetActive(ctx, rfid)
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return sess, err
	})
	if err != nil {
		return nil, err
	}

	recent, err := doValue(ctx, s.store, func(ctx context.Context) ([]models.Transaction, error) {
		return s.store.transactions().ListByCard(ctx, rfid, time.Time{}, recentTransactions)
	})
	if err != nil {
		return nil, err
	}

	online, err := s.OnlineUsers(ctx)
	if err != nil {
		return nil, err
	}

	return &models.Dashboard{
		User:               toDTO(user),
		Balance:            user.Balance,
		IsLowBalance:       user.Balance <= 0,
		IsWarningLevel:     user.Balance > 0 && user.Balance <= s.lowBalance,
		Rate:               s.rate,
		IntervalSeconds:    int(s.interval / time.Second),
		Session:            toActive(active, now),
		RecentTransactions: recent,
		OnlineUsers:        online,
	}, nil
}

// StartSession debits one interval and opens a session in one transaction.
func (s *BillingService) StartSession(ctx context.Context, rfid string) (*models.ActiveSession, error) {
	now := s.now()
	var (
		sess    *models.WifiSession
		debit   *models.Transaction
		balance models.Centavos
	)
	err := s.store.inTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		users := s.store.repos.Users(tx)
		sessions := s.store.repos.Sessions(tx)

		user, err := users.FindRegistered(ctx, rfid)
		if err != nil {
			return err
		}
		if !user.CanUsePortal() {
			return common.ErrAccountInactive
		}

		current, err := sessions.GetActive(ctx, rfid)
		switch {
		case err == nil && current.ExpiresAt.After(now):
			return common.ErrSessionActive
		case err == nil:
			if err := sessions.End(ctx, current.ID, models.EndExpired, current.ExpiresAt); err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
		case !errors.Is(err, common.ErrNotFound):
			return err
		}

		if user.Balance < s.rate {
			return common.ErrInsufficientBalance
		}
		balance, err = users.AdjustBalance(ctx, rfid, -s.rate, now)
		if err != nil {
			return err
		}
		debit = &models.Transaction{
			ID:           uuid.NewString(),
			RFIDCardID:   rfid,
			Type:         models.TxDeducted,
			Amount:       s.rate,
			BalanceAfter: balance,
			Source:       models.SourceSession,
			CreatedAt:    now,
		}
		if err := s.store.repos.Transactions(tx).Create(ctx, debit); err != nil {
			return err
		}
		sess = &models.WifiSession{
			ID:         uuid.NewString(),
			RFIDCardID: rfid,
			StartedAt:  now,
			ExpiresAt:  now.Add(s.interval),
			Charged:    s.rate,
		}
		return sessions.Create(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "session started", "card_id", rfid, "session_id", sess.ID, "balance", balance.String())
	s.transactionCreated(ctx, *debit)
	active := toActive(sess, now)
	s.notifier.Publish(realtime.CardTopic(rfid), EventSessionStarted, active)
	return active, nil
}

// StopSession ends the card's open session. A session already past its expiry
// is closed as expired instead and reported as no active session.
func (s *BillingService) StopSession(ctx context.Context, rfid string) error {
	now := s.now()
	var ended *models.WifiSession
	err := s.store.do(ctx, func(ctx context.Context) error {
		sess, err := s.store.sessions().GetActive(ctx, rfid)
		if err != nil {
			return err
		}
		ended = sess
		if !sess.ExpiresAt.After(now) {
			return s.store.sessions().End(ctx, sess.ID, models.EndExpired, sess.ExpiresAt)
		}
		return s.store.sessions().End(ctx, sess.ID, models.EndStopped, now)
	})
	if errors.Is(err, common.ErrNotFound) {
		return common.ErrNoActiveSession
	}
	if err != nil {
		return err
	}

	if !ended.ExpiresAt.After(now) {
		s.logger.Info(ctx, "session expired", "card_id", rfid, "session_id", ended.ID)
		s.notifier.Publish(realtime.CardTopic(rfid), EventSessionExpired, map[string]any{
			"rfid":       rfid,
			"session_id": ended.ID,
		})
		return common.ErrNoActiveSession
	}
	s.logger.Info(ctx, "session stopped", "card_id", rfid, "session_id", ended.ID)
	s.notifier.Publish(realtime.CardTopic(rfid), EventSessionStopped, map[string]any{"rfid": rfid})
	return nil
}

// Credit tops up a registered card.
func (s *BillingService) Credit(ctx context.Context, rfid string, amount models.Centavos, source string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", common.ErrValidation)
	}
	now := s.now()
	var credit *models.Transaction
	err := s.store.inTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		users := s.store.repos.Users(tx)
		if _, err := users.FindRegistered(ctx, rfid); err != nil {
			return err
		}
		balance, err := users.AdjustBalance(ctx, rfid, amount, now)
		if err != nil {
			return err
		}
		credit = &models.Transaction{
			ID:           uuid.NewString(),
			RFIDCardID:   rfid,
			Type:         models.TxTopUp,
			Amount:       amount,
			BalanceAfter: balance,
			Source:       source,
			CreatedAt:    now,
		}
		return s.store.repos.Transactions(tx).Create(ctx, credit)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "card credited", "card_id", rfid, "amount", amount.String(), "source", source)
	s.transactionCreated(ctx, *credit)
	s.notifier.Publish(realtime.CardTopic(rfid), EventBalanceUpdated, credit)
	return credit, nil
}

// ExpireSessions closes sessions whose paid interval has run out.
func (s *BillingService) ExpireSessions(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := doValue(ctx, s.store, func(ctx context.Context) ([]models.WifiSession, error) {
		return s.store.sessions().ListExpired(ctx, now, sweepBatch)
	})
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, sess := range expired {
		err := s.store.do(ctx, func(ctx context.Context) error {
			return s.store.sessions().End(ctx, sess.ID, models.EndExpired, sess.ExpiresAt)
		})
		if errors.Is(err, common.ErrNotFound) {
			continue
		}
		if err != nil {
			return ended, err
		}
		ended++
		s.logger.Info(ctx, "session expired", "card_id", sess.RFIDCardID, "session_id", sess.ID)
		s.notifier.Publish(realtime.CardTopic(sess.RFIDCardID), EventSessionExpired, map[string]any{
			"rfid":       sess.RFIDCardID,
			"session_id": sess.ID,
		})
	}
	return ended, nil
}

// RunSweeper expires sessions every sweep interval until ctx is done.
func (s *BillingService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireSessions(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "session sweep failed", "error", err)
			}
		}
	}
}

func (s *BillingService) TopUpInstructions() models.TopUpInstructions {
	return models.TopUpInstructions{
		Message: "Top up at the EZ-Vendo kiosk",
		Steps: []string{
			"Tap your RFID card on the kiosk reader.",
			"Insert coins into the coin slot.",
			"Your balance updates as each coin is accepted.",
		},
		Rate:     s.rate,
		Interval: int(s.interval / time.Second),
	}
}

func (s *BillingService) OnlineUsers(ctx context.Context) (int, error) {
	now := s.now()
	return doValue(ctx, s.store, func(ctx context.Context) (int, error) {
		return s.store.sessions().CountActive(ctx, now)
	})
}

// HandleCoin credits coins reported by the kiosk coin acceptor.
func (s *BillingService) HandleCoin(ctx context.Context, coin models.CoinInserted) error {
	_, err := s.Credit(ctx, coin.RFIDCardID, coin.Amount, models.SourceCoin)
	return err
}

func (s *BillingService) activeUser(ctx context.Context, rfid string) (*models.User, error) {
	user, err := doValue(ctx, s.store, func(ctx context.Context) (*models.User, error) {
		return s.store.users().FindRegistered(ctx, rfid)
	})
	if err != nil {
		return nil, err
	}
	if !user.CanUsePortal() {
		return nil, common.ErrAccountInactive
	}
	return user, nil
}

func (s *BillingService) transactionCreated(ctx context.Context, tx models.Transaction) {
	if err := s.events.TransactionCreated(ctx, tx); err != nil {
		s.logger.Warn(ctx, "transaction event not published", "transaction_id", tx.ID, "error", err)
	}
}

func toActive(sess *models.WifiSession, now time.Time) *models.ActiveSession {
	if sess == nil || !sess.ExpiresAt.After(now) {
		return nil
	}
	return &models.ActiveSession{
		ID:               sess.ID,
		StartedAt:        sess.StartedAt,
		ExpiresAt:        sess.ExpiresAt,
		RemainingSeconds: ceilSeconds(sess.Remaining(now)),
	}
}
