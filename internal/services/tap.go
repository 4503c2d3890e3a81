package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/realtime"
	"github.com/ezvendo/portal/internal/repositories"
	"github.com/ezvendo/portal/internal/rfid"
)

const (
	msgScanning     = "Tap your RFID Card to Start or Register"
	msgReading      = "Reading card..."
	msgUnregistered = "Card not registered. Continue to registration."
	msgAttemptsUsed = "Attempts Already Used"
	msgTimedOut     = "Scan timed out"
	msgClosed       = "Closed"

	// EventTap is the websocket event type for tap phase changes.
	EventTap = "tap.phase"

	closedRetention = time.Minute
)

// CardTokens issues tokens for tapped cards.
type CardTokens interface {
	IssueCardToken(rfid string) (string, time.Time, error)
}

type tap struct {
	view     models.Tap
	clientID string
	deadline time.Time
	gen      int
	timer    *time.Timer
}

// TapService drives the kiosk tap screens. The reader serves one tap at a time:
// a tap owns it while SCANNING or READING.
type TapService struct {
	mu     sync.Mutex
	taps   map[string]*tap
	active string

	store    store
	tokens   CardTokens
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time

	scanTimeout time.Duration
	resultHold  time.Duration
	maxAttempts int
}

func NewTapService(tx db.Transactor, repos repositories.Manager, tokens CardTokens, notifier Notifier, cfg *config.Config, logger logging.Logger) *TapService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &TapService{
		taps:        make(map[string]*tap),
		store:       newStore(tx, repos, cfg),
		tokens:      tokens,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		scanTimeout: cfg.ScanTimeout,
		resultHold:  cfg.ResultHold,
		maxAttempts: cfg.MaxAttempts,
	}
}

// Start opens a tap screen waiting for a card. A client that already owns the
// reader gets its open tap back.
func (s *TapService) Start(ctx context.Context, clientID string) (*models.Tap, error) {
	s.mu.Lock()
	if cur, ok := s.taps[s.active]; ok {
		if clientID != "" && cur.clientID == clientID && cur.view.Phase == models.PhaseScanning {
			v := s.snapshot(cur)
			s.mu.Unlock()
			return &v, nil
		}
		s.mu.Unlock()
		return nil, common.ErrReaderBusy
	}

	now := s.now()
	t := &tap{
		clientID: clientID,
		view: models.Tap{
			ID:          uuid.NewString(),
			Phase:       models.PhaseScanning,
			Message:     msgScanning,
			MaxAttempts: s.maxAttempts,
			StartedAt:   now,
		},
	}
	s.taps[t.view.ID] = t
	s.active = t.view.ID
	s.schedule(t, s.scanTimeout, now)
	v := s.snapshot(t)
	s.mu.Unlock()

	s.logger.Info(ctx, "tap started", "tap_id", v.ID, "client_id", clientID)
	s.notify(v)
	return &v, nil
}

func (s *TapService) Get(_ context.Context, id string) (*models.Tap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.taps[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	v := s.snapshot(t)
	return &v, nil
}

// Close ends a tap in any phase. Closing a closed tap is a no-op.
func (s *TapService) Close(ctx context.Context, id string) (*models.Tap, error) {
	s.mu.Lock()
	t, ok := s.taps[id]
	if !ok {
		s.mu.Unlock()
		return nil, common.ErrNotFound
	}
	changed := s.closeLocked(t, msgClosed)
	v := s.snapshot(t)
	s.mu.Unlock()

	if changed {
		s.logger.Info(ctx, "tap closed", "tap_id", id)
		s.notify(v)
	}
	return &v, nil
}

// HandleScan routes an accepted scan to the tap that owns the reader.
func (s *TapService) HandleScan(ctx context.Context, scan rfid.Scan) (string, error) {
	s.mu.Lock()
	t, ok := s.taps[s.active]
	if !ok || t.view.Phase != models.PhaseScanning {
		s.mu.Unlock()
		return "", common.ErrNoActiveTap
	}
	t.gen++
	stopTimer(t)
	t.deadline = time.Time{}
	t.view.Phase = models.PhaseReading
	t.view.Message = msgReading
	t.view.RFIDCardID = scan.CardID
	id, gen := t.view.ID, t.gen
	v := s.snapshot(t)
	s.mu.Unlock()
	s.notify(v)

	res := s.identify(ctx, scan.CardID)

	s.mu.Lock()
	if t.gen != gen || t.view.Phase != models.PhaseReading {
		// closed while reading
		s.mu.Unlock()
		return id, nil
	}
	if s.active == id {
		s.active = ""
	}
	now := s.now()
	switch {
	case res.err != nil:
		s.logger.Error(ctx, "tap identify failed", "tap_id", id, "card_id", scan.CardID, "error", res.err)
		s.closeLocked(t, MsgUnavailable)
	case res.phase == models.PhaseAttemptsUsed:
		s.apply(t, res)
		s.schedule(t, s.scanTimeout, now)
	default:
		s.apply(t, res)
		s.schedule(t, s.resultHold, now)
	}
	v = s.snapshot(t)
	s.mu.Unlock()

	s.logger.Info(ctx, "card tapped", "tap_id", id, "card_id", scan.CardID, "phase", string(v.Phase))
	s.notify(v)
	return id, nil
}

type tapResult struct {
	phase      models.TapPhase
	message    string
	fullName   string
	attempt    int
	redirectTo string
	token      string
	err        error
}

func (s *TapService) identify(ctx context.Context, cardID string) tapResult {
	now := s.now()
	users := s.store.users

	user, err := doValue(ctx, s.store, func(ctx context.Context) (*models.User, error) {
		return users().FindRegistered(ctx, cardID)
	})
	switch {
	case err == nil && user.CanUsePortal():
		if err := s.store.do(ctx, func(ctx context.Context) error {
			return users().ResetAttempts(ctx, cardID, now)
		}); err != nil {
			return tapResult{err: err}
		}
		token, _, err := s.tokens.IssueCardToken(cardID)
		if err != nil {
			return tapResult{err: err}
		}
		return tapResult{
			phase:      models.PhaseRegistered,
			message:    fmt.Sprintf("Welcome back, %s!", user.FullName()),
			fullName:   user.FullName(),
			redirectTo: "/dashboard",
			token:      token,
		}
	case err != nil && !errors.Is(err, common.ErrNotFound):
		return tapResult{err: err}
	}

	attempt, err := doValue(ctx, s.store, func(ctx context.Context) (int, error) {
		if err := users().CreatePending(ctx, cardID, now); err != nil {
			return 0, err
		}
		return users().IncrementAttempts(ctx, cardID, now)
	})
	if err != nil {
		return tapResult{err: err}
	}
	if attempt > s.maxAttempts {
		return tapResult{phase: models.PhaseAttemptsUsed, message: msgAttemptsUsed, attempt: attempt}
	}
	return tapResult{
		phase:      models.PhaseUnregistered,
		message:    msgUnregistered,
		attempt:    attempt,
		redirectTo: fmt.Sprintf("/register?rfid=%s&attempt=%d", cardID, attempt),
	}
}

func (s *TapService) apply(t *tap, r tapResult) {
	t.view.Phase = r.phase
	t.view.Message = r.message
	t.view.FullName = r.fullName
	t.view.Attempt = r.attempt
	t.view.RedirectTo = r.redirectTo
	t.view.Token = r.token
}

// schedule arms the phase timer; it fires only if the tap has not moved on.
func (s *TapService) schedule(t *tap, d time.Duration, now time.Time) {
	t.gen++
	gen := t.gen
	stopTimer(t)
	t.deadline = now.Add(d)
	t.timer = time.AfterFunc(d, func() { s.expire(t.view.ID, gen) })
}

func (s *TapService) expire(id string, gen int) {
	s.mu.Lock()
	t, ok := s.taps[id]
	if !ok || t.gen != gen {
		s.mu.Unlock()
		return
	}
	msg := msgClosed
	if t.view.Phase == models.PhaseScanning || t.view.Phase == models.PhaseAttemptsUsed {
		msg = msgTimedOut
	}
	changed := s.closeLocked(t, msg)
	v := s.snapshot(t)
	s.mu.Unlock()

	if changed {
		s.notify(v)
	}
}

// closeLocked moves t to CLOSED and schedules its removal.
func (s *TapService) closeLocked(t *tap, msg string) bool {
	if t.view.Phase == models.PhaseClosed {
		return false
	}
	t.gen++
	stopTimer(t)
	t.deadline = time.Time{}
	t.view.Phase = models.PhaseClosed
	t.view.Message = msg
	t.view.Token = ""
	if s.active == t.view.ID {
		s.active = ""
	}
	id, gen := t.view.ID, t.gen
	t.timer = time.AfterFunc(closedRetention, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.taps[id]; ok && cur.gen == gen {
			delete(s.taps, id)
		}
	})
	return true
}

func (s *TapService) snapshot(t *tap) models.Tap {
	v := t.view
	if !t.deadline.IsZero() {
		d := t.deadline
		v.ExpiresAt = &d
		v.RemainingSeconds = ceilSeconds(d.Sub(s.now()))
	}
	return v
}

func (s *TapService) notify(v models.Tap) {
	s.notifier.Publish(realtime.TapTopic(v.ID), EventTap, v)
}

func stopTimer(t *tap) {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
