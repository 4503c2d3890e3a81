package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/events"
	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/repositories"
	"github.com/ezvendo/portal/internal/validation"
)

// RegistrationService turns a tapped, unregistered card into an account.
type RegistrationService struct {
	store       store
	tokens      CardTokens
	events      events.Publisher
	logger      logging.Logger
	now         func() time.Time
	window      time.Duration
	maxAttempts int
	bcryptCost  int
}

func NewRegistrationService(tx db.Transactor, repos repositories.Manager, tokens CardTokens, publisher events.Publisher, cfg *config.Config, logger logging.Logger) *RegistrationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &RegistrationService{
		store:       newStore(tx, repos, cfg),
		tokens:      tokens,
		events:      publisher,
		logger:      logger,
		now:         time.Now,
		window:      cfg.RegistrationWindow,
		maxAttempts: cfg.MaxAttempts,
		bcryptCost:  bcrypt.DefaultCost,
	}
}

// Begin opens (or resumes) the registration window of a card. The window
// starts on the first visit and is measured on the server clock.
func (s *RegistrationService) Begin(ctx context.Context, rfid string, attempt int) (*models.RegistrationWindow, error) {
	user, err := s.eligible(ctx, rfid)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start := now
	if user.RegistrationTimerStart != nil {
		start = *user.RegistrationTimerStart
	} else {
		err := s.store.do(ctx, func(ctx context.Context) error {
			return s.store.users().StartRegistrationTimer(ctx, rfid, now)
		})
		switch {
		case errors.Is(err, common.ErrNotFound):
			// another request started it first
			user, err = s.eligible(ctx, rfid)
			if err != nil {
				return nil, err
			}
			if user.RegistrationTimerStart != nil {
				start = *user.RegistrationTimerStart
			}
		case err != nil:
			return nil, err
		}
	}

	remaining := s.window - now.Sub(start)
	if remaining <= 0 {
		return nil, common.ErrRegistrationExpired
	}
	if attempt < 1 {
		attempt = max(user.Attempts, 1)
	}
	return &models.RegistrationWindow{
		RFIDCardID:       rfid,
		Attempt:          attempt,
		MaxAttempts:      s.maxAttempts,
		StartedAt:        start,
		ExpiresAt:        start.Add(s.window),
		RemainingSeconds: ceilSeconds(remaining),
	}, nil
}

// Submit validates the form and registers the card.
func (s *RegistrationService) Submit(ctx context.Context, req models.RegisterRequest) (*models.LoginResponse, error) {
	errs := validation.Registration(req.FirstName, req.LastName, req.Email, req.Password, req.ConfirmPassword)
	if strings.TrimSpace(req.RFIDCardID) == "" {
		errs["rfid"] = "RFID required"
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	rfid := strings.TrimSpace(req.RFIDCardID)
	user, err := s.eligible(ctx, rfid)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if user.RegistrationTimerStart != nil && now.Sub(*user.RegistrationTimerStart) >= s.window {
		return nil, common.ErrRegistrationExpired
	}

	email := normalizeEmail(req.Email)
	existing, err := doValue(ctx, s.store, func(ctx context.Context) (*models.User, error) {
		return s.store.users().GetByEmail(ctx, email)
	})
	switch {
	case err == nil && existing.RFIDCardID != rfid:
		return nil, common.ErrEmailTaken
	case err != nil && !errors.Is(err, common.ErrNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", common.ErrInternal, err)
	}

	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}
	user.IsRegistered = true
	user.FirstName = strings.TrimSpace(req.FirstName)
	user.LastName = strings.TrimSpace(req.LastName)
	user.Email = email
	user.PasswordHash = string(hash)
	user.Status = models.StatusActive
	user.AccountType = models.AccountTypeUser
	user.Attempts = 0
	user.RegistrationMethod = models.RegistrationMethodRFID
	user.RegistrationAttempt = attempt
	user.RegistrationTimerStart = nil
	user.RegisteredAt = &now
	user.LastLogin = &now
	user.UpdatedAt = now

	err = s.store.do(ctx, func(ctx context.Context) error {
		return s.store.users().CompleteRegistration(ctx, user)
	})
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrAlreadyRegistered
	}
	if err != nil {
		return nil, err
	}

	if err := s.events.UserRegistered(ctx, user); err != nil {
		s.logger.Warn(ctx, "registration event not published", "card_id", rfid, "error", err)
	}
	s.logger.Info(ctx, "card registered", "card_id", rfid, "attempt", attempt)

	token, expiresAt, err := s.tokens.IssueCardToken(rfid)
	if err != nil {
		return nil, err
	}
	return &models.LoginResponse{
		Token:      token,
		User:       toDTO(user),
		ExpiresAt:  expiresAt,
		RedirectTo: "/dashboard?rfid=" + rfid,
	}, nil
}

// eligible loads a card that may still register.
func (s *RegistrationService) eligible(ctx context.Context, rfid string) (*models.User, error) {
	user, err := doValue(ctx, s.store, func(ctx context.Context) (*models.User, error) {
		return s.store.users().GetByRFID(ctx, rfid)
	})
	if err != nil {
		return nil, err
	}
	if user.IsRegistered {
		return nil, common.ErrAlreadyRegistered
	}
	if user.Attempts > s.maxAttempts {
		return nil, common.ErrAttemptsExhausted
	}
	return user, nil
}
