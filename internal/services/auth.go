package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ezvendo/portal/internal/auth"
	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/repositories"
)

type AuthService struct {
	store   store
	revoked auth.RevocationStore
	secret  []byte
	ttl     time.Duration
	logger  logging.Logger
	now     func() time.Time
}

func NewAuthService(tx db.Transactor, repos repositories.Manager, revoked auth.RevocationStore, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		store:   newStore(tx, repos, cfg),
		revoked: revoked,
		secret:  []byte(cfg.JWTSecret),
		ttl:     cfg.TokenTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// SignIn checks email and password of a registered, active card holder.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, common.ErrUnauthorized
	}

	user, err := doValue(ctx, s.store, func(ctx context.Context) (*models.User, error) {
		return s.store.users().GetByEmail(ctx, email)
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsRegistered || user.PasswordHash == "" {
		return nil, common.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, common.ErrUnauthorized
	}
	if user.Status != models.StatusActive {
		return nil, common.ErrAccountInactive
	}

	now := s.now()
	if err := s.store.do(ctx, func(ctx context.Context) error {
		return s.store.users().ResetAttempts(ctx, user.RFIDCardID, now)
	}); err != nil {
		return nil, err
	}

	token, claims, err := auth.GenerateToken(user.RFIDCardID, auth.MethodPassword, s.secret, s.ttl, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	s.logger.Info(ctx, "signed in", "card_id", user.RFIDCardID, "method", auth.MethodPassword)

	return &models.LoginResponse{
		Token:      token,
		User:       toDTO(user),
		ExpiresAt:  claims.ExpiresAt.Time,
		RedirectTo: "/dashboard",
	}, nil
}

// IssueCardToken signs a token for a card that was just tapped at the kiosk.
func (s *AuthService) IssueCardToken(rfid string) (string, time.Time, error) {
	token, claims, err := auth.GenerateToken(rfid, auth.MethodRFID, s.secret, s.ttl, s.now())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", common.ErrInternal, err)
	}
	return token, claims.ExpiresAt.Time, nil
}

// Authenticate validates the token and rejects signed-out ones.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := auth.ParseToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	if s.revoked == nil {
		return claims, nil
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		s.logger.Error(ctx, "revocation check failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: signed out", common.ErrInvalidToken)
	}
	return claims, nil
}

// SignOut revokes the token until it would have expired.
func (s *AuthService) SignOut(ctx context.Context, claims *auth.Claims) error {
	if s.revoked == nil || claims == nil {
		return nil
	}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Time.Sub(s.now())
	}
	if err := s.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	s.logger.Info(ctx, "signed out", "card_id", claims.CardID())
	return nil
}

// Me returns the signed-in card holder.
func (s *AuthService) Me(ctx context.Context, rfid string) (*models.UserDTO, error) {
	user, err := doValue(ctx, s.store, func(ctx context.Context) (*models.User, error) {
		return s.store.users().FindRegistered(ctx, rfid)
	})
	if err != nil {
		return nil, err
	}
	if !user.CanUsePortal() {
		return nil, common.ErrAccountInactive
	}
	dto := toDTO(user)
	return &dto, nil
}

func toDTO(u *models.User) models.UserDTO {
	return models.UserDTO{
		RFIDCardID: u.RFIDCardID,
		FullName:   u.FullName(),
		Email:      u.Email,
		Balance:    u.Balance,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
