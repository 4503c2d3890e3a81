package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/logging"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/realtime"
	"github.com/ezvendo/portal/internal/repositories"
	"github.com/ezvendo/portal/internal/storage"
	"github.com/ezvendo/portal/internal/validation"
)

const (
	MsgInvalidPassword = "Invalid password"

	EventAccountDeactivated = "account_deactivated"
)

// AvatarSigner presigns avatar object URLs.
type AvatarSigner interface {
	PresignUpload(ctx context.Context, key string) (string, time.Time, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

type ProfileService struct {
	store    store
	avatars  AvatarSigner
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time
}

func NewProfileService(tx db.Transactor, repos repositories.Manager, avatars AvatarSigner, notifier Notifier, cfg *config.Config, logger logging.Logger) *ProfileService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ProfileService{
		store:    newStore(tx, repos, cfg),
		avatars:  avatars,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ProfileService) Get(ctx context.Context, rfid string) (*models.Profile, error) {
	user, err := s.user(ctx, rfid)
	if err != nil {
		return nil, err
	}

	p := &models.Profile{
		RFIDCardID:   user.RFIDCardID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		FullName:     user.FullName(),
		Email:        user.Email,
		Balance:      user.Balance,
		Status:       user.Status,
		AccountType:  user.AccountType,
		RegisteredAt: user.RegisteredAt,
		LastLogin:    user.LastLogin,
	}
	if user.AvatarKey != "" && s.avatars != nil {
		url, err := s.avatars.PresignDownload(ctx, user.AvatarKey)
		if err != nil {
			s.logger.Warn(ctx, "avatar url not signed", "card_id", rfid, "error", err)
		} else {
			p.AvatarURL = url
		}
	}
	return p, nil
}

func (s *ProfileService) Update(ctx context.Context, rfid string, req models.UpdateProfileRequest) (*models.Profile, error) {
	errs := validation.Errors{}
	errs.Required("firstName", req.FirstName)
	errs.Required("lastName", req.LastName)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	if _, err := s.user(ctx, rfid); err != nil {
		return nil, err
	}
	now := s.now()
	first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if err := s.store.do(ctx, func(ctx context.Context) error {
		return s.store.users().UpdateProfile(ctx, rfid, first, last, now)
	}); err != nil {
		return nil, err
	}
	return s.Get(ctx, rfid)
}

// Deactivate returns the card to the unregistered pool after checking the
// password. Any running session is stopped; the balance stays on the card.
func (s *ProfileService) Deactivate(ctx context.Context, rfid, password string) error {
	errs := validation.Errors{}
	if !errs.Required("password", password) {
		return errs
	}

	user, err := s.user(ctx, rfid)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return validation.Errors{"password": MsgInvalidPassword}
	}

	now := s.now()
	err = s.store.inTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		sessions := s.store.repos.Sessions(tx)
		sess, err := sessions.GetActive(ctx, rfid)
		switch {
		case err == nil:
			if err := sessions.End(ctx, sess.ID, models.EndStopped, now); err != nil && !errors.Is(err, common.ErrNotFound) {
				return err
			}
		case !errors.Is(err, common.ErrNotFound):
			return err
		}
		return s.store.repos.Users(tx).Deactivate(ctx, rfid, now)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "account deactivated", "card_id", rfid)
	s.notifier.Publish(realtime.CardTopic(rfid), EventAccountDeactivated, map[string]any{"rfid": rfid})
	return nil
}

// AvatarUpload hands out a presigned PUT URL and remembers the new key.
func (s *ProfileService) AvatarUpload(ctx context.Context, rfid string) (*models.AvatarUpload, error) {
	if s.avatars == nil {
		return nil, common.ErrUnavailable
	}
	if _, err := s.user(ctx, rfid); err != nil {
		return nil, err
	}

	key := storage.NewKey(rfid)
	url, expiresAt, err := s.avatars.PresignUpload(ctx, key)
	if err != nil {
		s.logger.Error(ctx, "avatar upload not signed", "card_id", rfid, "error", err)
		return nil, common.ErrUnavailable
	}
	now := s.now()
	if err := s.store.do(ctx, func(ctx context.Context) error {
		return s.store.users().SetAvatarKey(ctx, rfid, key, now)
	}); err != nil {
		return nil, err
	}
	return &models.AvatarUpload{UploadURL: url, Key: key, ExpiresAt: expiresAt}, nil
}

func (s *ProfileService) user(ctx context.Context, rfid string) (*models.User, error) {
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
