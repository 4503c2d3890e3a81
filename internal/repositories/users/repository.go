// Package users stores card holder records keyed by RFID card id.
package users

import (
	"context"
	"time"

	"github.com/ezvendo/portal/internal/models"
)

type Repository interface {
	GetByRFID(ctx context.Context, rfid string) (*models.User, error)
	// FindRegistered matches on card id and the registration flag.
	FindRegistered(ctx context.Context, rfid string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// CreatePending inserts an unregistered record; existing cards are left alone.
	CreatePending(ctx context.Context, rfid string, now time.Time) error
	// IncrementAttempts bumps the attempt counter and returns the new value.
	IncrementAttempts(ctx context.Context, rfid string, now time.Time) (int, error)
	// ResetAttempts zeroes the counter and stamps the last login.
	ResetAttempts(ctx context.Context, rfid string, now time.Time) error
	StartRegistrationTimer(ctx context.Context, rfid string, now time.Time) error
	CompleteRegistration(ctx context.Context, u *models.User) error
	// AdjustBalance applies delta unless the result would go below zero and
	// returns the new balance. common.ErrInsufficientBalance otherwise.
	AdjustBalance(ctx context.Context, rfid string, delta models.Centavos, now time.Time) (models.Centavos, error)
	UpdateProfile(ctx context.Context, rfid, firstName, lastName string, now time.Time) error
	SetAvatarKey(ctx context.Context, rfid, key string, now time.Time) error
	Deactivate(ctx context.Context, rfid string, now time.Time) error
}
