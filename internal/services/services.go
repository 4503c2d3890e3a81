// Package services implements the portal use cases on top of the repositories:
// the kiosk tap flow, card registration, billing, history, sign-in and profile.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/repositories"
	"github.com/ezvendo/portal/internal/repositories/sessions"
	"github.com/ezvendo/portal/internal/repositories/transactions"
	"github.com/ezvendo/portal/internal/repositories/users"
	"github.com/ezvendo/portal/internal/retry"
)

// MsgUnavailable is shown to users whenever the store could not be reached.
const MsgUnavailable = "Something went wrong. Please try again."

// Notifier pushes realtime events to websocket subscribers.
type Notifier interface {
	Publish(topic, eventType string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, any) {}

// store bundles what every service needs to reach MySQL.
type store struct {
	tx     db.Transactor
	repos  repositories.Manager
	policy retry.Policy
}

func newStore(tx db.Transactor, repos repositories.Manager, cfg *config.Config) store {
	return store{
		tx:    tx,
		repos: repos,
		policy: retry.Policy{
			Attempts:  cfg.RetryAttempts,
			Delay:     cfg.RetryDelay,
			Timeout:   cfg.RetryTimeout,
			Retryable: retryable,
		},
	}
}

func retryable(err error) bool {
	return !common.IsDomain(err) && !errors.Is(err, context.Canceled)
}

func (s store) users() users.Repository               { return s.repos.Users(s.tx.DB()) }
func (s store) transactions() transactions.Repository { return s.repos.Transactions(s.tx.DB()) }
func (s store) sessions() sessions.Repository         { return s.repos.Sessions(s.tx.DB()) }

// do runs op under the retry policy. Failures that survive every attempt
// become common.ErrUnavailable; domain errors pass through unchanged.
func (s store) do(ctx context.Context, op func(ctx context.Context) error) error {
	return unavailable(retry.Do(ctx, s.policy, op))
}

// inTx is do with op wrapped in a single transaction per attempt.
func (s store) inTx(ctx context.Context, op func(ctx context.Context, tx db.DBTX) error) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.tx.WithTx(ctx, op)
	})
}

func doValue[T any](ctx context.Context, s store, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := retry.DoValue(ctx, s.policy, op)
	return v, unavailable(err)
}

func unavailable(err error) error {
	if err == nil || common.IsDomain(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
