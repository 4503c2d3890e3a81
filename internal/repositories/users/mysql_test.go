package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/models"
)

var userCols = []string{
	"rfid_card_id", "is_registered", "first_name", "last_name", "email", "password_hash",
	"balance_cents", "status", "account_type", "attempts", "registration_method", "registration_attempt",
	"registration_timer_start", "avatar_key", "registered_at", "last_login", "created_at", "updated_at",
}

func newMock(t *testing.T) (*MySQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewMySQLRepository(conn), mock
}

func TestGetByRFID_Registered(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE rfid_card_id = ?")).
		WithArgs("04A1B2").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			"04A1B2", true, "Juan", "Dela Cruz", "juan@example.com", "hash",
			int64(1500), "active", "user", 0, "rfid_scan", 1,
			nil, nil, now, now, now, now))

	u, err := repo.GetByRFID(context.Background(), "04A1B2")
	require.NoError(t, err)
	assert.Equal(t, "Juan Dela Cruz", u.FullName())
	assert.Equal(t, models.Centavos(1500), u.Balance)
	assert.True(t, u.CanUsePortal())
	assert.Nil(t, u.RegistrationTimerStart)
	require.NotNil(t, u.RegisteredAt)
	assert.Equal(t, now, *u.RegisteredAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRegistered_NotFound(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE rfid_card_id = ? AND is_registered = 1")).
		WithArgs("UNKNOWN").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindRegistered(context.Background(), "UNKNOWN")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetByEmail_DBError(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("FROM users WHERE email").WillReturnError(errors.New("conn reset"))

	_, err := repo.GetByEmail(context.Background(), "a@b.co")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
	assert.False(t, errors.Is(err, common.ErrNotFound))
}

func TestCreatePending(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO users")).
		WithArgs("04A1B2", models.StatusPending, models.AccountTypeUser, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreatePending(context.Background(), "04A1B2", now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementAttempts(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("SET attempts = LAST_INSERT_ID(attempts + 1)")+`.+registration_timer_start = NULL`).
		WithArgs(now, "04A1B2").
		WillReturnResult(sqlmock.NewResult(2, 1))

	n, err := repo.IncrementAttempts(context.Background(), "04A1B2", now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIncrementAttempts_UnknownCard(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("UPDATE users SET attempts").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.IncrementAttempts(context.Background(), "nope", time.Now())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestAdjustBalance(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("balance_cents = LAST_INSERT_ID(balance_cents + ?)")).
		WithArgs(int64(-500), now, "04A1B2", int64(-500)).
		WillReturnResult(sqlmock.NewResult(1000, 1))

	bal, err := repo.AdjustBalance(context.Background(), "04A1B2", -500, now)
	require.NoError(t, err)
	assert.Equal(t, models.Centavos(1000), bal)
}

func TestAdjustBalance_Insufficient(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec("UPDATE users SET balance_cents").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := repo.AdjustBalance(context.Background(), "04A1B2", -500, time.Now())
	require.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestCompleteRegistration_DuplicateEmail(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec("UPDATE users SET").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	err := repo.CompleteRegistration(context.Background(), &models.User{
		RFIDCardID: "04A1B2", Email: "taken@example.com", RegisteredAt: &now, LastLogin: &now, UpdatedAt: now,
	})
	require.ErrorIs(t, err, common.ErrEmailTaken)
}

func TestCompleteRegistration_AlreadyRegistered(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec("UPDATE users SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CompleteRegistration(context.Background(), &models.User{RFIDCardID: "04A1B2", UpdatedAt: now})
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("is_registered = 0, status = ?, email = NULL")).
		WithArgs(models.StatusDeactivated, now, "04A1B2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Deactivate(context.Background(), "04A1B2", now))
	require.NoError(t, mock.ExpectationsWereMet())
}
