package sessions

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/models"
)

var sessionCols = []string{"id", "rfid_card_id", "started_at", "expires_at", "ended_at", "end_reason", "charged_cents"}

func newMock(t *testing.T) (*MySQLRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewMySQLRepository(conn), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newMock(t)
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	exp := start.Add(10 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wifi_sessions")).
		WithArgs("s-1", "04A1B2", start, exp, int64(500)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), &models.WifiSession{
		ID: "s-1", RFIDCardID: "04A1B2", StartedAt: start, ExpiresAt: exp, Charged: 500,
	}))
}

func TestGetActive(t *testing.T) {
	repo, mock := newMock(t)
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	exp := start.Add(10 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE rfid_card_id = ? AND ended_at IS NULL")).
		WithArgs("04A1B2").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow("s-1", "04A1B2", start, exp, nil, nil, int64(500)))

	s, err := repo.GetActive(context.Background(), "04A1B2")
	require.NoError(t, err)
	assert.Equal(t, "s-1", s.ID)
	assert.Nil(t, s.EndedAt)
	assert.Equal(t, 4*time.Minute, s.Remaining(start.Add(6*time.Minute)))
	assert.Equal(t, time.Duration(0), s.Remaining(exp.Add(time.Second)))
}

func TestGetActive_None(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery("FROM wifi_sessions").WillReturnRows(sqlmock.NewRows(sessionCols))

	_, err := repo.GetActive(context.Background(), "04A1B2")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestEnd_AlreadyClosed(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE wifi_sessions SET ended_at = ?, end_reason = ?")).
		WithArgs(now, models.EndStopped, "s-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.End(context.Background(), "s-1", models.EndStopped, now)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestListExpired(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("expires_at <= ?")).
		WithArgs(now, 100).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("s-1", "A", now.Add(-time.Hour), now.Add(-time.Minute), nil, nil, int64(500)).
			AddRow("s-2", "B", now.Add(-time.Hour), now, nil, nil, int64(500)))

	got, err := repo.ListExpired(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[1].RFIDCardID)
}

func TestCountActive(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM wifi_sessions")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(7))

	n, err := repo.CountActive(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}
