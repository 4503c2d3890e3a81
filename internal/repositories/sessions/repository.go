// Package sessions stores metered internet sessions.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.WifiSession) error
	// GetActive returns the open session of a card, common.ErrNotFound if none.
	GetActive(ctx context.Context, rfid string) (*models.WifiSession, error)
	// End closes an open session; common.ErrNotFound if it was already closed.
	End(ctx context.Context, id, reason string, at time.Time) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WifiSession, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
}

const columns = `id, rfid_card_id, started_at, expires_at, ended_at, end_reason, charged_cents`

type MySQLRepository struct {
	db db.DBTX
}

func NewMySQLRepository(conn db.DBTX) *MySQLRepository {
	return &MySQLRepository{db: conn}
}

func (r *MySQLRepository) Create(ctx context.Context, s *models.WifiSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO wifi_sessions (id, rfid_card_id, started_at, expires_at, charged_cents)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.RFIDCardID, s.StartedAt, s.ExpiresAt, int64(s.Charged))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MySQLRepository) GetActive(ctx context.Context, rfid string) (*models.WifiSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+` FROM wifi_sessions
		WHERE rfid_card_id = ? AND ended_at IS NULL
		ORDER BY started_at DESC LIMIT 1`, rfid)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		return nil, common.ErrNotFound
	}
	s, err := scan(rows)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MySQLRepository) End(ctx context.Context, id, reason string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wifi_sessions SET ended_at = ?, end_reason = ?
		WHERE id = ? AND ended_at IS NULL`, at, reason, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *MySQLRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WifiSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+columns+` FROM wifi_sessions
		WHERE ended_at IS NULL AND expires_at <= ?
		ORDER BY expires_at LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.WifiSession
	for rows.Next() {
		s, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *MySQLRepository) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM wifi_sessions WHERE ended_at IS NULL AND expires_at > ?`, now).Scan(&n)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func scan(rows *sql.Rows) (models.WifiSession, error) {
	var (
		s       models.WifiSession
		ended   sql.NullTime
		reason  sql.NullString
		charged int64
	)
	if err := rows.Scan(&s.ID, &s.RFIDCardID, &s.StartedAt, &s.ExpiresAt, &ended, &reason, &charged); err != nil {
		return s, fmt.Errorf("db error: %w", err)
	}
	if ended.Valid {
		t := ended.Time
		s.EndedAt = &t
	}
	s.EndReason = reason.String
	s.Charged = models.Centavos(charged)
	return s, nil
}
