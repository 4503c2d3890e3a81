// Package transactions stores balance movements (top-ups and deductions).
package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/models"
)

type Repository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	// ListByCard returns transactions created at or after since, newest first.
	// limit <= 0 means no limit.
	ListByCard(ctx context.Context, rfid string, since time.Time, limit int) ([]models.Transaction, error)
}

type MySQLRepository struct {
	db db.DBTX
}

func NewMySQLRepository(conn db.DBTX) *MySQLRepository {
	return &MySQLRepository{db: conn}
}

func (r *MySQLRepository) Create(ctx context.Context, t *models.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, rfid_card_id, type, amount_cents, balance_after_cents, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.RFIDCardID, t.Type, int64(t.Amount), int64(t.BalanceAfter), t.Source, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *MySQLRepository) ListByCard(ctx context.Context, rfid string, since time.Time, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, rfid_card_id, type, amount_cents, balance_after_cents, source, created_at
		FROM transactions
		WHERE rfid_card_id = ? AND created_at >= ?
		ORDER BY created_at DESC`
	args := []any{rfid, since}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.Transaction, 0)
	for rows.Next() {
		t, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func scan(rows *sql.Rows) (models.Transaction, error) {
	var (
		t            models.Transaction
		amount       int64
		balanceAfter int64
	)
	if err := rows.Scan(&t.ID, &t.RFIDCardID, &t.Type, &amount, &balanceAfter, &t.Source, &t.CreatedAt); err != nil {
		return t, fmt.Errorf("db error: %w", err)
	}
	t.Amount = models.Centavos(amount)
	t.BalanceAfter = models.Centavos(balanceAfter)
	return t, nil
}
