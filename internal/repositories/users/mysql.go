package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/models"
)

const mysqlDuplicateEntry = 1062

const columns = `rfid_card_id, is_registered, first_name, last_name, email, password_hash,
	balance_cents, status, account_type, attempts, registration_method, registration_attempt,
	registration_timer_start, avatar_key, registered_at, last_login, created_at, updated_at`

type MySQLRepository struct {
	db db.DBTX
}

func NewMySQLRepository(conn db.DBTX) *MySQLRepository {
	return &MySQLRepository{db: conn}
}

func (r *MySQLRepository) GetByRFID(ctx context.Context, rfid string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM users WHERE rfid_card_id = ?`, rfid)
	return scanUser(row)
}

func (r *MySQLRepository) FindRegistered(ctx context.Context, rfid string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM users WHERE rfid_card_id = ? AND is_registered = 1 LIMIT 1`, rfid)
	return scanUser(row)
}

func (r *MySQLRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *MySQLRepository) CreatePending(ctx context.Context, rfid string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT IGNORE INTO users (rfid_card_id, is_registered, status, account_type, created_at, updated_at)
		VALUES (?, 0, ?, ?, ?, ?)`,
		rfid, models.StatusPending, models.AccountTypeUser, now, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// IncrementAttempts relies on LAST_INSERT_ID(expr) so the new counter comes
// back in the same round trip as the update. Each attempt gets its own
// registration window, so the timer is cleared too.
func (r *MySQLRepository) IncrementAttempts(ctx context.Context, rfid string, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET attempts = LAST_INSERT_ID(attempts + 1),
			registration_timer_start = NULL, updated_at = ?
		WHERE rfid_card_id = ?`, now, rfid)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	if err := expectOne(res); err != nil {
		return 0, err
	}
	n, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}

func (r *MySQLRepository) ResetAttempts(ctx context.Context, rfid string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET attempts = 0, last_login = ?, updated_at = ?
		WHERE rfid_card_id = ?`, now, now, rfid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *MySQLRepository) StartRegistrationTimer(ctx context.Context, rfid string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET registration_timer_start = ?, updated_at = ?
		WHERE rfid_card_id = ? AND registration_timer_start IS NULL`, now, now, rfid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *MySQLRepository) CompleteRegistration(ctx context.Context, u *models.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			is_registered = 1, first_name = ?, last_name = ?, email = ?, password_hash = ?,
			status = ?, account_type = ?, attempts = 0, registration_method = ?,
			registration_attempt = ?, registration_timer_start = NULL,
			registered_at = ?, last_login = ?, updated_at = ?
		WHERE rfid_card_id = ? AND is_registered = 0`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash,
		u.Status, u.AccountType, u.RegistrationMethod,
		u.RegistrationAttempt,
		u.RegisteredAt, u.LastLogin, u.UpdatedAt,
		u.RFIDCardID)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return common.ErrEmailTaken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *MySQLRepository) AdjustBalance(ctx context.Context, rfid string, delta models.Centavos, now time.Time) (models.Centavos, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET balance_cents = LAST_INSERT_ID(balance_cents + ?), updated_at = ?
		WHERE rfid_card_id = ? AND balance_cents + ? >= 0`,
		int64(delta), now, rfid, int64(delta))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return 0, common.ErrInsufficientBalance
	}
	balance, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return models.Centavos(balance), nil
}

func (r *MySQLRepository) UpdateProfile(ctx context.Context, rfid, firstName, lastName string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET first_name = ?, last_name = ?, updated_at = ?
		WHERE rfid_card_id = ? AND is_registered = 1`, firstName, lastName, now, rfid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *MySQLRepository) SetAvatarKey(ctx context.Context, rfid, key string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET avatar_key = ?, updated_at = ? WHERE rfid_card_id = ?`, key, now, rfid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

// Deactivate returns the card to the unregistered pool; the balance stays on the card.
func (r *MySQLRepository) Deactivate(ctx context.Context, rfid string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET
			is_registered = 0, status = ?, email = NULL, password_hash = '',
			attempts = 0, registration_timer_start = NULL, avatar_key = NULL, updated_at = ?
		WHERE rfid_card_id = ? AND is_registered = 1`, models.StatusDeactivated, now, rfid)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u          models.User
		email      sql.NullString
		avatar     sql.NullString
		timerStart sql.NullTime
		registered sql.NullTime
		lastLogin  sql.NullTime
		balance    int64
	)
	err := row.Scan(&u.RFIDCardID, &u.IsRegistered, &u.FirstName, &u.LastName, &email, &u.PasswordHash,
		&balance, &u.Status, &u.AccountType, &u.Attempts, &u.RegistrationMethod, &u.RegistrationAttempt,
		&timerStart, &avatar, &registered, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	u.Email = email.String
	u.AvatarKey = avatar.String
	u.Balance = models.Centavos(balance)
	u.RegistrationTimerStart = nullTime(timerStart)
	u.RegisteredAt = nullTime(registered)
	u.LastLogin = nullTime(lastLogin)
	return &u, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
