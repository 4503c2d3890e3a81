package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ezvendo/portal/internal/common"
	"github.com/ezvendo/portal/internal/config"
	"github.com/ezvendo/portal/internal/db"
	"github.com/ezvendo/portal/internal/models"
	"github.com/ezvendo/portal/internal/repositories/sessions"
	"github.com/ezvendo/portal/internal/repositories/transactions"
	"github.com/ezvendo/portal/internal/repositories/users"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Timezone = "UTC"
	cfg.RetryAttempts = 2
	cfg.RetryDelay = time.Millisecond
	cfg.RetryTimeout = time.Second
	return cfg
}

// memTx runs units of work directly against the in-memory store.
type memTx struct{}

func (memTx) DB() db.DBTX { return nil }
func (memTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	return fn(ctx, nil)
}

// memStore is a repositories.Manager backed by maps.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	txs      []models.Transaction
	sessions map[string]*models.WifiSession

	// err, when set, is returned by every user lookup.
	err   error
	calls int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*models.User),
		sessions: make(map[string]*models.WifiSession),
	}
}

func (m *memStore) Users(db.DBTX) users.Repository               { return (*memUsers)(m) }
func (m *memStore) Transactions(db.DBTX) transactions.Repository { return (*memTxs)(m) }
func (m *memStore) Sessions(db.DBTX) sessions.Repository         { return (*memSessions)(m) }

func (m *memStore) put(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.RFIDCardID] = &u
}

func (m *memStore) get(rfid string) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[rfid]
}

func registeredUser(rfid string, balance models.Centavos) models.User {
	return models.User{
		RFIDCardID:   rfid,
		IsRegistered: true,
		FirstName:    "Juan",
		LastName:     "Dela Cruz",
		Email:        rfid + "@example.com",
		Balance:      balance,
		Status:       models.StatusActive,
		AccountType:  models.AccountTypeUser,
	}
}

type memUsers memStore

func (r *memUsers) lookup(rfid string) (*models.User, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	u, ok := r.users[rfid]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (r *memUsers) GetByRFID(_ context.Context, rfid string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(rfid)
	if err != nil {
		return nil, err
	}
	cp := *u
	return &cp, nil
}

func (r *memUsers) FindRegistered(ctx context.Context, rfid string) (*models.User, error) {
	u, err := r.GetByRFID(ctx, rfid)
	if err != nil {
		return nil, err
	}
	if !u.IsRegistered {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.users {
		if u.Email != "" && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memUsers) CreatePending(_ context.Context, rfid string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[rfid]; !ok {
		r.users[rfid] = &models.User{
			RFIDCardID:  rfid,
			Status:      models.StatusPending,
			AccountType: models.AccountTypeUser,
			CreatedAt:   now,
		}
	}
	return nil
}

func (r *memUsers) IncrementAttempts(_ context.Context, rfid string, _ time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(rfid)
	if err != nil {
		return 0, err
	}
	u.Attempts++
	u.RegistrationTimerStart = nil
	return u.Attempts, nil
}

func (r *memUsers) ResetAttempts(_ context.Context, rfid string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(rfid)
	if err != nil {
		return err
	}
	u.Attempts = 0
	u.LastLogin = &now
	return nil
}

func (r *memUsers) StartRegistrationTimer(_ context.Context, rfid string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(rfid)
	if err != nil {
		return err
	}
	if u.RegistrationTimerStart != nil {
		return common.ErrNotFound
	}
	u.RegistrationTimerStart = &now
	return nil
}

func (r *memUsers) CompleteRegistration(_ context.Context, in *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(in.RFIDCardID)
	if err != nil {
		return err
	}
	if u.IsRegistered {
		return common.ErrNotFound
	}
	for _, other := range r.users {
		if other.RFIDCardID != in.RFIDCardID && other.Email == in.Email {
			return common.ErrEmailTaken
		}
	}
	balance := u.Balance
	*u = *in
	u.Balance = balance
	return nil
}

func (r *memUsers) AdjustBalance(_ context.Context, rfid string, delta models.Centavos, _ time.Time) (models.Centavos, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(rfid)
	if err != nil {
		return 0, err
	}
	if u.Balance+delta < 0 {
		return 0, common.ErrInsufficientBalance
	}
	u.Balance += delta
	return u.Balance, nil
}

func (r *memUsers) UpdateProfile(_ context.Context, rfid, first, last string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(rfid)
	if err != nil {
		return err
	}
	u.FirstName, u.LastName = first, last
	return nil
}

func (r *memUsers) SetAvatarKey(_ context.Context, rfid, key string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(rfid)
	if err != nil {
		return err
	}
	u.AvatarKey = key
	return nil
}

func (r *memUsers) Deactivate(_ context.Context, rfid string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, err := r.lookup(rfid)
	if err != nil {
		return err
	}
	if !u.IsRegistered {
		return common.ErrNotFound
	}
	u.IsRegistered = false
	u.Status = models.StatusDeactivated
	u.Email = ""
	u.PasswordHash = ""
	u.Attempts = 0
	u.AvatarKey = ""
	return nil
}

type memTxs memStore

func (r *memTxs) Create(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, *tx)
	return nil
}

func (r *memTxs) ListByCard(_ context.Context, rfid string, since time.Time, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Transaction, 0)
	for _, tx := range r.txs {
		if tx.RFIDCardID == rfid && !tx.CreatedAt.Before(since) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memSessions memStore

func (r *memSessions) Create(_ context.Context, s *models.WifiSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *memSessions) GetActive(_ context.Context, rfid string) (*models.WifiSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.RFIDCardID == rfid && s.EndedAt == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memSessions) End(_ context.Context, id, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.EndedAt != nil {
		return common.ErrNotFound
	}
	s.EndedAt = &at
	s.EndReason = reason
	return nil
}

func (r *memSessions) ListExpired(_ context.Context, now time.Time, limit int) ([]models.WifiSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WifiSession
	for _, s := range r.sessions {
		if s.EndedAt == nil && !s.ExpiresAt.After(now) {
			out = append(out, *s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memSessions) CountActive(_ context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.EndedAt == nil && s.ExpiresAt.After(now) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) session(rfid string) *models.WifiSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RFIDCardID == rfid {
			cp := *s
			return &cp
		}
	}
	return nil
}

// recorder captures realtime and Kafka notifications.
type recorder struct {
	mu     sync.Mutex
	events []recorded
	txs    []models.Transaction
	regs   []string
}

type recorded struct {
	topic, eventType string
	data             any
}

func (r *recorder) Publish(topic, eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{topic, eventType, data})
}

func (r *recorder) TransactionCreated(_ context.Context, tx models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txs = append(r.txs, tx)
	return nil
}

func (r *recorder) UserRegistered(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.regs = append(r.regs, u.RFIDCardID)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) types(topic string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.topic == topic {
			out = append(out, e.eventType)
		}
	}
	return out
}

func (r *recorder) lastTap(topic string) (models.Tap, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].topic == topic {
			v, ok := r.events[i].data.(models.Tap)
			return v, ok
		}
	}
	return models.Tap{}, false
}

type fakeTokens struct{}

func (fakeTokens) IssueCardToken(rfid string) (string, time.Time, error) {
	return "token-" + rfid, time.Now().Add(time.Hour), nil
}
