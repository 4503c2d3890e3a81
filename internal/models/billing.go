package models

import "time"

const (
	TxTopUp    = "Top-up"
	TxDeducted = "Deducted"

	SourceCoin    = "coin"
	SourceSession = "session"
	SourceAdmin   = "admin"

	EndStopped = "stopped"
	EndExpired = "expired"
)

type Transaction struct {
	ID           string    `json:"id"`
	RFIDCardID   string    `json:"rfid"`
	Type         string    `json:"type"`
	Amount       Centavos  `json:"amount"`
	BalanceAfter Centavos  `json:"balance_after"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

// WifiSession is a metered internet session paid for one interval up front.
type WifiSession struct {
	ID         string     `json:"id"`
	RFIDCardID string     `json:"rfid"`
	StartedAt  time.Time  `json:"started_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	EndReason  string     `json:"end_reason,omitempty"`
	Charged    Centavos   `json:"charged"`
}

// Remaining is the time left at now, never negative.
func (s *WifiSession) Remaining(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

type ActiveSession struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// Dashboard is everything the dashboard page renders in one call.
type Dashboard struct {
	User               UserDTO        `json:"user"`
	Balance            Centavos       `json:"balance"`
	IsLowBalance       bool           `json:"is_low_balance"`
	IsWarningLevel     bool           `json:"is_warning_level"`
	Rate               Centavos       `json:"rate"`
	IntervalSeconds    int            `json:"interval_seconds"`
	Session            *ActiveSession `json:"session,omitempty"`
	RecentTransactions []Transaction  `json:"recent_transactions"`
	OnlineUsers        int            `json:"online_users"`
}

// TransactionHistory groups the last seven days of transactions.
type TransactionHistory struct {
	Today     []Transaction `json:"today"`
	Yesterday []Transaction `json:"yesterday"`
	Last7Days []Transaction `json:"last_7_days"`
}

type TopUpInstructions struct {
	Message  string   `json:"message"`
	Steps    []string `json:"steps"`
	Rate     Centavos `json:"rate"`
	Interval int      `json:"interval_seconds"`
}

// CoinInserted is reported by the kiosk coin acceptor.
type CoinInserted struct {
	RFIDCardID string   `json:"rfid_card_id"`
	Amount     Centavos `json:"amount"`
	KioskID    string   `json:"kiosk_id,omitempty"`
}
