package models

import "time"

// TapPhase is the state of a kiosk tap screen.
type TapPhase string

const (
	PhaseScanning     TapPhase = "SCANNING"
	PhaseReading      TapPhase = "READING"
	PhaseRegistered   TapPhase = "REGISTERED"
	PhaseUnregistered TapPhase = "UNREGISTERED"
	PhaseAttemptsUsed TapPhase = "ATTEMPTS_USED"
	PhaseClosed       TapPhase = "CLOSED"
)

// Tap is a snapshot of one tap screen as shown to the kiosk.
type Tap struct {
	ID               string     `json:"id"`
	Phase            TapPhase   `json:"phase"`
	Message          string     `json:"message"`
	RFIDCardID       string     `json:"rfid,omitempty"`
	FullName         string     `json:"full_name,omitempty"`
	Attempt          int        `json:"attempt,omitempty"`
	MaxAttempts      int        `json:"max_attempts"`
	RedirectTo       string     `json:"redirect_to,omitempty"`
	Token            string     `json:"token,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RemainingSeconds int        `json:"remaining_seconds"`
	StartedAt        time.Time  `json:"started_at"`
}

type StartTapRequest struct {
	ClientID string `json:"client_id"`
}
