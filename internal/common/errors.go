// Package common holds sentinel errors shared by the store, services and
// HTTP layers. Callers match them with errors.Is.
package common

import "errors"

var (
	// repository errors
	ErrNotFound = errors.New("not found")

	// service errors
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service temporarily unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation error")

	ErrInvalidToken    = errors.New("invalid token")
	ErrAccountInactive = errors.New("account is not active")
	ErrEmailTaken      = errors.New("email already registered")

	// tap flow
	ErrReaderBusy  = errors.New("reader is busy with another scan")
	ErrNoActiveTap = errors.New("no tap is waiting for a card")

	// registration
	ErrAlreadyRegistered   = errors.New("card already registered")
	ErrRegistrationExpired = errors.New("registration time expired")
	ErrAttemptsExhausted   = errors.New("attempts already used")

	// billing
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSessionActive       = errors.New("session already active")
	ErrNoActiveSession     = errors.New("no active session")
)

// IsDomain reports whether err is one of the sentinel errors above other than
// ErrInternal and ErrUnavailable. Domain errors are final and never retried.
func IsDomain(err error) bool {
	for _, e := range []error{
		ErrNotFound, ErrUnauthorized, ErrValidation, ErrInvalidToken,
		ErrAccountInactive, ErrEmailTaken, ErrReaderBusy, ErrNoActiveTap,
		ErrAlreadyRegistered, ErrRegistrationExpired, ErrAttemptsExhausted,
		ErrInsufficientBalance, ErrSessionActive, ErrNoActiveSession,
	} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
