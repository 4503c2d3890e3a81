package models

import "time"

const (
	StatusPending     = "pending"
	StatusActive      = "active"
	StatusDeactivated = "deactivated"

	AccountTypeUser = "user"

	RegistrationMethodRFID = "rfid_scan"
)

// User is the card holder record, keyed by RFID card id (internal use only).
type User struct {
	RFIDCardID             string
	IsRegistered           bool
	FirstName              string
	LastName               string
	Email                  string
	PasswordHash           string
	Balance                Centavos
	Status                 string
	AccountType            string
	Attempts               int
	RegistrationMethod     string
	RegistrationAttempt    int
	RegistrationTimerStart *time.Time
	AvatarKey              string
	RegisteredAt           *time.Time
	LastLogin              *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// CanUsePortal reports whether the card may start sessions and sign in.
func (u *User) CanUsePortal() bool {
	return u.IsRegistered && u.Status == StatusActive
}

// RegisterRequest is the registration form posted from the register page.
type RegisterRequest struct {
	RFIDCardID      string `json:"rfid"`
	Attempt         int    `json:"attempt"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RegistrationWindow is returned when the register page opens.
type RegistrationWindow struct {
	RFIDCardID       string    `json:"rfid"`
	Attempt          int       `json:"attempt"`
	MaxAttempts      int       `json:"max_attempts"`
	StartedAt        time.Time `json:"started_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	RemainingSeconds int       `json:"remaining_seconds"`
}

// Profile is the public view of a registered card holder.
type Profile struct {
	RFIDCardID   string     `json:"rfid"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	FullName     string     `json:"fullName"`
	Email        string     `json:"email"`
	Balance      Centavos   `json:"balance"`
	Status       string     `json:"status"`
	AccountType  string     `json:"accountType"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	RegisteredAt *time.Time `json:"registeredAt,omitempty"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type DeactivateRequest struct {
	Password string `json:"password"`
}

type AvatarUpload struct {
	UploadURL string    `json:"upload_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}
