package models

import "time"

// LoginRequest represents credentials provided by the client.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserDTO is a minimal user representation for responses.
type UserDTO struct {
	RFIDCardID string   `json:"rfid"`
	FullName   string   `json:"fullName"`
	Email      string   `json:"email,omitempty"`
	Balance    Centavos `json:"balance"`
}

// LoginResponse is returned upon successful authentication.
type LoginResponse struct {
	Token      string    `json:"token"`
	User       UserDTO   `json:"user"`
	ExpiresAt  time.Time `json:"expires_at"`
	RedirectTo string    `json:"redirect_to,omitempty"`
}

// ErrorResponse is a simple error shape for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse carries per-field messages.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}
