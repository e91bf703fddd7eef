package auth

import "errors"

var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated reviewer behind a request.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
}
