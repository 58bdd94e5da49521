package models

import "time"

// Session is a server-side record of an opaque bearer token. Only the
// token's digest is stored; the plaintext leaves the server exactly once,
// in the verify response.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	TokenHash string    `json:"token_hash"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
