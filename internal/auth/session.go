package auth

import "time"

// SessionData represents the authenticated session context for a request
type SessionData struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Stage      string    `json:"stage"`
	ExpiresAt  time.Time `json:"expires_at"`
	AuthMethod string    `json:"auth_method"` // "cookie", "bearer"
}
