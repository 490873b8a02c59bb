package auth

import "time"

// SessionKind distinguishes how a session was created.
type SessionKind string

const (
	SessionWeb      SessionKind = "web"
	SessionLauncher SessionKind = "launcher"
)

// User is the identity record. Username stays nil until the profile step
// completes; users are never hard-deleted.
type User struct {
	ID            int64      `json:"id"`
	Username      *string    `json:"username,omitempty"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	PasswordHash  string     `json:"-"`
	DiscordID     *string    `json:"discord_id,omitempty"`
	GroupID       *int64     `json:"group_id,omitempty"`
	HardwareID    *int64     `json:"hardware_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Session is one authenticated client instance. RefreshSecret holds the
// single current value; every rotation replaces it.
type Session struct {
	ID            string      `json:"id"`
	UserID        int64       `json:"user_id"`
	IP            string      `json:"ip"`
	RefreshSecret string      `json:"-"`
	Kind          SessionKind `json:"kind"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// SessionSummary is the client-visible view of a session.
type SessionSummary struct {
	ID        string      `json:"id"`
	IP        string      `json:"ip"`
	Kind      SessionKind `json:"kind"`
	Current   bool        `json:"current"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Group is a named permission bucket with a seniority level.
type Group struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Level   int    `json:"level"`
	Default bool   `json:"default"`
}

// Permission is a named capability, globally unique by name.
type Permission struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

// Override is a per-user grant or deny that takes precedence over group
// membership while unexpired.
type Override struct {
	UserID     int64      `json:"user_id"`
	Permission string     `json:"permission"`
	Granted    bool       `json:"granted"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TokenPair is the result of login and refresh: a short-lived bearer token
// plus the session's new refresh secret. The secret is shown to the client
// exactly once.
type TokenPair struct {
	AccessToken   string    `json:"token"`
	RefreshSecret string    `json:"refresh_token"`
	SessionID     string    `json:"session_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}
