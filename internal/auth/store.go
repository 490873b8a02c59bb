package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users() UserStore
	Sessions() SessionStore
	Revocations() RevocationStore
	Permissions() PermissionStore
}

// UserStore manages identity records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id int64) (*User, error)
	// FindByLogin resolves a username or an email address.
	FindByLogin(ctx context.Context, login string) (*User, error)
	SetUsername(ctx context.Context, id int64, username string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}

// SessionStore manages login sessions and refresh secret rotation.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	// Rotate atomically swaps the session's refresh secret: the row is
	// located by its current secret and updated in a single statement, so of
	// two concurrent rotations exactly one succeeds. A stale or unknown
	// secret yields ErrSessionNotFound either way.
	Rotate(ctx context.Context, currentSecret, newSecret, ip string) (*Session, error)
	ListByUser(ctx context.Context, userID int64) ([]Session, error)
	// Terminate deletes one session scoped to its owning user. Returns false
	// when no such session exists for that user.
	Terminate(ctx context.Context, sessionID string, userID int64) (bool, error)
	// TerminateAllExcept deletes every other session the user owns and
	// returns the number removed.
	TerminateAllExcept(ctx context.Context, userID int64, keepSessionID string) (int64, error)
}

// RevocationStore is the blacklist for tokens revoked before their natural
// expiry.
type RevocationStore interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
	// Revoke is an idempotent insert; re-revoking is a no-op success.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	// PurgeExpired removes entries past their natural expiry.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// PermissionStore manages the permission catalog, group grants, and per-user
// overrides.
type PermissionStore interface {
	// Override returns the unexpired override for (user, permission), or nil
	// when absent. Expired rows are treated as absent.
	Override(ctx context.Context, userID int64, permission string, now time.Time) (*Override, error)
	// GroupHas reports whether the group is granted the named permission.
	GroupHas(ctx context.Context, groupID int64, permission string) (bool, error)
	GroupPermissions(ctx context.Context, groupID int64) ([]string, error)
	UserOverrides(ctx context.Context, userID int64, now time.Time) ([]Override, error)

	List(ctx context.Context) ([]Permission, error)
	ListGroups(ctx context.Context) ([]Group, error)
	DefaultGroup(ctx context.Context) (*Group, error)

	EnsurePermission(ctx context.Context, name, category string) (int64, error)
	EnsureGroup(ctx context.Context, name string, level int, isDefault bool) (int64, error)
	GrantToGroup(ctx context.Context, groupID, permissionID int64) error
	RevokeFromGroup(ctx context.Context, groupID int64, permission string) error
	SetOverride(ctx context.Context, o Override) error
	ClearOverride(ctx context.Context, userID int64, permission string) error
}
