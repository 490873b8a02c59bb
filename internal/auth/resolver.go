package auth

import (
	"context"
	"errors"
)

// Authorize resolves whether a user may perform the named action. An
// unexpired per-user override is authoritative in both directions; otherwise
// the user's group must carry the permission. No group means deny. Lookup
// errors resolve to false alongside the error, never to an implicit allow.
func (s *Service) Authorize(ctx context.Context, userID int64, permission string) (bool, error) {
	override, err := s.store.Permissions().Override(ctx, userID, permission, s.now().UTC())
	if err != nil {
		return false, err
	}
	if override != nil {
		return override.Granted, nil
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.GroupID == nil {
		return false, nil
	}
	return s.store.Permissions().GroupHas(ctx, *user.GroupID, permission)
}

// PermissionSet materializes the user's effective permissions: group grants
// with unexpired overrides applied on top (forced grants added, forced
// denies removed).
func (s *Service) PermissionSet(ctx context.Context, user *User) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if user.GroupID != nil {
		names, err := s.store.Permissions().GroupPermissions(ctx, *user.GroupID)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			set[name] = struct{}{}
		}
	}
	overrides, err := s.store.Permissions().UserOverrides(ctx, user.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	for _, o := range overrides {
		if o.Granted {
			set[o.Permission] = struct{}{}
		} else {
			delete(set, o.Permission)
		}
	}
	return set, nil
}

// Authenticate runs the per-request gate: verify the token signature and
// expiry, consult the revocation blacklist, load the owning user, resolve
// the permission set, and optionally require one named permission. A
// blacklist lookup failure propagates as a hard error; it is never treated
// as "not revoked".
func (s *Service) Authenticate(ctx context.Context, token, requiredPermission string) (Identity, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	revoked, err := s.store.Revocations().IsRevoked(ctx, token)
	if err != nil {
		return Identity{}, err
	}
	if revoked {
		return Identity{}, ErrTokenRevoked
	}
	userID, err := claims.UserID()
	if err != nil {
		return Identity{}, err
	}
	user, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Identity{}, ErrTokenRevoked
		}
		return Identity{}, err
	}
	perms, err := s.PermissionSet(ctx, user)
	if err != nil {
		return Identity{}, err
	}
	identity := Identity{
		UserID:      user.ID,
		SessionID:   claims.SessionID,
		GroupID:     user.GroupID,
		Permissions: perms,
	}
	if requiredPermission != "" && !identity.HasPermission(requiredPermission) {
		return Identity{}, ErrPermissionDenied
	}
	return identity, nil
}
