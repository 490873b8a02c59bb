package auth

import (
	"context"
	"strings"
)

// Administrative surface over the permission catalog. Everything here is
// gated behind admin capabilities at the HTTP layer; demo deployments reject
// the mutations.

// Permissions lists the catalog.
func (s *Service) Permissions(ctx context.Context) ([]Permission, error) {
	return s.store.Permissions().List(ctx)
}

// Groups lists all permission groups.
func (s *Service) Groups(ctx context.Context) ([]Group, error) {
	return s.store.Permissions().ListGroups(ctx)
}

// GroupPermissionNames lists the permission names granted to a group.
func (s *Service) GroupPermissionNames(ctx context.Context, groupID int64) ([]string, error) {
	return s.store.Permissions().GroupPermissions(ctx, groupID)
}

// GrantGroupPermission grants an existing catalog permission to a group.
// Unknown permission names are an error, not an implicit create.
func (s *Service) GrantGroupPermission(ctx context.Context, groupID int64, permission string) error {
	if s.demoMode {
		return ErrDemoMode
	}
	perm, err := s.findPermission(ctx, permission)
	if err != nil {
		return err
	}
	return s.store.Permissions().GrantToGroup(ctx, groupID, perm.ID)
}

// RevokeGroupPermission removes a group grant.
func (s *Service) RevokeGroupPermission(ctx context.Context, groupID int64, permission string) error {
	if s.demoMode {
		return ErrDemoMode
	}
	return s.store.Permissions().RevokeFromGroup(ctx, groupID, permission)
}

// Overrides lists the user's unexpired per-user overrides.
func (s *Service) Overrides(ctx context.Context, userID int64) ([]Override, error) {
	return s.store.Permissions().UserOverrides(ctx, userID, s.now().UTC())
}

// SetUserOverride upserts a per-user grant or deny, optionally expiring.
func (s *Service) SetUserOverride(ctx context.Context, o Override) error {
	if s.demoMode {
		return ErrDemoMode
	}
	if _, err := s.findPermission(ctx, o.Permission); err != nil {
		return err
	}
	if _, err := s.store.Users().Find(ctx, o.UserID); err != nil {
		return err
	}
	return s.store.Permissions().SetOverride(ctx, o)
}

// ClearUserOverride removes a per-user override, restoring group resolution.
func (s *Service) ClearUserOverride(ctx context.Context, userID int64, permission string) error {
	if s.demoMode {
		return ErrDemoMode
	}
	return s.store.Permissions().ClearOverride(ctx, userID, permission)
}

func (s *Service) findPermission(ctx context.Context, name string) (*Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrPermissionNotFound
	}
	perms, err := s.store.Permissions().List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range perms {
		if perms[i].Name == name {
			return &perms[i], nil
		}
	}
	return nil, ErrPermissionNotFound
}
