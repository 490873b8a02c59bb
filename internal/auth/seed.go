package auth

import (
	"context"
	"fmt"
	"sort"
)

// Ladder is the seed description of the group hierarchy: a fixed set of
// groups ordered by level, and a permission catalog where each permission
// names the lowest level that receives it.
type Ladder struct {
	Groups      []LadderGroup
	Permissions []LadderPermission
}

// LadderGroup is one rung of the ladder.
type LadderGroup struct {
	Name    string
	Level   int
	Default bool
}

// LadderPermission maps a capability to its minimum group level.
type LadderPermission struct {
	Name     string
	Category string
	Level    int
}

// EnsureSeed applies the ladder: permissions and groups are upserted, and
// level-cumulative grants are materialized as explicit relation rows (a
// group at level L is granted every permission at levels 0..L). Flat rows
// keep the hot authorization path to a single existence check instead of a
// recursive lookup. Repeated application is idempotent.
func (s *Service) EnsureSeed(ctx context.Context, ladder Ladder) error {
	perms := s.store.Permissions()

	permIDs := make(map[string]int64, len(ladder.Permissions))
	for _, p := range ladder.Permissions {
		id, err := perms.EnsurePermission(ctx, p.Name, p.Category)
		if err != nil {
			return fmt.Errorf("seed permission %s: %w", p.Name, err)
		}
		permIDs[p.Name] = id
	}
	groupIDs := make(map[string]int64, len(ladder.Groups))
	for _, g := range ladder.Groups {
		id, err := perms.EnsureGroup(ctx, g.Name, g.Level, g.Default)
		if err != nil {
			return fmt.Errorf("seed group %s: %w", g.Name, err)
		}
		groupIDs[g.Name] = id
	}
	for _, grant := range cumulativeGrants(ladder) {
		if err := perms.GrantToGroup(ctx, groupIDs[grant.Group], permIDs[grant.Permission]); err != nil {
			return fmt.Errorf("seed grant %s -> %s: %w", grant.Group, grant.Permission, err)
		}
	}
	return nil
}

type ladderGrant struct {
	Group      string
	Permission string
}

// cumulativeGrants expands the ladder into the flat (group, permission)
// pairs to materialize.
func cumulativeGrants(ladder Ladder) []ladderGrant {
	var grants []ladderGrant
	for _, g := range ladder.Groups {
		for _, p := range ladder.Permissions {
			if p.Level <= g.Level {
				grants = append(grants, ladderGrant{Group: g.Name, Permission: p.Name})
			}
		}
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Group != grants[j].Group {
			return grants[i].Group < grants[j].Group
		}
		return grants[i].Permission < grants[j].Permission
	})
	return grants
}
