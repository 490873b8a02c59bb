package auth

import "testing"

func TestCumulativeGrants(t *testing.T) {
	ladder := Ladder{
		Groups: []LadderGroup{
			{Name: "Guest", Level: 0},
			{Name: "User", Level: 1, Default: true},
			{Name: "Admin", Level: 4},
		},
		Permissions: []LadderPermission{
			{Name: "profile.changeusername", Level: 1},
			{Name: "admin.users", Level: 3},
			{Name: "admin.owner", Level: 5},
		},
	}

	grants := cumulativeGrants(ladder)

	has := func(group, perm string) bool {
		for _, g := range grants {
			if g.Group == group && g.Permission == perm {
				return true
			}
		}
		return false
	}

	if has("Guest", "profile.changeusername") {
		t.Fatal("level 0 must not receive a level 1 permission")
	}
	if !has("User", "profile.changeusername") {
		t.Fatal("level 1 group missing its own level's permission")
	}
	if has("User", "admin.users") {
		t.Fatal("level 1 group must not receive a level 3 permission")
	}
	if !has("Admin", "profile.changeusername") || !has("Admin", "admin.users") {
		t.Fatal("cumulative inheritance broken: level 4 receives levels 0..4")
	}
	if has("Admin", "admin.owner") {
		t.Fatal("level 4 group must not receive a level 5 permission")
	}
	if len(grants) != 3 {
		t.Fatalf("expected 3 materialized grants, got %d", len(grants))
	}
}
