package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var testClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	store, mock := newMockStore(t)
	codec, err := NewTokenCodec("test-secret", "craftpanel-test", time.Hour,
		WithCodecClock(func() time.Time { return testClock }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	svc, err := NewService(store, codec, WithClock(func() time.Time { return testClock }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, mock
}

func userRows(groupID any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "email", "email_verified", "password_hash",
		"discord_id", "group_id", "hardware_id", "created_at", "updated_at",
	}).AddRow(int64(41), "steve", "steve@example.com", true, "$argon2id$stub",
		nil, groupID, nil, testClock, testClock)
}

func overrideRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "name", "granted", "expires_at", "created_at"})
}

func expectNoOverride(mock sqlmock.Sqlmock, perm string) {
	mock.ExpectQuery("select up.user_id, p.name, up.granted").
		WithArgs(int64(41), perm, sqlmock.AnyArg()).
		WillReturnRows(overrideRows())
}

func TestAuthorizeDenyOverrideBeatsGroupGrant(t *testing.T) {
	// An unexpired forced deny wins even when the group grants the
	// permission; the group lookup never runs.
	svc, mock := newMockService(t)

	mock.ExpectQuery("select up.user_id, p.name, up.granted").
		WithArgs(int64(41), "profile.changeskin", sqlmock.AnyArg()).
		WillReturnRows(overrideRows().AddRow(int64(41), "profile.changeskin", false, nil, testClock))

	allowed, err := svc.Authorize(context.Background(), 41, "profile.changeskin")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if allowed {
		t.Fatal("forced deny must override the group grant")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthorizeGrantOverrideWithoutGroup(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("select up.user_id, p.name, up.granted").
		WithArgs(int64(41), "admin.notes", sqlmock.AnyArg()).
		WillReturnRows(overrideRows().AddRow(int64(41), "admin.notes", true, nil, testClock))

	allowed, err := svc.Authorize(context.Background(), 41, "admin.notes")
	if err != nil || !allowed {
		t.Fatalf("expected allow, got allowed=%v err=%v", allowed, err)
	}
}

func TestAuthorizeExpiredOverrideFallsThroughToGroup(t *testing.T) {
	// The override query filters out expired rows, so an expired deny is
	// absent and the group grant applies again.
	svc, mock := newMockService(t)

	expectNoOverride(mock, "profile.changeusername")
	mock.ExpectQuery("select id, username").
		WithArgs(int64(41)).
		WillReturnRows(userRows(int64(1)))
	mock.ExpectQuery("select exists").
		WithArgs(int64(1), "profile.changeusername").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	allowed, err := svc.Authorize(context.Background(), 41, "profile.changeusername")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !allowed {
		t.Fatal("expired override must fall through to the group grant")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthorizeNoGroupDenies(t *testing.T) {
	svc, mock := newMockService(t)

	expectNoOverride(mock, "profile.changeskin")
	mock.ExpectQuery("select id, username").
		WithArgs(int64(41)).
		WillReturnRows(userRows(nil))

	allowed, err := svc.Authorize(context.Background(), 41, "profile.changeskin")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if allowed {
		t.Fatal("a user without a group must be denied")
	}
}

func TestAuthorizeGroupMembership(t *testing.T) {
	// User 41 in group 1 (User): the group grants profile.changeusername but
	// not admin.owner.
	svc, mock := newMockService(t)

	expectNoOverride(mock, "profile.changeusername")
	mock.ExpectQuery("select id, username").
		WithArgs(int64(41)).
		WillReturnRows(userRows(int64(1)))
	mock.ExpectQuery("select exists").
		WithArgs(int64(1), "profile.changeusername").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	allowed, err := svc.Authorize(context.Background(), 41, "profile.changeusername")
	if err != nil || !allowed {
		t.Fatalf("expected allow, got allowed=%v err=%v", allowed, err)
	}

	expectNoOverride(mock, "admin.owner")
	mock.ExpectQuery("select id, username").
		WithArgs(int64(41)).
		WillReturnRows(userRows(int64(1)))
	mock.ExpectQuery("select exists").
		WithArgs(int64(1), "admin.owner").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	allowed, err = svc.Authorize(context.Background(), 41, "admin.owner")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if allowed {
		t.Fatal("group User must not carry admin.owner")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthorizeFailsClosedOnLookupError(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery("select up.user_id, p.name, up.granted").
		WithArgs(int64(41), "profile.changeskin", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	allowed, err := svc.Authorize(context.Background(), 41, "profile.changeskin")
	if allowed {
		t.Fatal("lookup errors must resolve to deny")
	}
	if err == nil {
		t.Fatal("lookup error must surface for the gateway's 500 mapping")
	}
}

func TestPermissionSetAppliesOverrides(t *testing.T) {
	svc, mock := newMockService(t)
	groupID := int64(1)
	user := &User{ID: 41, GroupID: &groupID}

	mock.ExpectQuery("select p.name from permissions p").
		WithArgs(groupID).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("profile.changeskin").
			AddRow("profile.changeusername"))
	mock.ExpectQuery("select up.user_id, p.name, up.granted").
		WithArgs(int64(41), sqlmock.AnyArg()).
		WillReturnRows(overrideRows().
			AddRow(int64(41), "profile.changeskin", false, nil, testClock).
			AddRow(int64(41), "admin.notes", true, nil, testClock))

	set, err := svc.PermissionSet(context.Background(), user)
	if err != nil {
		t.Fatalf("PermissionSet: %v", err)
	}
	if _, ok := set["profile.changeskin"]; ok {
		t.Fatal("forced deny must remove the group grant")
	}
	if _, ok := set["admin.notes"]; !ok {
		t.Fatal("forced grant missing from set")
	}
	if _, ok := set["profile.changeusername"]; !ok {
		t.Fatal("group grant missing from set")
	}
}
