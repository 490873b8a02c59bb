package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestSessionRotateSwapsSecret(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Now().Add(-time.Hour)

	mock.ExpectQuery("update sessions set refresh_secret").
		WithArgs("secret-a", "secret-b", "203.0.113.9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "ip", "kind", "created_at", "updated_at"}).
			AddRow("01J5SESSION", int64(41), "203.0.113.9", "web", created, time.Now()))

	sess, err := store.Sessions().Rotate(context.Background(), "secret-a", "secret-b", "203.0.113.9")
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if sess.ID != "01J5SESSION" || sess.UserID != 41 {
		t.Fatalf("unexpected session: %+v", sess)
	}
	if sess.RefreshSecret != "secret-b" {
		t.Fatalf("rotate must return the new secret, got %s", sess.RefreshSecret)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRotateStaleSecretFails(t *testing.T) {
	// The compare-and-swap matches on the current secret, so a second
	// rotation with the already-replaced value finds no row. "Never existed"
	// and "already rotated" are indistinguishable on purpose.
	store, mock := newMockStore(t)

	mock.ExpectQuery("update sessions set refresh_secret").
		WithArgs("secret-a", sqlmock.AnyArg(), "203.0.113.9").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Sessions().Rotate(context.Background(), "secret-a", "secret-c", "203.0.113.9")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectExec("insert into blacklisted_jwts").
		WithArgs("token-x", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Second insert hits the conflict clause and touches zero rows; still a
	// success.
	mock.ExpectExec("insert into blacklisted_jwts").
		WithArgs("token-x", exp).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Revocations().Revoke(context.Background(), "token-x", exp); err != nil {
		t.Fatalf("first Revoke: %v", err)
	}
	if err := store.Revocations().Revoke(context.Background(), "token-x", exp); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIsRevokedPropagatesStorageErrors(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select exists").
		WithArgs("token-x").
		WillReturnError(errors.New("connection refused"))

	if _, err := store.Revocations().IsRevoked(context.Background(), "token-x"); err == nil {
		t.Fatal("storage failure must not be treated as not-revoked")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTerminateScopedToOwner(t *testing.T) {
	store, mock := newMockStore(t)

	// Session belongs to user 7; user 41 asking for it deletes nothing.
	mock.ExpectExec("delete from sessions where id").
		WithArgs("01J5OTHER", int64(41)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := store.Sessions().Terminate(context.Background(), "01J5OTHER", 41)
	if err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if deleted {
		t.Fatal("cross-user termination must be refused")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTerminateAllExceptCountsRemovals(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from sessions where user_id").
		WithArgs(int64(41), "01J5KEEP").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.Sessions().TerminateAllExcept(context.Background(), 41, "01J5KEEP")
	if err != nil {
		t.Fatalf("TerminateAllExcept: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 removed, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionCreateAssignsID(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery("insert into sessions").
		WithArgs(sqlmock.AnyArg(), int64(41), "203.0.113.9", sqlmock.AnyArg(), "web").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	sess := &Session{UserID: 41, IP: "203.0.113.9", RefreshSecret: "secret", Kind: SessionWeb}
	if err := store.Sessions().Create(context.Background(), sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected generated session id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPurgeExpiredRemovesOnlyPastEntries(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectExec("delete from blacklisted_jwts").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 5))

	count, err := store.Revocations().PurgeExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 purged, got %d", count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
