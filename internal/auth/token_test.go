package auth

import (
	"errors"
	"testing"
	"time"
)

func testCodec(t *testing.T, now *time.Time, opts ...CodecOption) *TokenCodec {
	t.Helper()
	all := append([]CodecOption{WithCodecClock(func() time.Time { return *now })}, opts...)
	codec, err := NewTokenCodec("test-secret", "craftpanel-test", time.Hour, all...)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec := testCodec(t, &now)

	token, exp, err := codec.Issue(41, "01J5X2SESSION")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry: %v", exp)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	userID, err := claims.UserID()
	if err != nil || userID != 41 {
		t.Fatalf("unexpected subject: %d err=%v", userID, err)
	}
	if claims.SessionID != "01J5X2SESSION" {
		t.Fatalf("unexpected session id: %s", claims.SessionID)
	}
	if claims.Issuer != "craftpanel-test" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestTokenExpires(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec := testCodec(t, &now)

	token, _, err := codec.Issue(41, "sess")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := codec.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenWrongKeyFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec := testCodec(t, &now)
	other, err := NewTokenCodec("other-secret", "craftpanel-test", time.Hour,
		WithCodecClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	token, _, err := codec.Issue(41, "sess")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestTokenWrongIssuerFails(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec := testCodec(t, &now)
	foreign, err := NewTokenCodec("test-secret", "someone-else", time.Hour,
		WithCodecClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}

	token, _, err := foreign.Issue(41, "sess")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Verify(token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec := testCodec(t, &now)

	if _, err := codec.Verify(""); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if _, err := codec.Verify("not.a.jwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}
