package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"craftpanel.org/internal/auth"
)

func refreshCookieValue(t *testing.T, resp *http.Response) string {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == refreshCookie {
			return c.Value
		}
	}
	return ""
}

func TestLoginIssuesTokenPair(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery", auth.SchemeArgon2id)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := &stubStore{
		users: stubUsers{
			findByLoginFn: func(_ context.Context, login string) (*auth.User, error) {
				if login != "steve" {
					return nil, auth.ErrUserNotFound
				}
				return &auth.User{ID: 9, Email: "steve@example.com", EmailVerified: true, PasswordHash: hash}, nil
			},
		},
	}
	api := newTestAPI(t, store)

	resp := api.post("/v1/auth/login", map[string]any{
		"login":    "steve",
		"password": "correct horse battery",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if refreshCookieValue(t, resp) == "" {
		t.Fatal("expected refresh_token cookie")
	}
	payload := decodeEnvelope(t, resp)
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data: %v", payload)
	}
	tokenStr, _ := data["token"].(string)
	if tokenStr == "" {
		t.Fatal("expected access token in response")
	}
	claims, err := api.codec.Verify(tokenStr)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.SessionID == "" {
		t.Fatal("expected session id claim")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	hash, err := auth.HashPassword("right password", auth.SchemeArgon2id)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := &stubStore{
		users: stubUsers{
			findByLoginFn: func(_ context.Context, _ string) (*auth.User, error) {
				return &auth.User{ID: 9, Email: "steve@example.com", EmailVerified: true, PasswordHash: hash}, nil
			},
		},
	}
	api := newTestAPI(t, store)
	resp := api.post("/v1/auth/login", map[string]any{"login": "steve", "password": "wrong"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLoginUnknownUserSameError(t *testing.T) {
	api := newTestAPI(t, &stubStore{})
	resp := api.post("/v1/auth/login", map[string]any{"login": "ghost", "password": "whatever"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	payload := decodeEnvelope(t, resp)
	if payload["msg"] != "invalid credentials" {
		t.Fatalf("unknown user must get the generic message, got %v", payload["msg"])
	}
}

func TestRefreshRotatesSecret(t *testing.T) {
	var swappedTo string
	store := &stubStore{
		sessions: stubSessions{
			rotateFn: func(_ context.Context, cur, next, _ string) (*auth.Session, error) {
				if cur != "old-secret" {
					return nil, auth.ErrSessionNotFound
				}
				swappedTo = next
				return &auth.Session{ID: "sess-1", UserID: 9, RefreshSecret: next}, nil
			},
		},
	}
	api := newTestAPI(t, store)
	resp := api.post("/v1/auth/refresh", nil, map[string]string{"Cookie": refreshCookie + "=old-secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	cookie := refreshCookieValue(t, resp)
	resp.Body.Close()
	if cookie == "" || cookie == "old-secret" {
		t.Fatalf("expected rotated cookie, got %q", cookie)
	}
	if cookie != swappedTo {
		t.Fatalf("cookie %q does not match stored secret %q", cookie, swappedTo)
	}
}

// A stale or unknown secret gets the same 401, nothing leaks whether the
// session ever existed.
func TestRefreshStaleSecret(t *testing.T) {
	api := newTestAPI(t, &stubStore{})
	resp := api.post("/v1/auth/refresh", nil, map[string]string{"Cookie": refreshCookie + "=stale"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestLogoutIsAlwaysSafe(t *testing.T) {
	api := newTestAPI(t, &stubStore{})

	// no token at all
	resp := api.post("/v1/auth/logout", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout without token: expected 200, got %d", resp.StatusCode)
	}

	// garbage token
	resp = api.post("/v1/auth/logout", nil, bearerHeader("garbage"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout with garbage token: expected 200, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesValidToken(t *testing.T) {
	var revoked string
	store := &stubStore{
		revocations: stubRevocations{
			revokeFn: func(_ context.Context, token string, _ time.Time) error {
				revoked = token
				return nil
			},
		},
	}
	api := newTestAPI(t, store)
	token := api.token(9, "sess-9")
	resp := api.post("/v1/auth/logout", nil, bearerHeader(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if revoked != token {
		t.Fatalf("expected the presented token to be blacklisted")
	}
}

func TestRegisterCreatesUser(t *testing.T) {
	store := &stubStore{
		permissions: stubPermissions{
			defaultGroupFn: func(_ context.Context) (*auth.Group, error) {
				return &auth.Group{ID: 2, Name: "User", Level: 1, Default: true}, nil
			},
		},
	}
	api := newTestAPI(t, store)
	resp := api.post("/v1/auth/register", map[string]any{
		"email":    "new@example.com",
		"password": "longenoughpw",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := &stubStore{
		users: stubUsers{
			createFn: func(_ context.Context, _ *auth.User) error {
				return auth.ErrEmailTaken
			},
		},
	}
	api := newTestAPI(t, store)
	resp := api.post("/v1/auth/register", map[string]any{
		"email":    "dup@example.com",
		"password": "longenoughpw",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestRegisterRejectsBody(t *testing.T) {
	api := newTestAPI(t, &stubStore{})
	resp := api.post("/v1/auth/register", map[string]any{"email": "x@example.com", "password": "longenoughpw", "extra": true}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown fields should 400, got %d", resp.StatusCode)
	}
}
