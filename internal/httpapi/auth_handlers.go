package httpapi

import (
	"net/http"
	"strings"

	"craftpanel.org/internal/audit"
	"craftpanel.org/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Kind     string `json:"kind"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

const refreshCookie = "refresh_token"

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"user_id": user.ID,
	})
	writeData(w, r, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	kind := auth.SessionWeb
	if strings.TrimSpace(req.Kind) == string(auth.SessionLauncher) {
		kind = auth.SessionLauncher
	}
	pair, err := a.auth.Login(r.Context(), req.Login, req.Password, kind, clientIP(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	setRefreshCookie(w, pair.RefreshSecret)
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"session_id": pair.SessionID,
		"kind":       string(kind),
	})
	writeData(w, r, http.StatusOK, pair)
}

// handleRefresh rotates the session's refresh secret and issues a fresh
// token pair. The secret comes from the refresh_token cookie; launcher
// clients may pass it in the body instead.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	secret := ""
	if c, err := r.Cookie(refreshCookie); err == nil {
		secret = c.Value
	}
	if secret == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err == nil {
			secret = req.RefreshToken
		}
	}
	pair, err := a.auth.Refresh(r.Context(), secret, clientIP(r))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	setRefreshCookie(w, pair.RefreshSecret)
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"session_id": pair.SessionID,
	})
	writeData(w, r, http.StatusOK, pair)
}

// handleLogout revokes the presented token. Expired, malformed, or missing
// tokens are no-op successes so a client can always log out cleanly.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, _ := extractBearerToken(r.Header.Get(authHeader))
	if err := a.auth.Logout(r.Context(), token); err != nil {
		handleAuthError(w, r, err)
		return
	}
	clearRefreshCookie(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeData(w, r, http.StatusOK, nil)
}

func setRefreshCookie(w http.ResponseWriter, secret string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    secret,
		Path:     "/v1/auth",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   30 * 24 * 60 * 60,
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/v1/auth",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
}
