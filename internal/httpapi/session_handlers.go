package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"craftpanel.org/internal/audit"
	"craftpanel.org/internal/auth"
)

type usernameRequest struct {
	Username string `json:"username"`
}

type passwordRequest struct {
	Current string `json:"current_password"`
	Next    string `json:"new_password"`
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	summaries, err := a.auth.ListSessions(r.Context(), identity.UserID, identity.SessionID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, summaries)
}

func (a *API) handleTerminateOthers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	count, err := a.auth.TerminateOtherSessions(r.Context(), identity.UserID, identity.SessionID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "session.terminate_others", map[string]any{
		"terminated": count,
	})
	writeData(w, r, http.StatusOK, map[string]any{"terminated": count})
}

// handleSessionResource terminates one session by id. Sessions belonging to
// other users are invisible here and report 404.
func (a *API) handleSessionResource(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions/"), "/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := a.auth.TerminateSession(r.Context(), identity.UserID, sessionID); err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			writeError(w, r, http.StatusNotFound, "session not found")
			return
		}
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "session.terminate", map[string]any{
		"terminated_session_id": sessionID,
	})
	writeData(w, r, http.StatusOK, nil)
}

func (a *API) handleUsername(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req usernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.CompleteProfile(r.Context(), identity.UserID, req.Username); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusBadRequest, "username must be 3-16 characters")
			return
		}
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "profile.username", map[string]any{
		"username": strings.TrimSpace(req.Username),
	})
	writeData(w, r, http.StatusOK, nil)
}

func (a *API) handlePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ChangePassword(r.Context(), identity.UserID, req.Current, req.Next); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "profile.password", nil)
	writeData(w, r, http.StatusOK, nil)
}
