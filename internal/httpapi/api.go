package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"craftpanel.org/internal/auth"
	"craftpanel.org/internal/obs"
)

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the auth service.
type API struct {
	mux        *http.ServeMux
	auth       *auth.Service
	readyProbe ReadyProbe
	version    string

	rateBurst     int
	ratePerSecond int
}

func New(svc *auth.Service, rp ReadyProbe, version string, rateBurst, ratePerSecond int) *API {
	if rateBurst <= 0 {
		rateBurst = 20
	}
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	a := &API{
		mux:           http.NewServeMux(),
		auth:          svc,
		readyProbe:    rp,
		version:       version,
		rateBurst:     rateBurst,
		ratePerSecond: ratePerSecond,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)

	a.mux.HandleFunc("/v1/profile/username", a.handleUsername)
	a.mux.HandleFunc("/v1/profile/password", a.handlePassword)

	a.mux.HandleFunc("/v1/sessions", a.handleSessions)
	a.mux.HandleFunc("/v1/sessions/terminate-others", a.handleTerminateOthers)
	a.mux.HandleFunc("/v1/sessions/", a.handleSessionResource)

	a.mux.HandleFunc("/v1/admin/permissions", a.handleAdminPermissions)
	a.mux.HandleFunc("/v1/admin/groups", a.handleAdminGroups)
	a.mux.HandleFunc("/v1/admin/groups/", a.handleAdminGroupResource)
	a.mux.HandleFunc("/v1/admin/users/", a.handleAdminUserResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "craftpanel-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "craftpanel-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// handleAuthError converts service errors to the envelope. Not-found during
// refresh stays 401 so a stale secret is indistinguishable from a wrong one;
// resource handlers map it to 404 themselves before calling this.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrEmailNotVerified):
		writeError(w, r, http.StatusUnauthorized, "email not verified")
	case errors.Is(err, auth.ErrSessionNotFound):
		writeError(w, r, http.StatusUnauthorized, "invalid session")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, r, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, r, http.StatusConflict, "username already taken")
	case errors.Is(err, auth.ErrDemoMode):
		writeError(w, r, http.StatusForbidden, "not available in demo mode")
	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, "permission denied")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrPermissionNotFound):
		writeError(w, r, http.StatusNotFound, "permission not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
