package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"craftpanel.org/internal/auth"
	"craftpanel.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths reachable without a bearer token. Logout is public on purpose: the
// handler revokes whatever token the request carries, and an expired or
// garbled token is a no-op success rather than a 401.
var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			obs.CountAuthFailure("no_token")
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		identity, err := a.auth.Authenticate(r.Context(), token, "")
		if err != nil {
			rejectAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rejectAuthError is the single place mapping authentication failures to
// HTTP. Token problems are all 401 with a generic reason; anything else is
// an infrastructure failure and denies with 500 rather than letting the
// request through.
func rejectAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		obs.CountAuthFailure("no_token")
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
	case errors.Is(err, auth.ErrTokenExpired):
		obs.CountAuthFailure("expired")
		writeError(w, r, http.StatusUnauthorized, "token expired")
	case errors.Is(err, auth.ErrTokenRevoked):
		obs.CountAuthFailure("revoked")
		writeError(w, r, http.StatusUnauthorized, "token revoked")
	case errors.Is(err, auth.ErrTokenMalformed):
		obs.CountAuthFailure("malformed")
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrPermissionDenied):
		obs.CountAuthFailure("denied")
		writeError(w, r, http.StatusForbidden, "permission denied")
	default:
		obs.CountAuthFailure("error")
		writeError(w, r, http.StatusInternalServerError, "authentication error")
	}
}

// ensurePermission gates a handler on one named permission of the already
// authenticated identity. Returns false after writing the response.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, perm string) bool {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		obs.CountAuthFailure("no_token")
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return false
	}
	if !identity.HasPermission(perm) {
		obs.CountAuthFailure("denied")
		writeError(w, r, http.StatusForbidden, "permission denied")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
