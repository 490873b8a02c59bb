package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"craftpanel.org/internal/audit"
	"craftpanel.org/internal/auth"
)

// All admin routes sit behind the admin.permissions capability.
const permManagePermissions = "admin.permissions"

type groupPermissionRequest struct {
	Permission string `json:"permission"`
}

type overrideRequest struct {
	Permission string     `json:"permission"`
	Granted    bool       `json:"granted"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

func (a *API) handleAdminPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, permManagePermissions) {
		return
	}
	perms, err := a.auth.Permissions(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, perms)
}

func (a *API) handleAdminGroups(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, permManagePermissions) {
		return
	}
	groups, err := a.auth.Groups(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, groups)
}

// handleAdminGroupResource serves /v1/admin/groups/{id}/permissions.
func (a *API) handleAdminGroupResource(w http.ResponseWriter, r *http.Request) {
	groupID, ok := scopedID(w, r, "/v1/admin/groups/")
	if !ok {
		return
	}
	if !a.ensurePermission(w, r, permManagePermissions) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		names, err := a.auth.GroupPermissionNames(r.Context(), groupID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, names)
	case http.MethodPost:
		var req groupPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.auth.GrantGroupPermission(r.Context(), groupID, req.Permission); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.group.grant", map[string]any{
			"group_id":   groupID,
			"permission": req.Permission,
		})
		writeData(w, r, http.StatusCreated, nil)
	case http.MethodDelete:
		var req groupPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.auth.RevokeGroupPermission(r.Context(), groupID, req.Permission); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.group.revoke", map[string]any{
			"group_id":   groupID,
			"permission": req.Permission,
		})
		writeData(w, r, http.StatusOK, nil)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodDelete)
	}
}

// handleAdminUserResource serves /v1/admin/users/{id}/permissions, the
// per-user override surface.
func (a *API) handleAdminUserResource(w http.ResponseWriter, r *http.Request) {
	userID, ok := scopedID(w, r, "/v1/admin/users/")
	if !ok {
		return
	}
	if !a.ensurePermission(w, r, permManagePermissions) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		overrides, err := a.auth.Overrides(r.Context(), userID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeData(w, r, http.StatusOK, overrides)
	case http.MethodPut:
		var req overrideRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		o := auth.Override{
			UserID:     userID,
			Permission: strings.TrimSpace(req.Permission),
			Granted:    req.Granted,
			ExpiresAt:  req.ExpiresAt,
		}
		if err := a.auth.SetUserOverride(r.Context(), o); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.override.set", map[string]any{
			"target_user_id": userID,
			"permission":     o.Permission,
			"granted":        o.Granted,
		})
		writeData(w, r, http.StatusOK, nil)
	case http.MethodDelete:
		var req groupPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.auth.ClearUserOverride(r.Context(), userID, req.Permission); err != nil {
			handleAuthError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "admin.override.clear", map[string]any{
			"target_user_id": userID,
			"permission":     req.Permission,
		})
		writeData(w, r, http.StatusOK, nil)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// scopedID parses "/prefix/{id}/permissions" paths. Writes the 404 itself
// when the shape is wrong.
func scopedID(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return 0, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return 0, false
	}
	return id, true
}
