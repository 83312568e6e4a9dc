package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"vouchr.org/internal/auth"
	"vouchr.org/internal/roleedit"
)

type rolePermissionsRequest struct {
	PermissionIDs []int `json:"permission_ids"`
}

type toggleRequest struct {
	PermissionIDs []int `json:"permission_ids"`
	Toggle        int   `json:"toggle"`
}

type toggleResponse struct {
	roleedit.View
	Changed bool `json:"changed"`
}

func (a *API) handleGetRolePermissions(w http.ResponseWriter, r *http.Request) {
	view, err := a.roles.Load(r.Context(), sessionFromRequest(r), r.PathValue("id"))
	if err != nil {
		a.handleRoleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handlePutRolePermissions(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.roles.Save(r.Context(), sessionFromRequest(r), r.PathValue("id"), req.PermissionIDs)
	if err != nil {
		a.handleRoleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleToggleRolePermission(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	view, changed, err := a.roles.Toggle(r.Context(), sessionFromRequest(r), r.PathValue("id"), req.PermissionIDs, req.Toggle)
	if err != nil {
		a.handleRoleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{View: view, Changed: changed})
}

func (a *API) handleRoleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, roleedit.ErrInvariantViolation):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		a.logger().Error("role operation failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "role operation failed")
	}
}
