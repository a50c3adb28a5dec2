// ABOUTME: HTTP handlers for direct permission grants and permission queries:
// ABOUTME: list/put/delete grants per resource, /permissions/me, and /permissions/check.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/perm"
	"github.com/atelierhq/atelier/internal/store"
)

// grantResponseBody is one grant in a resource's grant listing.
type grantResponseBody struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Level       string `json:"level"`
	GrantedAt   string `json:"granted_at"`
	UpdatedAt   string `json:"updated_at"`
}

// putGrantBody is the JSON request body for PUT .../permissions/{user_id}.
type putGrantBody struct {
	Level perm.Level `json:"level"`
}

// myPermissionResponse wraps the caller's resolved permission; Permission is
// null when the caller has no access.
type myPermissionResponse struct {
	Permission *perm.Result `json:"permission"`
}

// checkResponse is the JSON response body for GET /permissions/check.
type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// listGrantsFor dispatches a grant listing to the store for the resource kind.
func (srv *Server) listGrantsFor(ctx context.Context, t perm.ResourceType, resourceID uuid.UUID) ([]store.GrantRow, error) {
	switch t {
	case perm.ResourceWorkspace:
		return srv.store.ListWorkspaceGrants(ctx, resourceID)
	case perm.ResourceProject:
		return srv.store.ListProjectGrants(ctx, resourceID)
	case perm.ResourceFolder:
		return srv.store.ListFolderGrants(ctx, resourceID)
	default:
		return nil, perm.ErrUnknownResourceType
	}
}

func (srv *Server) upsertGrantFor(ctx context.Context, t perm.ResourceType, resourceID, userID uuid.UUID, level perm.Level) (*store.Grant, error) {
	switch t {
	case perm.ResourceWorkspace:
		return srv.store.UpsertWorkspaceGrant(ctx, resourceID, userID, level)
	case perm.ResourceProject:
		return srv.store.UpsertProjectGrant(ctx, resourceID, userID, level)
	case perm.ResourceFolder:
		return srv.store.UpsertFolderGrant(ctx, resourceID, userID, level)
	default:
		return nil, perm.ErrUnknownResourceType
	}
}

func (srv *Server) revokeGrantFor(ctx context.Context, t perm.ResourceType, resourceID, userID uuid.UUID) error {
	switch t {
	case perm.ResourceWorkspace:
		return srv.store.RevokeWorkspaceGrant(ctx, resourceID, userID)
	case perm.ResourceProject:
		return srv.store.RevokeProjectGrant(ctx, resourceID, userID)
	case perm.ResourceFolder:
		return srv.store.RevokeFolderGrant(ctx, resourceID, userID)
	default:
		return perm.ErrUnknownResourceType
	}
}

// resourceAccountID returns the owning account of the resource, or uuid.Nil
// with a nil error when the resource does not exist.
func (srv *Server) resourceAccountID(ctx context.Context, t perm.ResourceType, resourceID uuid.UUID) (uuid.UUID, error) {
	switch t {
	case perm.ResourceWorkspace:
		ref, err := srv.store.GetWorkspaceRef(ctx, resourceID)
		if err != nil || ref == nil {
			return uuid.Nil, err
		}
		return ref.AccountID, nil
	case perm.ResourceProject:
		ref, err := srv.store.GetProjectRef(ctx, resourceID)
		if err != nil || ref == nil {
			return uuid.Nil, err
		}
		return ref.AccountID, nil
	case perm.ResourceFolder:
		ref, err := srv.store.GetFolderRef(ctx, resourceID)
		if err != nil || ref == nil {
			return uuid.Nil, err
		}
		return ref.AccountID, nil
	default:
		return uuid.Nil, perm.ErrUnknownResourceType
	}
}

// listGrantsHandler returns the handler for GET .../permissions.
// RequirePermission(share) has already run.
func (srv *Server) listGrantsHandler(t perm.ResourceType) http.HandlerFunc {
	param := resourceParam(t)
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID, err := urlUUID(r, param)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resource id")
			return
		}

		grants, err := srv.listGrantsFor(r.Context(), t, resourceID)
		if err != nil {
			slog.ErrorContext(r.Context(), "list grants", "resource_type", t, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		out := make([]grantResponseBody, 0, len(grants))
		for _, g := range grants {
			out = append(out, grantResponseBody{
				UserID:      g.UserID.String(),
				Email:       g.Email,
				DisplayName: g.DisplayName,
				Level:       string(g.Level),
				GrantedAt:   g.CreatedAt.Format(time.RFC3339),
				UpdatedAt:   g.UpdatedAt.Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// myPermissionHandler returns the handler for GET .../permissions/me.
// Only authentication is required; the response reports the caller's own
// effective permission, null when they have none.
func (srv *Server) myPermissionHandler(t perm.ResourceType) http.HandlerFunc {
	param := resourceParam(t)
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		resourceID, err := urlUUID(r, param)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resource id")
			return
		}

		res, err := srv.resolver.Resolve(r.Context(), userID, t, resourceID)
		if err != nil {
			slog.ErrorContext(r.Context(), "resolve own permission", "resource_type", t, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, myPermissionResponse{Permission: res})
	}
}

// putGrantHandler returns the handler for PUT .../permissions/{user_id}.
// RequirePermission(share) has already run. The grant is validated against the
// inherited baseline first: a level below what the target already inherits is
// rejected with 422 and the validator's reason. Granting a project to a guest
// at their project cap is rejected with 403.
func (srv *Server) putGrantHandler(t perm.ResourceType) http.HandlerFunc {
	param := resourceParam(t)
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID, err := urlUUID(r, param)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resource id")
			return
		}
		targetID, err := urlUUID(r, "user_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		var req putGrantBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if _, err := perm.LevelIndex(req.Level); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		validation, err := srv.resolver.ValidatePermissionChange(r.Context(), targetID, t, resourceID, req.Level)
		if err != nil {
			slog.ErrorContext(r.Context(), "validate grant", "resource_type", t, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !validation.Valid {
			writeJSON(w, http.StatusUnprocessableEntity, validation)
			return
		}

		if t == perm.ResourceProject {
			if !srv.checkGuestProjectCap(w, r, resourceID, targetID) {
				return
			}
		}

		grant, err := srv.upsertGrantFor(r.Context(), t, resourceID, targetID, req.Level)
		if err != nil {
			if pgErrCode(err) == "23503" { // foreign_key_violation — no such resource or user
				writeError(w, http.StatusNotFound, "not found")
				return
			}
			slog.ErrorContext(r.Context(), "upsert grant", "resource_type", t, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, struct {
			UserID    string `json:"user_id"`
			Level     string `json:"level"`
			GrantedAt string `json:"granted_at"`
			UpdatedAt string `json:"updated_at"`
		}{
			UserID:    grant.UserID.String(),
			Level:     string(grant.Level),
			GrantedAt: grant.CreatedAt.Format(time.RFC3339),
			UpdatedAt: grant.UpdatedAt.Format(time.RFC3339),
		})
	}
}

// checkGuestProjectCap blocks granting a new project to a guest who is already
// at the guest project cap. Re-granting a project the guest already holds is
// allowed — the cap counts distinct projects, not grant writes. Writes the
// response and returns false when the grant must be rejected.
func (srv *Server) checkGuestProjectCap(w http.ResponseWriter, r *http.Request, projectID, targetID uuid.UUID) bool {
	accountID, err := srv.resourceAccountID(r.Context(), perm.ResourceProject, projectID)
	if err != nil {
		slog.ErrorContext(r.Context(), "guest cap: project lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if accountID == uuid.Nil {
		writeError(w, http.StatusNotFound, "not found")
		return false
	}

	role, err := srv.store.GetAccountRole(r.Context(), accountID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "guest cap: role lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if role == nil || *role != perm.RoleGuest {
		return true
	}

	existing, err := srv.store.GetProjectGrant(r.Context(), projectID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "guest cap: existing grant", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if existing != nil {
		return true
	}

	reached, err := srv.resolver.GuestReachedProjectLimit(r.Context(), targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "guest cap: count", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	if reached {
		writeError(w, http.StatusForbidden, fmt.Sprintf("Guests can only access %d project(s)", perm.GuestMaxProjects))
		return false
	}
	return true
}

// deleteGrantHandler returns the handler for DELETE .../permissions/{user_id}.
// RequirePermission(share) has already run. Revoking an absent grant succeeds.
func (srv *Server) deleteGrantHandler(t perm.ResourceType) http.HandlerFunc {
	param := resourceParam(t)
	return func(w http.ResponseWriter, r *http.Request) {
		resourceID, err := urlUUID(r, param)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid resource id")
			return
		}
		targetID, err := urlUUID(r, "user_id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid user id")
			return
		}

		if err := srv.revokeGrantFor(r.Context(), t, resourceID, targetID); err != nil {
			slog.ErrorContext(r.Context(), "revoke grant", "resource_type", t, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// checkPermissionHandler handles GET /api/v1/permissions/check.
// Query parameters: resource_type, resource_id, action. Unknown actions and
// resource types are 400, never a silent deny.
func (srv *Server) checkPermissionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	resourceType := perm.ResourceType(r.URL.Query().Get("resource_type"))
	action := perm.Action(r.URL.Query().Get("action"))
	resourceID, err := uuid.Parse(r.URL.Query().Get("resource_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid resource_id")
		return
	}

	allowed, err := srv.resolver.CanPerformAction(r.Context(), userID, resourceType, resourceID, action)
	if err != nil {
		if errors.Is(err, perm.ErrUnknownAction) || errors.Is(err, perm.ErrUnknownResourceType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "permission check", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}
