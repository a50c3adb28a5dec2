// ABOUTME: HTTP handlers for workspaces: create/list under an account, read, delete.
// ABOUTME: Creation is admin-only; read and delete go through the permission resolver.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/atelierhq/atelier/internal/perm"
	"github.com/atelierhq/atelier/internal/store"
)

// createWorkspaceBody is the JSON request body for POST .../workspaces.
type createWorkspaceBody struct {
	Name string `json:"name"`
}

// workspaceResponseBody is the JSON response body for workspace reads.
// MyPermission is set on single-resource reads only.
type workspaceResponseBody struct {
	WorkspaceID  string       `json:"workspace_id"`
	AccountID    string       `json:"account_id"`
	Name         string       `json:"name"`
	CreatedAt    string       `json:"created_at"`
	MyPermission *perm.Result `json:"my_permission,omitempty"`
}

func workspaceResponse(w *store.Workspace) workspaceResponseBody {
	return workspaceResponseBody{
		WorkspaceID: w.ID.String(),
		AccountID:   w.AccountID.String(),
		Name:        w.Name,
		CreatedAt:   w.CreatedAt.Format(time.RFC3339),
	}
}

// createWorkspaceHandler handles POST /api/v1/accounts/{account_id}/workspaces.
// Only owner/content_admin may create workspaces; other members have no
// top-level container to attach access to yet.
func (srv *Server) createWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, callerRole, ok := srv.requireAccountMember(w, r)
	if !ok {
		return
	}
	if !perm.RoleGrantsAdminOverride(callerRole) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req createWorkspaceBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	ws, err := srv.store.CreateWorkspace(r.Context(), accountID, req.Name)
	if err != nil {
		slog.ErrorContext(r.Context(), "create workspace", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, workspaceResponse(ws))
}

// listWorkspacesHandler handles GET /api/v1/accounts/{account_id}/workspaces.
// Any account member may list; per-workspace access is checked when a
// workspace is actually opened.
func (srv *Server) listWorkspacesHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := srv.requireAccountMember(w, r)
	if !ok {
		return
	}

	workspaces, err := srv.store.ListAccountWorkspaces(r.Context(), accountID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list workspaces", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]workspaceResponseBody, 0, len(workspaces))
	for i := range workspaces {
		out = append(out, workspaceResponse(&workspaces[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// getWorkspaceHandler handles GET /api/v1/workspaces/{workspace_id}.
// RequirePermission(view) has already run.
func (srv *Server) getWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := urlUUID(r, "workspace_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workspace id")
		return
	}

	ws, err := srv.store.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get workspace", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ws == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	resp := workspaceResponse(ws)
	resp.MyPermission = permFromContext(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

// deleteWorkspaceHandler handles DELETE /api/v1/workspaces/{workspace_id}.
// RequirePermission(delete) has already run; guests are still blocked even
// when they hold a full_access grant.
func (srv *Server) deleteWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := urlUUID(r, "workspace_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workspace id")
		return
	}

	ws, err := srv.store.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete workspace: lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ws == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	userID, _ := userIDFromContext(r.Context())
	if !srv.enforceGuestConstraints(w, r, ws.AccountID, userID, perm.ActionDelete) {
		return
	}

	if err := srv.store.DeleteWorkspace(r.Context(), workspaceID); err != nil {
		slog.ErrorContext(r.Context(), "delete workspace", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
