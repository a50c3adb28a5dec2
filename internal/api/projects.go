// ABOUTME: HTTP handlers for projects: create/list under a workspace, read,
// ABOUTME: restriction toggle, delete. Creation enforces the guest project cap.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/atelierhq/atelier/internal/perm"
	"github.com/atelierhq/atelier/internal/store"
)

// createProjectBody is the JSON request body for POST .../projects.
type createProjectBody struct {
	Name         string `json:"name"`
	IsRestricted bool   `json:"is_restricted"`
}

// updateProjectBody is the JSON request body for PATCH /projects/{project_id}.
// Only the restriction flag is mutable through this endpoint.
type updateProjectBody struct {
	IsRestricted *bool `json:"is_restricted"`
}

// projectResponseBody is the JSON response body for project reads.
// MyPermission is set on single-resource reads only.
type projectResponseBody struct {
	ProjectID    string       `json:"project_id"`
	WorkspaceID  string       `json:"workspace_id"`
	Name         string       `json:"name"`
	IsRestricted bool         `json:"is_restricted"`
	CreatedAt    string       `json:"created_at"`
	MyPermission *perm.Result `json:"my_permission,omitempty"`
}

func projectResponse(p *store.Project) projectResponseBody {
	return projectResponseBody{
		ProjectID:    p.ID.String(),
		WorkspaceID:  p.WorkspaceID.String(),
		Name:         p.Name,
		IsRestricted: p.IsRestricted,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}

// createProjectHandler handles POST /api/v1/workspaces/{workspace_id}/projects.
// RequirePermission(edit) on the workspace has already run. Guests additionally
// hit the project cap check.
func (srv *Server) createProjectHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := urlUUID(r, "workspace_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workspace id")
		return
	}

	ws, err := srv.store.GetWorkspace(r.Context(), workspaceID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create project: workspace lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ws == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	userID, _ := userIDFromContext(r.Context())
	if !srv.enforceGuestConstraints(w, r, ws.AccountID, userID, perm.ActionCreateProject) {
		return
	}

	var req createProjectBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p, err := srv.store.CreateProject(r.Context(), workspaceID, req.Name, req.IsRestricted)
	if err != nil {
		slog.ErrorContext(r.Context(), "create project", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, projectResponse(p))
}

// listProjectsHandler handles GET /api/v1/workspaces/{workspace_id}/projects.
// RequirePermission(view) on the workspace has already run. Restricted projects
// appear in the listing; opening one is what the wall blocks.
func (srv *Server) listProjectsHandler(w http.ResponseWriter, r *http.Request) {
	workspaceID, err := urlUUID(r, "workspace_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workspace id")
		return
	}

	projects, err := srv.store.ListWorkspaceProjects(r.Context(), workspaceID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list projects", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]projectResponseBody, 0, len(projects))
	for i := range projects {
		out = append(out, projectResponse(&projects[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// getProjectHandler handles GET /api/v1/projects/{project_id}.
// RequirePermission(view) has already run.
func (srv *Server) getProjectHandler(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlUUID(r, "project_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	p, err := srv.store.GetProject(r.Context(), projectID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get project", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	resp := projectResponse(p)
	resp.MyPermission = permFromContext(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

// updateProjectHandler handles PATCH /api/v1/projects/{project_id}.
// Flipping the restriction wall changes who can reach the project, so it
// requires edit_and_share (enforced by RequirePermission).
func (srv *Server) updateProjectHandler(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlUUID(r, "project_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	var req updateProjectBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IsRestricted == nil {
		writeError(w, http.StatusBadRequest, "is_restricted is required")
		return
	}

	if err := srv.store.SetProjectRestricted(r.Context(), projectID, *req.IsRestricted); err != nil {
		slog.ErrorContext(r.Context(), "update project", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	p, err := srv.store.GetProject(r.Context(), projectID)
	if err != nil || p == nil {
		slog.ErrorContext(r.Context(), "update project: reload", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, projectResponse(p))
}

// deleteProjectHandler handles DELETE /api/v1/projects/{project_id}.
// RequirePermission(delete) has already run; the guest delete ban still applies.
func (srv *Server) deleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlUUID(r, "project_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	ref, err := srv.store.GetProjectRef(r.Context(), projectID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete project: lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ref == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	userID, _ := userIDFromContext(r.Context())
	if !srv.enforceGuestConstraints(w, r, ref.AccountID, userID, perm.ActionDelete) {
		return
	}

	if err := srv.store.DeleteProject(r.Context(), projectID); err != nil {
		slog.ErrorContext(r.Context(), "delete project", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
