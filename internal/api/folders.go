// ABOUTME: HTTP handlers for folders: create/list under a project, read,
// ABOUTME: restriction toggle, delete.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/perm"
	"github.com/atelierhq/atelier/internal/store"
)

// createFolderBody is the JSON request body for POST .../folders.
type createFolderBody struct {
	Name           string     `json:"name"`
	ParentFolderID *uuid.UUID `json:"parent_folder_id,omitempty"`
	IsRestricted   bool       `json:"is_restricted"`
}

// updateFolderBody is the JSON request body for PATCH /folders/{folder_id}.
type updateFolderBody struct {
	IsRestricted *bool `json:"is_restricted"`
}

// folderResponseBody is the JSON response body for folder reads.
// MyPermission is set on single-resource reads only.
type folderResponseBody struct {
	FolderID       string       `json:"folder_id"`
	ProjectID      string       `json:"project_id"`
	ParentFolderID *string      `json:"parent_folder_id,omitempty"`
	Name           string       `json:"name"`
	IsRestricted   bool         `json:"is_restricted"`
	CreatedAt      string       `json:"created_at"`
	MyPermission   *perm.Result `json:"my_permission,omitempty"`
}

func folderResponse(f *store.Folder) folderResponseBody {
	resp := folderResponseBody{
		FolderID:     f.ID.String(),
		ProjectID:    f.ProjectID.String(),
		Name:         f.Name,
		IsRestricted: f.IsRestricted,
		CreatedAt:    f.CreatedAt.Format(time.RFC3339),
	}
	if f.ParentFolderID != nil {
		s := f.ParentFolderID.String()
		resp.ParentFolderID = &s
	}
	return resp
}

// createFolderHandler handles POST /api/v1/projects/{project_id}/folders.
// RequirePermission(edit) on the project has already run. A parent folder, if
// given, must belong to the same project.
func (srv *Server) createFolderHandler(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlUUID(r, "project_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	var req createFolderBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if req.ParentFolderID != nil {
		parent, err := srv.store.GetFolder(r.Context(), *req.ParentFolderID)
		if err != nil {
			slog.ErrorContext(r.Context(), "create folder: parent lookup", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if parent == nil || parent.ProjectID != projectID {
			writeError(w, http.StatusBadRequest, "parent folder must belong to the same project")
			return
		}
	}

	f, err := srv.store.CreateFolder(r.Context(), projectID, req.ParentFolderID, req.Name, req.IsRestricted)
	if err != nil {
		slog.ErrorContext(r.Context(), "create folder", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, folderResponse(f))
}

// listFoldersHandler handles GET /api/v1/projects/{project_id}/folders.
// RequirePermission(view) on the project has already run.
func (srv *Server) listFoldersHandler(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlUUID(r, "project_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	folders, err := srv.store.ListProjectFolders(r.Context(), projectID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list folders", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]folderResponseBody, 0, len(folders))
	for i := range folders {
		out = append(out, folderResponse(&folders[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// getFolderHandler handles GET /api/v1/folders/{folder_id}.
// RequirePermission(view) has already run.
func (srv *Server) getFolderHandler(w http.ResponseWriter, r *http.Request) {
	folderID, err := urlUUID(r, "folder_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid folder id")
		return
	}

	f, err := srv.store.GetFolder(r.Context(), folderID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get folder", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	resp := folderResponse(f)
	resp.MyPermission = permFromContext(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

// updateFolderHandler handles PATCH /api/v1/folders/{folder_id}.
// Restriction changes require edit_and_share (enforced by RequirePermission).
func (srv *Server) updateFolderHandler(w http.ResponseWriter, r *http.Request) {
	folderID, err := urlUUID(r, "folder_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid folder id")
		return
	}

	var req updateFolderBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IsRestricted == nil {
		writeError(w, http.StatusBadRequest, "is_restricted is required")
		return
	}

	if err := srv.store.SetFolderRestricted(r.Context(), folderID, *req.IsRestricted); err != nil {
		slog.ErrorContext(r.Context(), "update folder", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	f, err := srv.store.GetFolder(r.Context(), folderID)
	if err != nil || f == nil {
		slog.ErrorContext(r.Context(), "update folder: reload", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, folderResponse(f))
}

// deleteFolderHandler handles DELETE /api/v1/folders/{folder_id}.
// RequirePermission(delete) has already run; the guest delete ban still applies.
func (srv *Server) deleteFolderHandler(w http.ResponseWriter, r *http.Request) {
	folderID, err := urlUUID(r, "folder_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid folder id")
		return
	}

	ref, err := srv.store.GetFolderRef(r.Context(), folderID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete folder: lookup", "error", err)
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

	if err := srv.store.DeleteFolder(r.Context(), folderID); err != nil {
		slog.ErrorContext(r.Context(), "delete folder", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
