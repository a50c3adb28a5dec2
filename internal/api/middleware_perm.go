// ABOUTME: RequirePermission middleware — resolves the caller's effective
// ABOUTME: permission on the URL's resource and gates the route on an action.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/perm"
)

// resourceParam maps a resource type to its chi URL parameter name.
func resourceParam(t perm.ResourceType) string {
	switch t {
	case perm.ResourceWorkspace:
		return "workspace_id"
	case perm.ResourceProject:
		return "project_id"
	case perm.ResourceFolder:
		return "folder_id"
	default:
		return ""
	}
}

// RequirePermission returns a middleware that resolves the caller's effective
// permission on the resource identified by the route's {workspace_id},
// {project_id}, or {folder_id} parameter and requires it to meet the minimum
// level for action. A missing resource and an inaccessible one both produce
// 404 — callers cannot probe for resources they cannot see. On success the
// resolved permission is injected into the request context.
func (srv *Server) RequirePermission(resourceType perm.ResourceType, action perm.Action) func(http.Handler) http.Handler {
	param := resourceParam(resourceType)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := userIDFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			resourceID, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				http.Error(w, "invalid resource id", http.StatusBadRequest)
				return
			}

			required, err := perm.ActionMinLevel(action)
			if err != nil {
				slog.ErrorContext(r.Context(), "permission gate: bad action", "action", action, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			res, err := srv.resolver.Resolve(r.Context(), userID, resourceType, resourceID)
			if err != nil {
				slog.ErrorContext(r.Context(), "permission gate: resolve", "resource_type", resourceType, "resource_id", resourceID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if res == nil {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}

			allowed, err := perm.LevelAtLeast(res.Level, required)
			if err != nil {
				slog.ErrorContext(r.Context(), "permission gate: compare levels", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ctxPerm, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// permFromContext returns the permission resolved by RequirePermission, or
// nil when the route was not gated.
func permFromContext(ctx context.Context) *perm.Result {
	res, _ := ctx.Value(ctxPerm).(*perm.Result)
	return res
}
