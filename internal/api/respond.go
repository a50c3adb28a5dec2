// ABOUTME: Shared handler helpers: JSON responses, URL param parsing,
// ABOUTME: Postgres error codes, and guest constraint enforcement.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atelierhq/atelier/internal/perm"
)

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON: encode failed", "error", err)
	}
}

// errorBody is the JSON error envelope for chi (non-huma) handlers.
type errorBody struct {
	Error string `json:"error"`
}

// writeError writes a JSON error with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// urlUUID parses the named chi URL parameter as a UUID.
func urlUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

// pgErrCode extracts the Postgres error code from err, or "" if err is not a pg error.
func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// enforceGuestConstraints looks up the caller's role in the owning account and
// runs the guest constraint checker for action. Writes the response and returns
// false when the action is forbidden or the lookup fails; callers must return
// immediately in that case.
func (srv *Server) enforceGuestConstraints(w http.ResponseWriter, r *http.Request, accountID, userID uuid.UUID, action perm.Action) bool {
	role, err := srv.store.GetAccountRole(r.Context(), accountID, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "guest check: account role", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	sess := perm.Session{UserID: userID}
	if role != nil {
		sess.AccountRole = *role
	}
	if err := srv.resolver.CheckGuestConstraints(r.Context(), sess, action); err != nil {
		var forbidden *perm.ForbiddenError
		if errors.As(err, &forbidden) {
			writeError(w, http.StatusForbidden, forbidden.Reason)
			return false
		}
		slog.ErrorContext(r.Context(), "guest check", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
	return true
}
