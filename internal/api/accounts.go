// ABOUTME: HTTP handlers for account management and account membership.
// ABOUTME: Member mutation requires owner/content_admin; the last owner is protected.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/perm"
)

// createAccountBody is the JSON request body for POST /api/v1/accounts.
type createAccountBody struct {
	Name string `json:"name"`
}

// accountResponseBody is the JSON response body for account reads.
type accountResponseBody struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// memberResponseBody is one member in a membership listing.
type memberResponseBody struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	JoinedAt    string `json:"joined_at"`
}

// validAccountRole reports whether role is one of the five account roles.
func validAccountRole(role perm.AccountRole) bool {
	switch role {
	case perm.RoleOwner, perm.RoleContentAdmin, perm.RoleMember, perm.RoleGuest, perm.RoleReviewer:
		return true
	default:
		return false
	}
}

// requireAccountMember resolves the {account_id} parameter and verifies the
// caller is a member. Returns (accountID, role, true) on success; otherwise the
// response has been written. Non-members get 404 so account IDs cannot be probed.
func (srv *Server) requireAccountMember(w http.ResponseWriter, r *http.Request) (uuid.UUID, perm.AccountRole, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, "", false
	}
	accountID, err := urlUUID(r, "account_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account id")
		return uuid.Nil, "", false
	}
	role, err := srv.store.GetAccountRole(r.Context(), accountID, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "account membership lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return uuid.Nil, "", false
	}
	if role == nil {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, "", false
	}
	return accountID, *role, true
}

// createAccountHandler handles POST /api/v1/accounts.
// Creates a new account with the authenticated user as owner.
func (srv *Server) createAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAccountBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	account, err := srv.store.CreateAccountWithOwner(r.Context(), req.Name, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create account", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, accountResponseBody{
		AccountID: account.ID.String(),
		Name:      account.Name,
		CreatedAt: account.CreatedAt.Format(time.RFC3339),
	})
}

// listMyAccountsHandler handles GET /api/v1/accounts.
func (srv *Server) listMyAccountsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rows, err := srv.store.ListUserAccounts(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list my accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]accountEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, accountEntry{
			AccountID: row.AccountID.String(),
			Name:      row.Name,
			Role:      string(row.Role),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// getAccountHandler handles GET /api/v1/accounts/{account_id}.
// Any member may read the account.
func (srv *Server) getAccountHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := srv.requireAccountMember(w, r)
	if !ok {
		return
	}

	account, err := srv.store.GetAccount(r.Context(), accountID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get account", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if account == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	writeJSON(w, http.StatusOK, accountResponseBody{
		AccountID: account.ID.String(),
		Name:      account.Name,
		CreatedAt: account.CreatedAt.Format(time.RFC3339),
	})
}

// listMembersHandler handles GET /api/v1/accounts/{account_id}/members.
// Any member may list the membership.
func (srv *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	accountID, _, ok := srv.requireAccountMember(w, r)
	if !ok {
		return
	}

	members, err := srv.store.ListAccountMembers(r.Context(), accountID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list members", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]memberResponseBody, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponseBody{
			UserID:      m.UserID.String(),
			Email:       m.Email,
			DisplayName: m.DisplayName,
			Role:        string(m.Role),
			JoinedAt:    m.JoinedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// addMemberBody is the JSON request body for POST .../members.
type addMemberBody struct {
	UserID uuid.UUID        `json:"user_id"`
	Role   perm.AccountRole `json:"role"`
}

// addMemberHandler handles POST /api/v1/accounts/{account_id}/members.
// Guests cannot invite regardless of any other access; beyond that, only
// owner/content_admin may add members.
func (srv *Server) addMemberHandler(w http.ResponseWriter, r *http.Request) {
	accountID, callerRole, ok := srv.requireAccountMember(w, r)
	if !ok {
		return
	}
	userID, _ := userIDFromContext(r.Context())
	if !srv.enforceGuestConstraints(w, r, accountID, userID, perm.ActionInvite) {
		return
	}
	if !perm.RoleGrantsAdminOverride(callerRole) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req addMemberBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil || !validAccountRole(req.Role) {
		writeError(w, http.StatusBadRequest, "user_id and a valid role are required")
		return
	}

	if err := srv.store.AddAccountMember(r.Context(), accountID, req.UserID, req.Role); err != nil {
		switch pgErrCode(err) {
		case "23505": // unique_violation — already a member
			writeError(w, http.StatusConflict, "user is already a member")
		case "23503": // foreign_key_violation — no such user
			writeError(w, http.StatusNotFound, "user not found")
		default:
			slog.ErrorContext(r.Context(), "add member", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// updateMemberBody is the JSON request body for PATCH .../members/{user_id}.
type updateMemberBody struct {
	Role perm.AccountRole `json:"role"`
}

// updateMemberRoleHandler handles PATCH /api/v1/accounts/{account_id}/members/{user_id}.
// Demoting the last owner is rejected so the account cannot be orphaned.
func (srv *Server) updateMemberRoleHandler(w http.ResponseWriter, r *http.Request) {
	accountID, callerRole, ok := srv.requireAccountMember(w, r)
	if !ok {
		return
	}
	if !perm.RoleGrantsAdminOverride(callerRole) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	targetID, err := urlUUID(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateMemberBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !validAccountRole(req.Role) {
		writeError(w, http.StatusBadRequest, "a valid role is required")
		return
	}

	targetRole, err := srv.store.GetAccountRole(r.Context(), accountID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "update member: role lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if targetRole == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}
	if *targetRole == perm.RoleOwner && req.Role != perm.RoleOwner {
		owners, err := srv.store.GetAccountOwnerCount(r.Context(), accountID)
		if err != nil {
			slog.ErrorContext(r.Context(), "update member: owner count", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if owners <= 1 {
			writeError(w, http.StatusConflict, "cannot demote the last owner")
			return
		}
	}

	if err := srv.store.UpdateAccountMemberRole(r.Context(), accountID, targetID, req.Role); err != nil {
		slog.ErrorContext(r.Context(), "update member role", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// removeMemberHandler handles DELETE /api/v1/accounts/{account_id}/members/{user_id}.
// Removing the last owner is rejected.
func (srv *Server) removeMemberHandler(w http.ResponseWriter, r *http.Request) {
	accountID, callerRole, ok := srv.requireAccountMember(w, r)
	if !ok {
		return
	}
	if !perm.RoleGrantsAdminOverride(callerRole) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	targetID, err := urlUUID(r, "user_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	targetRole, err := srv.store.GetAccountRole(r.Context(), accountID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "remove member: role lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if targetRole == nil {
		w.WriteHeader(http.StatusNoContent) // removing a non-member is a no-op
		return
	}
	if *targetRole == perm.RoleOwner {
		owners, err := srv.store.GetAccountOwnerCount(r.Context(), accountID)
		if err != nil {
			slog.ErrorContext(r.Context(), "remove member: owner count", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if owners <= 1 {
			writeError(w, http.StatusConflict, "cannot remove the last owner")
			return
		}
	}

	if err := srv.store.RemoveAccountMember(r.Context(), accountID, targetID); err != nil {
		slog.ErrorContext(r.Context(), "remove member", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
