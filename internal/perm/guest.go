// ABOUTME: Guest constraint checker — hard caps and forbidden actions for guests.
// ABOUTME: One gate for every mutating path guests can reach; no per-route duplication.
package perm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GuestMaxProjects is the number of projects a guest may hold direct grants on.
const GuestMaxProjects = 1

// Session carries the authenticated caller's identity and account role, as
// produced by the auth middleware.
type Session struct {
	UserID      uuid.UUID
	AccountRole AccountRole
}

// ForbiddenError is an authorization failure with a caller-facing reason.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string { return e.Reason }

// UserProjectCount returns the number of distinct projects the user holds a
// direct grant on. Workspace-level and admin-override access do not count.
func (r *Resolver) UserProjectCount(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := r.store.CountUserProjectGrants(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count project grants: %w", err)
	}
	return n, nil
}

// GuestReachedProjectLimit reports whether the user already holds
// GuestMaxProjects or more direct project grants.
func (r *Resolver) GuestReachedProjectLimit(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := r.UserProjectCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return n >= GuestMaxProjects, nil
}

// CheckGuestConstraints enforces the guest role's hard limits. Non-guests pass
// unconditionally. Failures return *ForbiddenError so callers can surface the
// reason; any other action succeeds — guests view and comment freely within
// their granted scope.
func (r *Resolver) CheckGuestConstraints(ctx context.Context, sess Session, action Action) error {
	if sess.AccountRole != RoleGuest {
		return nil
	}
	switch action {
	case ActionDelete:
		return &ForbiddenError{Reason: "Guests cannot delete content"}
	case ActionInvite:
		return &ForbiddenError{Reason: "Guests cannot invite other users"}
	case ActionCreateProject:
		reached, err := r.GuestReachedProjectLimit(ctx, sess.UserID)
		if err != nil {
			return err
		}
		if reached {
			return &ForbiddenError{Reason: fmt.Sprintf("Guests can only access %d project(s)", GuestMaxProjects)}
		}
		return nil
	default:
		return nil
	}
}
