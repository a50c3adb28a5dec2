// ABOUTME: Effective-permission resolution for workspaces, projects, and folders.
// ABOUTME: Order per resource: admin override, direct grant, restriction wall, parent delegation.
package perm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AccountRole is a user's account-level role, carried on the membership row.
type AccountRole string

const (
	RoleOwner        AccountRole = "owner"
	RoleContentAdmin AccountRole = "content_admin"
	RoleMember       AccountRole = "member"
	RoleGuest        AccountRole = "guest"
	RoleReviewer     AccountRole = "reviewer"
)

// RoleGrantsAdminOverride reports whether role receives automatic full access
// to every resource in the account. The same helper gates all three resource
// kinds so the override rule cannot drift between them.
func RoleGrantsAdminOverride(role AccountRole) bool {
	return role == RoleOwner || role == RoleContentAdmin
}

// Source describes how an effective permission was derived.
type Source string

const (
	SourceAdminOverride Source = "admin_override"
	SourceDirect        Source = "direct"
	SourceInherited     Source = "inherited"
)

// Result is a computed effective permission. A nil *Result means no access;
// results are never persisted.
type Result struct {
	Level  Level  `json:"level"`
	Source Source `json:"source"`
}

// WorkspaceRef is the workspace shape the resolver needs: identity plus owning
// account. Workspaces carry no restriction flag.
type WorkspaceRef struct {
	ID        uuid.UUID
	AccountID uuid.UUID
}

// ProjectRef carries the project's parent pointer, owning account, and
// restriction flag. AccountID is denormalized so the admin-override check is a
// single membership lookup.
type ProjectRef struct {
	ID           uuid.UUID
	WorkspaceID  uuid.UUID
	AccountID    uuid.UUID
	IsRestricted bool
}

// FolderRef mirrors ProjectRef one level down. Folder nesting is ignored for
// resolution; only the immediate project matters.
type FolderRef struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	AccountID    uuid.UUID
	IsRestricted bool
}

// Store is the point-lookup surface the resolver needs. *store.Store satisfies
// it in production; tests inject an in-memory fake. Every method returns nil
// (not an error) when the row does not exist — "missing" and "inaccessible"
// are deliberately indistinguishable to callers.
type Store interface {
	GetWorkspaceRef(ctx context.Context, id uuid.UUID) (*WorkspaceRef, error)
	GetProjectRef(ctx context.Context, id uuid.UUID) (*ProjectRef, error)
	GetFolderRef(ctx context.Context, id uuid.UUID) (*FolderRef, error)

	// GetAccountRole returns the user's role in the account, or nil if the
	// user is not a member.
	GetAccountRole(ctx context.Context, accountID, userID uuid.UUID) (*AccountRole, error)

	GetWorkspaceGrant(ctx context.Context, workspaceID, userID uuid.UUID) (*Level, error)
	GetProjectGrant(ctx context.Context, projectID, userID uuid.UUID) (*Level, error)
	GetFolderGrant(ctx context.Context, folderID, userID uuid.UUID) (*Level, error)

	// CountUserProjectGrants counts distinct projects with a direct grant for
	// the user. Inherited and admin-override access do not count.
	CountUserProjectGrants(ctx context.Context, userID uuid.UUID) (int, error)
}

// Resolver computes effective permissions. It is stateless between calls; all
// state lives in the injected Store.
type Resolver struct {
	store Store
}

// NewResolver creates a Resolver backed by s.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// adminOverride reports whether userID holds an override-granting role in the
// given account.
func (r *Resolver) adminOverride(ctx context.Context, accountID, userID uuid.UUID) (bool, error) {
	role, err := r.store.GetAccountRole(ctx, accountID, userID)
	if err != nil {
		return false, fmt.Errorf("account role: %w", err)
	}
	return role != nil && RoleGrantsAdminOverride(*role), nil
}

// WorkspacePermission resolves the user's effective permission on a workspace:
// admin override, then direct grant. Workspaces have no parent to inherit from.
// Returns nil when the workspace does not exist or the user has no access.
func (r *Resolver) WorkspacePermission(ctx context.Context, userID, workspaceID uuid.UUID) (*Result, error) {
	ws, err := r.store.GetWorkspaceRef(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", workspaceID, err)
	}
	if ws == nil {
		return nil, nil
	}

	override, err := r.adminOverride(ctx, ws.AccountID, userID)
	if err != nil {
		return nil, err
	}
	if override {
		return &Result{Level: LevelFullAccess, Source: SourceAdminOverride}, nil
	}

	lvl, err := r.store.GetWorkspaceGrant(ctx, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("workspace grant: %w", err)
	}
	if lvl != nil {
		return &Result{Level: *lvl, Source: SourceDirect}, nil
	}
	return nil, nil
}

// ProjectPermission resolves the user's effective permission on a project.
// A restricted project blocks workspace inheritance: only admin override or a
// direct grant can reach it. Access delegated from the workspace is relabeled
// inherited regardless of how the workspace-level permission itself arose.
func (r *Resolver) ProjectPermission(ctx context.Context, userID, projectID uuid.UUID) (*Result, error) {
	p, err := r.store.GetProjectRef(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", projectID, err)
	}
	if p == nil {
		return nil, nil
	}

	override, err := r.adminOverride(ctx, p.AccountID, userID)
	if err != nil {
		return nil, err
	}
	if override {
		return &Result{Level: LevelFullAccess, Source: SourceAdminOverride}, nil
	}

	lvl, err := r.store.GetProjectGrant(ctx, projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("project grant: %w", err)
	}
	if lvl != nil {
		return &Result{Level: *lvl, Source: SourceDirect}, nil
	}

	if p.IsRestricted {
		return nil, nil
	}

	parent, err := r.WorkspacePermission(ctx, userID, p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, nil
	}
	return &Result{Level: parent.Level, Source: SourceInherited}, nil
}

// FolderPermission resolves the user's effective permission on a folder.
// Unlike the workspace→project hop, delegation to the project is a transparent
// pass-through: the project's result is returned unchanged, source included.
// A folder reached through a direct project grant therefore reports "direct".
func (r *Resolver) FolderPermission(ctx context.Context, userID, folderID uuid.UUID) (*Result, error) {
	f, err := r.store.GetFolderRef(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("folder %s: %w", folderID, err)
	}
	if f == nil {
		return nil, nil
	}

	override, err := r.adminOverride(ctx, f.AccountID, userID)
	if err != nil {
		return nil, err
	}
	if override {
		return &Result{Level: LevelFullAccess, Source: SourceAdminOverride}, nil
	}

	lvl, err := r.store.GetFolderGrant(ctx, folderID, userID)
	if err != nil {
		return nil, fmt.Errorf("folder grant: %w", err)
	}
	if lvl != nil {
		return &Result{Level: *lvl, Source: SourceDirect}, nil
	}

	if f.IsRestricted {
		return nil, nil
	}

	return r.ProjectPermission(ctx, userID, f.ProjectID)
}

// IsAccountAdmin reports whether userID holds an owner or content_admin
// membership in accountID.
func (r *Resolver) IsAccountAdmin(ctx context.Context, userID, accountID uuid.UUID) (bool, error) {
	return r.adminOverride(ctx, accountID, userID)
}
