// ABOUTME: Integration tests for the content tree: workspaces, projects, folders,
// ABOUTME: resolver ref lookups, and FK cascade on delete.
package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/perm"
	"github.com/atelierhq/atelier/internal/store"
	"github.com/atelierhq/atelier/internal/testutil"
)

// seedTree creates an account (with owner), workspace, project, and folder.
func seedTree(t *testing.T, s *testutil.TestDB) (account uuid.UUID, ws *store.Workspace, p *store.Project, f *store.Folder) {
	t.Helper()
	ctx := context.Background()

	owner, err := s.CreateUser(ctx, "tree_owner@example.com", "TreeOwner", "x")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	acct, err := s.CreateAccountWithOwner(ctx, "TreeAccount", owner.ID)
	if err != nil {
		t.Fatalf("CreateAccountWithOwner: %v", err)
	}
	ws, err = s.CreateWorkspace(ctx, acct.ID, "Workspace")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	p, err = s.CreateProject(ctx, ws.ID, "Project", false)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	f, err = s.CreateFolder(ctx, p.ID, nil, "Folder", false)
	if err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	return acct.ID, ws, p, f
}

func TestRefLookups(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	accountID, ws, p, f := seedTree(t, s)

	wsRef, err := s.GetWorkspaceRef(ctx, ws.ID)
	if err != nil {
		t.Fatalf("GetWorkspaceRef: %v", err)
	}
	if wsRef.AccountID != accountID {
		t.Errorf("workspace ref account = %v, want %v", wsRef.AccountID, accountID)
	}

	pRef, err := s.GetProjectRef(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProjectRef: %v", err)
	}
	if pRef.WorkspaceID != ws.ID || pRef.AccountID != accountID || pRef.IsRestricted {
		t.Errorf("project ref = %+v", pRef)
	}

	fRef, err := s.GetFolderRef(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFolderRef: %v", err)
	}
	if fRef.ProjectID != p.ID || fRef.AccountID != accountID || fRef.IsRestricted {
		t.Errorf("folder ref = %+v", fRef)
	}

	// Missing resources are (nil, nil), not errors.
	missing, err := s.GetProjectRef(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetProjectRef(missing): %v", err)
	}
	if missing != nil {
		t.Error("GetProjectRef(missing) should return nil")
	}
}

func TestRestrictionFlags(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	_, _, p, f := seedTree(t, s)

	if err := s.SetProjectRestricted(ctx, p.ID, true); err != nil {
		t.Fatalf("SetProjectRestricted: %v", err)
	}
	pRef, _ := s.GetProjectRef(ctx, p.ID)
	if !pRef.IsRestricted {
		t.Error("project ref should be restricted")
	}

	if err := s.SetFolderRestricted(ctx, f.ID, true); err != nil {
		t.Fatalf("SetFolderRestricted: %v", err)
	}
	fRef, _ := s.GetFolderRef(ctx, f.ID)
	if !fRef.IsRestricted {
		t.Error("folder ref should be restricted")
	}
}

func TestNestedFolders(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	_, _, p, f := seedTree(t, s)

	child, err := s.CreateFolder(ctx, p.ID, &f.ID, "Child", false)
	if err != nil {
		t.Fatalf("CreateFolder(nested): %v", err)
	}
	if child.ParentFolderID == nil || *child.ParentFolderID != f.ID {
		t.Errorf("ParentFolderID = %v, want %v", child.ParentFolderID, f.ID)
	}

	// The nested folder's ref still points at the project, not the parent folder.
	ref, err := s.GetFolderRef(ctx, child.ID)
	if err != nil {
		t.Fatalf("GetFolderRef: %v", err)
	}
	if ref.ProjectID != p.ID {
		t.Errorf("nested folder ref project = %v, want %v", ref.ProjectID, p.ID)
	}

	folders, err := s.ListProjectFolders(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListProjectFolders: %v", err)
	}
	if len(folders) != 2 {
		t.Errorf("len(folders) = %d, want 2", len(folders))
	}
}

func TestDeleteWorkspaceCascades(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	_, ws, p, f := seedTree(t, s)

	user, _ := s.CreateUser(ctx, "grantee@example.com", "Grantee", "x")
	if _, err := s.UpsertProjectGrant(ctx, p.ID, user.ID, perm.LevelEdit); err != nil {
		t.Fatalf("UpsertProjectGrant: %v", err)
	}

	if err := s.DeleteWorkspace(ctx, ws.ID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}

	if got, _ := s.GetProject(ctx, p.ID); got != nil {
		t.Error("project should cascade on workspace delete")
	}
	if got, _ := s.GetFolder(ctx, f.ID); got != nil {
		t.Error("folder should cascade on workspace delete")
	}
	if lvl, _ := s.GetProjectGrant(ctx, p.ID, user.ID); lvl != nil {
		t.Error("project grant should cascade on workspace delete")
	}
	if n, _ := s.CountUserProjectGrants(ctx, user.ID); n != 0 {
		t.Errorf("CountUserProjectGrants after cascade = %d, want 0", n)
	}
}
