// ABOUTME: Tests for RequirePermission middleware: admin override, direct grants,
// ABOUTME: restriction walls, and the 404-on-no-access contract.
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/auth"
	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/perm"
	"github.com/atelierhq/atelier/internal/store"
	"github.com/atelierhq/atelier/internal/testutil"
)

// permFixture is a seeded account tree plus a Server for middleware tests.
type permFixture struct {
	srv     *Server
	db      *testutil.TestDB
	account uuid.UUID
	ws      *store.Workspace
	project *store.Project
	folder  *store.Folder
}

const permTestSecret = "permtestsecret"

// newPermFixture seeds an account (owned by a throwaway user), workspace,
// project, and folder, and returns a Server using permTestSecret.
func newPermFixture(t *testing.T) *permFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, err := db.CreateUser(ctx, "fixture_owner@example.com", "FixtureOwner", "x")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	account, err := db.CreateAccountWithOwner(ctx, "FixtureAccount", owner.ID)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	ws, err := db.CreateWorkspace(ctx, account.ID, "WS")
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	project, err := db.CreateProject(ctx, ws.ID, "P", false)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	folder, err := db.CreateFolder(ctx, project.ID, nil, "F", false)
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}

	cfg := &config.Config{JWTSecret: permTestSecret, Argon2MaxConcurrent: 5} //nolint:exhaustruct // test: only relevant fields set
	return &permFixture{
		srv:     NewServer(db.Store, cfg),
		db:      db,
		account: account.ID,
		ws:      ws,
		project: project,
		folder:  folder,
	}
}

// user creates a user with the given account role ("" for no membership) and
// returns the user ID plus a valid access token.
func (fx *permFixture) user(t *testing.T, email string, role perm.AccountRole) (uuid.UUID, string) {
	t.Helper()
	ctx := context.Background()
	u, err := fx.db.CreateUser(ctx, email, email, "x")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if role != "" {
		if err := fx.db.AddAccountMember(ctx, fx.account, u.ID, role); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	token, err := auth.IssueAccessToken([]byte(permTestSecret), u.ID, 0, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return u.ID, token
}

// gatedServer builds an httptest server with RequireAuthenticated +
// RequirePermission wrapped around a handler that records the resolved
// permission from the request context.
func (fx *permFixture) gatedServer(t *testing.T, resourceType perm.ResourceType, action perm.Action) (*httptest.Server, **perm.Result) {
	t.Helper()
	var got *perm.Result
	r := chi.NewRouter()
	pattern := "/{" + resourceParam(resourceType) + "}/resource"
	r.With(
		fx.srv.RequireAuthenticated(),
		fx.srv.RequirePermission(resourceType, action),
	).Get(pattern, func(w http.ResponseWriter, r *http.Request) {
		got = permFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, &got
}

// get performs a GET with the access token cookie and returns the status code.
func get(t *testing.T, ts *httptest.Server, path, token string) int {
	t.Helper()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	}
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive: ts.URL is httptest.Server
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode
}

func TestRequirePermission_NoToken_401(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	ts, _ := fx.gatedServer(t, perm.ResourceWorkspace, perm.ActionView)

	if code := get(t, ts, "/"+fx.ws.ID.String()+"/resource", ""); code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", code)
	}
}

func TestRequirePermission_AdminOverride(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	_, token := fx.user(t, "admin@example.com", perm.RoleContentAdmin)
	ts, got := fx.gatedServer(t, perm.ResourceFolder, perm.ActionDelete)

	if code := get(t, ts, "/"+fx.folder.ID.String()+"/resource", token); code != http.StatusOK {
		t.Fatalf("content_admin deleting folder: got %d, want 200", code)
	}
	if (*got).Source != perm.SourceAdminOverride || (*got).Level != perm.LevelFullAccess {
		t.Errorf("resolved permission = %+v, want full_access/admin_override", *got)
	}
}

func TestRequirePermission_DirectGrantSufficient(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	userID, token := fx.user(t, "editor@example.com", perm.RoleMember)
	if _, err := fx.db.UpsertWorkspaceGrant(context.Background(), fx.ws.ID, userID, perm.LevelEdit); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ts, got := fx.gatedServer(t, perm.ResourceWorkspace, perm.ActionEdit)

	if code := get(t, ts, "/"+fx.ws.ID.String()+"/resource", token); code != http.StatusOK {
		t.Fatalf("editor editing workspace: got %d, want 200", code)
	}
	if (*got).Source != perm.SourceDirect {
		t.Errorf("source = %q, want direct", (*got).Source)
	}
}

func TestRequirePermission_InsufficientLevel_403(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	userID, token := fx.user(t, "viewer@example.com", perm.RoleMember)
	if _, err := fx.db.UpsertWorkspaceGrant(context.Background(), fx.ws.ID, userID, perm.LevelViewOnly); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ts, _ := fx.gatedServer(t, perm.ResourceWorkspace, perm.ActionEdit)

	if code := get(t, ts, "/"+fx.ws.ID.String()+"/resource", token); code != http.StatusForbidden {
		t.Errorf("viewer editing workspace: got %d, want 403", code)
	}
}

func TestRequirePermission_NoAccess_404(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	_, token := fx.user(t, "member@example.com", perm.RoleMember)
	ts, _ := fx.gatedServer(t, perm.ResourceWorkspace, perm.ActionView)

	// Member with no grant: same 404 as a nonexistent workspace.
	if code := get(t, ts, "/"+fx.ws.ID.String()+"/resource", token); code != http.StatusNotFound {
		t.Errorf("no grant: got %d, want 404", code)
	}
	if code := get(t, ts, "/"+uuid.NewString()+"/resource", token); code != http.StatusNotFound {
		t.Errorf("missing workspace: got %d, want 404", code)
	}
}

func TestRequirePermission_InheritedThroughProject(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	userID, token := fx.user(t, "inheritor@example.com", perm.RoleMember)
	if _, err := fx.db.UpsertWorkspaceGrant(context.Background(), fx.ws.ID, userID, perm.LevelCommentOnly); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ts, got := fx.gatedServer(t, perm.ResourceProject, perm.ActionComment)

	if code := get(t, ts, "/"+fx.project.ID.String()+"/resource", token); code != http.StatusOK {
		t.Fatalf("inherited comment on project: got %d, want 200", code)
	}
	if (*got).Source != perm.SourceInherited {
		t.Errorf("source = %q, want inherited", (*got).Source)
	}
}

func TestRequirePermission_RestrictedProjectBlocksInheritance(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	ctx := context.Background()
	userID, token := fx.user(t, "walled@example.com", perm.RoleMember)
	if _, err := fx.db.UpsertWorkspaceGrant(ctx, fx.ws.ID, userID, perm.LevelFullAccess); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := fx.db.SetProjectRestricted(ctx, fx.project.ID, true); err != nil {
		t.Fatalf("restrict: %v", err)
	}
	ts, _ := fx.gatedServer(t, perm.ResourceProject, perm.ActionView)

	if code := get(t, ts, "/"+fx.project.ID.String()+"/resource", token); code != http.StatusNotFound {
		t.Errorf("restricted project with workspace grant: got %d, want 404", code)
	}

	// A direct grant on the restricted project reopens it.
	if _, err := fx.db.UpsertProjectGrant(ctx, fx.project.ID, userID, perm.LevelViewOnly); err != nil {
		t.Fatalf("project grant: %v", err)
	}
	if code := get(t, ts, "/"+fx.project.ID.String()+"/resource", token); code != http.StatusOK {
		t.Errorf("restricted project with direct grant: got %d, want 200", code)
	}
}
