// ABOUTME: Integration tests for grant management, /permissions/me, /permissions/check,
// ABOUTME: the change validator's 422 path, and guest constraint enforcement over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atelierhq/atelier/internal/perm"
)

// apiServer builds an httptest server on the fixture's full Handler stack.
func (fx *permFixture) apiServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(fx.srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON sends an authenticated JSON request and returns status and body.
func doJSON(t *testing.T, ts *httptest.Server, method, path, body, token string) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req, _ := http.NewRequestWithContext(context.Background(), method, ts.URL+path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	}
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive: ts.URL is httptest.Server
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func TestPutGrantValidatorRejectsLowering(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	ctx := context.Background()
	_, ownerToken := fx.user(t, "sharer@example.com", perm.RoleContentAdmin)
	targetID, _ := fx.user(t, "target@example.com", perm.RoleMember)

	if _, err := fx.db.UpsertWorkspaceGrant(ctx, fx.ws.ID, targetID, perm.LevelEdit); err != nil {
		t.Fatalf("workspace grant: %v", err)
	}
	ts := fx.apiServer(t)

	path := "/api/v1/projects/" + fx.project.ID.String() + "/permissions/" + targetID.String()
	code, raw := doJSON(t, ts, http.MethodPut, path, `{"level":"view_only"}`, ownerToken)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("lowering below baseline: got %d, want 422 (body %s)", code, raw)
	}
	var validation perm.ChangeValidation
	if err := json.Unmarshal(raw, &validation); err != nil {
		t.Fatalf("decode validation: %v", err)
	}
	if validation.Valid {
		t.Error("validation.Valid = true, want false")
	}
	if validation.Reason != "Cannot lower inherited permission below edit" {
		t.Errorf("reason = %q", validation.Reason)
	}

	// Granting at or above the baseline succeeds.
	code, raw = doJSON(t, ts, http.MethodPut, path, `{"level":"edit_and_share"}`, ownerToken)
	if code != http.StatusOK {
		t.Errorf("granting above baseline: got %d, want 200 (body %s)", code, raw)
	}
}

func TestPutGrantInvalidLevel_400(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	_, ownerToken := fx.user(t, "admin2@example.com", perm.RoleContentAdmin)
	targetID, _ := fx.user(t, "target2@example.com", perm.RoleMember)
	ts := fx.apiServer(t)

	path := "/api/v1/workspaces/" + fx.ws.ID.String() + "/permissions/" + targetID.String()
	code, raw := doJSON(t, ts, http.MethodPut, path, `{"level":"superuser"}`, ownerToken)
	if code != http.StatusBadRequest {
		t.Fatalf("invalid level: got %d, want 400", code)
	}
	if !strings.Contains(string(raw), "invalid permission level") {
		t.Errorf("error body = %s", raw)
	}
}

func TestGrantListAndRevoke(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	_, ownerToken := fx.user(t, "admin3@example.com", perm.RoleContentAdmin)
	targetID, _ := fx.user(t, "listed@example.com", perm.RoleMember)
	ts := fx.apiServer(t)

	base := "/api/v1/folders/" + fx.folder.ID.String() + "/permissions"
	code, _ := doJSON(t, ts, http.MethodPut, base+"/"+targetID.String(), `{"level":"comment_only"}`, ownerToken)
	if code != http.StatusOK {
		t.Fatalf("put grant: got %d, want 200", code)
	}

	code, raw := doJSON(t, ts, http.MethodGet, base, "", ownerToken)
	if code != http.StatusOK {
		t.Fatalf("list grants: got %d, want 200", code)
	}
	var grants []grantResponseBody
	if err := json.Unmarshal(raw, &grants); err != nil {
		t.Fatalf("decode grants: %v", err)
	}
	if len(grants) != 1 || grants[0].Level != "comment_only" || grants[0].Email != "listed@example.com" {
		t.Errorf("grants = %+v", grants)
	}

	// Revoke twice; both succeed.
	for i := 0; i < 2; i++ {
		code, _ = doJSON(t, ts, http.MethodDelete, base+"/"+targetID.String(), "", ownerToken)
		if code != http.StatusNoContent {
			t.Errorf("revoke %d: got %d, want 204", i+1, code)
		}
	}
}

func TestGrantRoutesRequireShareLevel(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	ctx := context.Background()
	editorID, editorToken := fx.user(t, "mere_editor@example.com", perm.RoleMember)
	targetID, _ := fx.user(t, "target3@example.com", perm.RoleMember)
	if _, err := fx.db.UpsertWorkspaceGrant(ctx, fx.ws.ID, editorID, perm.LevelEdit); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ts := fx.apiServer(t)

	path := "/api/v1/workspaces/" + fx.ws.ID.String() + "/permissions/" + targetID.String()
	code, _ := doJSON(t, ts, http.MethodPut, path, `{"level":"view_only"}`, editorToken)
	if code != http.StatusForbidden {
		t.Errorf("editor granting: got %d, want 403", code)
	}
}

func TestGuestProjectCapOverHTTP(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	ctx := context.Background()
	_, adminToken := fx.user(t, "capadmin@example.com", perm.RoleContentAdmin)
	guestID, _ := fx.user(t, "capguest@example.com", perm.RoleGuest)

	if _, err := fx.db.UpsertProjectGrant(ctx, fx.project.ID, guestID, perm.LevelViewOnly); err != nil {
		t.Fatalf("first project grant: %v", err)
	}
	second, err := fx.db.CreateProject(ctx, fx.ws.ID, "Second", false)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	ts := fx.apiServer(t)

	code, raw := doJSON(t, ts, http.MethodPut,
		"/api/v1/projects/"+second.ID.String()+"/permissions/"+guestID.String(),
		`{"level":"view_only"}`, adminToken)
	if code != http.StatusForbidden {
		t.Fatalf("second project for guest: got %d, want 403", code)
	}
	if !strings.Contains(string(raw), "Guests can only access 1 project(s)") {
		t.Errorf("error body = %s", raw)
	}

	// Re-granting the project the guest already holds is allowed.
	code, _ = doJSON(t, ts, http.MethodPut,
		"/api/v1/projects/"+fx.project.ID.String()+"/permissions/"+guestID.String(),
		`{"level":"edit"}`, adminToken)
	if code != http.StatusOK {
		t.Errorf("re-grant held project: got %d, want 200", code)
	}
}

func TestGuestDeleteForbiddenOverHTTP(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	ctx := context.Background()
	guestID, guestToken := fx.user(t, "delguest@example.com", perm.RoleGuest)
	if _, err := fx.db.UpsertFolderGrant(ctx, fx.folder.ID, guestID, perm.LevelFullAccess); err != nil {
		t.Fatalf("folder grant: %v", err)
	}
	ts := fx.apiServer(t)

	code, raw := doJSON(t, ts, http.MethodDelete, "/api/v1/folders/"+fx.folder.ID.String(), "", guestToken)
	if code != http.StatusForbidden {
		t.Fatalf("guest delete with full_access grant: got %d, want 403", code)
	}
	if !strings.Contains(string(raw), "Guests cannot delete content") {
		t.Errorf("error body = %s", raw)
	}
}

func TestMyPermissionEndpoint(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	ctx := context.Background()
	userID, token := fx.user(t, "mine@example.com", perm.RoleMember)
	if _, err := fx.db.UpsertProjectGrant(ctx, fx.project.ID, userID, perm.LevelEdit); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ts := fx.apiServer(t)

	code, raw := doJSON(t, ts, http.MethodGet,
		"/api/v1/projects/"+fx.project.ID.String()+"/permissions/me", "", token)
	if code != http.StatusOK {
		t.Fatalf("permissions/me: got %d, want 200", code)
	}
	var out myPermissionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Permission == nil || out.Permission.Level != perm.LevelEdit || out.Permission.Source != perm.SourceDirect {
		t.Errorf("permission = %+v", out.Permission)
	}

	// A folder inside the project reports the same result, source unchanged.
	code, raw = doJSON(t, ts, http.MethodGet,
		"/api/v1/folders/"+fx.folder.ID.String()+"/permissions/me", "", token)
	if code != http.StatusOK {
		t.Fatalf("folder permissions/me: got %d, want 200", code)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Permission == nil || out.Permission.Source != perm.SourceDirect {
		t.Errorf("folder permission = %+v", out.Permission)
	}

	// No access resolves to a null permission, not an error.
	_, strangerToken := fx.user(t, "stranger2@example.com", "")
	code, raw = doJSON(t, ts, http.MethodGet,
		"/api/v1/projects/"+fx.project.ID.String()+"/permissions/me", "", strangerToken)
	if code != http.StatusOK {
		t.Fatalf("stranger permissions/me: got %d, want 200", code)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Permission != nil {
		t.Errorf("stranger permission = %+v, want null", out.Permission)
	}
}

func TestCheckPermissionEndpoint(t *testing.T) {
	t.Parallel()
	fx := newPermFixture(t)
	ctx := context.Background()
	viewerID, viewerToken := fx.user(t, "checker@example.com", perm.RoleMember)
	if _, err := fx.db.UpsertWorkspaceGrant(ctx, fx.ws.ID, viewerID, perm.LevelViewOnly); err != nil {
		t.Fatalf("grant: %v", err)
	}
	ts := fx.apiServer(t)

	check := func(resourceType, resourceID, action string) (int, checkResponse) {
		t.Helper()
		code, raw := doJSON(t, ts, http.MethodGet,
			"/api/v1/permissions/check?resource_type="+resourceType+"&resource_id="+resourceID+"&action="+action,
			"", viewerToken)
		var out checkResponse
		_ = json.Unmarshal(raw, &out)
		return code, out
	}

	code, out := check("workspace", fx.ws.ID.String(), "view")
	if code != http.StatusOK || !out.Allowed {
		t.Errorf("view check = %d %+v, want 200 allowed", code, out)
	}

	code, out = check("workspace", fx.ws.ID.String(), "edit")
	if code != http.StatusOK || out.Allowed {
		t.Errorf("edit check = %d %+v, want 200 denied", code, out)
	}

	// Unknown action and resource type are 400, never a silent deny.
	if code, _ = check("workspace", fx.ws.ID.String(), "annihilate"); code != http.StatusBadRequest {
		t.Errorf("unknown action: got %d, want 400", code)
	}
	if code, _ = check("universe", fx.ws.ID.String(), "view"); code != http.StatusBadRequest {
		t.Errorf("unknown resource type: got %d, want 400", code)
	}
}
