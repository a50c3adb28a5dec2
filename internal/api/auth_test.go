// ABOUTME: Integration tests for auth HTTP handlers (register, login, refresh, me).
// ABOUTME: Uses real Postgres via testutil.NewTestDB and the full srv.Handler() stack.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/testutil"
)

// cookieValue extracts the value of a named cookie from an HTTP response.
// Returns "" if not found.
func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// newAuthServer creates a full Server + httptest.Server for auth handler tests.
func newAuthServer(t *testing.T, db *testutil.TestDB, regMode string) *httptest.Server {
	t.Helper()
	cfg := &config.Config{ //nolint:exhaustruct // test: only relevant fields set
		JWTSecret:           "authtestsecret",
		RegistrationMode:    regMode,
		Argon2MaxConcurrent: 5,
	}
	srv := NewServer(db.Store, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// postJSON sends a JSON POST and returns the response (caller closes Body).
func postJSON(t *testing.T, ts *httptest.Server, path, body string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodPost, ts.URL+path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive: ts.URL is httptest.Server
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newAuthServer(t, db, "open")

	resp := postJSON(t, ts, "/api/v1/auth/register", `{"email":"ann@example.com","password":"password123","display_name":"Ann"}`)
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: got %d, want 201", resp.StatusCode)
	}
	var reg struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if reg.UserID == "" {
		t.Error("user_id missing from register response")
	}

	login := postJSON(t, ts, "/api/v1/auth/login", `{"email":"ann@example.com","password":"password123"}`)
	defer login.Body.Close() //nolint:errcheck
	if login.StatusCode != http.StatusOK {
		t.Fatalf("login: got %d, want 200", login.StatusCode)
	}
	access := cookieValue(login, "access_token")
	refresh := cookieValue(login, "refresh_token")
	if access == "" || refresh == "" {
		t.Fatal("login did not set both auth cookies")
	}

	// /auth/me with the access cookie.
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: access})
	me, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("me request: %v", err)
	}
	defer me.Body.Close() //nolint:errcheck
	if me.StatusCode != http.StatusOK {
		t.Fatalf("me: got %d, want 200", me.StatusCode)
	}
	var meBody struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(me.Body).Decode(&meBody); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if meBody.Email != "ann@example.com" || meBody.DisplayName != "Ann" {
		t.Errorf("me = %+v", meBody)
	}
}

func TestRegisterDuplicateEmail_409(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newAuthServer(t, db, "open")

	body := `{"email":"dup@example.com","password":"password123"}`
	first := postJSON(t, ts, "/api/v1/auth/register", body)
	first.Body.Close() //nolint:errcheck
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first registration: got %d, want 201", first.StatusCode)
	}

	second := postJSON(t, ts, "/api/v1/auth/register", body)
	defer second.Body.Close() //nolint:errcheck
	if second.StatusCode != http.StatusConflict {
		t.Errorf("duplicate registration: got %d, want 409", second.StatusCode)
	}
}

func TestRegisterClosedMode_403(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newAuthServer(t, db, "closed")

	resp := postJSON(t, ts, "/api/v1/auth/register", `{"email":"nope@example.com","password":"password123"}`)
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("closed-mode registration: got %d, want 403", resp.StatusCode)
	}
}

func TestLoginWrongPassword_401(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newAuthServer(t, db, "open")

	postJSON(t, ts, "/api/v1/auth/register", `{"email":"eve@example.com","password":"password123"}`).Body.Close() //nolint:errcheck

	for _, body := range []string{
		`{"email":"eve@example.com","password":"wrongpassword"}`,
		`{"email":"ghost@example.com","password":"password123"}`,
	} {
		resp := postJSON(t, ts, "/api/v1/auth/login", body)
		resp.Body.Close() //nolint:errcheck
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("login %s: got %d, want 401", body, resp.StatusCode)
		}
	}
}

func TestRefreshAndLogoutAll(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newAuthServer(t, db, "open")

	postJSON(t, ts, "/api/v1/auth/register", `{"email":"ref@example.com","password":"password123"}`).Body.Close() //nolint:errcheck
	login := postJSON(t, ts, "/api/v1/auth/login", `{"email":"ref@example.com","password":"password123"}`)
	login.Body.Close() //nolint:errcheck
	access := cookieValue(login, "access_token")
	refresh := cookieValue(login, "refresh_token")

	// Refresh issues a new cookie pair.
	refreshed := postJSON(t, ts, "/api/v1/auth/refresh", "", &http.Cookie{Name: "refresh_token", Value: refresh})
	refreshed.Body.Close() //nolint:errcheck
	if refreshed.StatusCode != http.StatusOK {
		t.Fatalf("refresh: got %d, want 200", refreshed.StatusCode)
	}
	if cookieValue(refreshed, "access_token") == "" {
		t.Error("refresh did not set a new access token")
	}

	// logout-all bumps token_version; the old refresh token is now rejected.
	out := postJSON(t, ts, "/api/v1/auth/logout-all", "", &http.Cookie{Name: "access_token", Value: access})
	out.Body.Close() //nolint:errcheck
	if out.StatusCode != http.StatusOK {
		t.Fatalf("logout-all: got %d, want 200", out.StatusCode)
	}

	rejected := postJSON(t, ts, "/api/v1/auth/refresh", "", &http.Cookie{Name: "refresh_token", Value: refresh})
	defer rejected.Body.Close() //nolint:errcheck
	if rejected.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh after logout-all: got %d, want 401", rejected.StatusCode)
	}
}

func TestRefreshWithoutCookie_401(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newAuthServer(t, db, "open")

	resp := postJSON(t, ts, "/api/v1/auth/refresh", "")
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh without cookie: got %d, want 401", resp.StatusCode)
	}
}
