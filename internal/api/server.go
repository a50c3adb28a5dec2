// ABOUTME: HTTP server struct, constructor, and handler wiring for Atelier.
// ABOUTME: Holds the store, config, permission resolver, and argon2 semaphore used by handlers.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/atelierhq/atelier/internal/config"
	"github.com/atelierhq/atelier/internal/perm"
	"github.com/atelierhq/atelier/internal/store"
)

// Server holds the dependencies for the HTTP layer.
type Server struct {
	store       *store.Store
	cfg         *config.Config
	resolver    *perm.Resolver
	argon2Sem   chan struct{}
	rateLimiter *ipRateLimiter
}

// NewServer creates a Server wired to the given store and config.
func NewServer(s *store.Store, cfg *config.Config) *Server {
	evictTTL := cfg.RateLimitEvictTTL
	if evictTTL == 0 {
		evictTTL = 15 * time.Minute
	}
	// 10 requests per minute, burst of 10.
	rl := newIPRateLimiter(rate.Limit(10.0/60), 10, evictTTL)
	return &Server{
		store:       s,
		cfg:         cfg,
		resolver:    perm.NewResolver(s),
		argon2Sem:   make(chan struct{}, cfg.Argon2MaxConcurrent),
		rateLimiter: rl,
	}
}

// Handler builds and returns the http.Handler.
func (srv *Server) Handler() http.Handler {
	var db *pgxpool.Pool
	if srv.store != nil {
		db = srv.store.Pool()
	}
	r := chi.NewRouter()

	// ── Security headers ──────────────────────────────────────────────────────
	// Must be first so they appear on every response including errors.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	// ── Standard chi middleware ───────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// 1 MB global body limit — protect against OOM from large request bodies.
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)

	// ── Infrastructure endpoints ──────────────────────────────────────────────
	r.Get("/healthz", healthzHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	// ── API v1 sub-router with huma (OpenAPI 3.1) ────────────────────────────
	apiRouter := chi.NewRouter()
	// Auth endpoints run argon2 and issue tokens; rate limit them per IP.
	apiRouter.Use(middleware.Maybe(srv.authRateLimit(), func(r *http.Request) bool {
		return strings.HasPrefix(r.URL.Path, "/api/v1/auth/")
	}))
	humaConfig := huma.DefaultConfig("Atelier API", "0.1.0")
	humaConfig.Info.Description = "Collaborative content platform API"
	api := humachi.New(apiRouter, humaConfig)
	registerAuthRoutes(api, srv)

	// ── Account routes (chi, not huma, for membership-gated handlers) ─────────
	apiRouter.Route("/accounts", func(r chi.Router) {
		r.Use(srv.RequireAuthenticated())
		r.Post("/", srv.createAccountHandler)
		r.Get("/", srv.listMyAccountsHandler)

		r.Route("/{account_id}", func(r chi.Router) {
			r.Get("/", srv.getAccountHandler)

			r.Route("/members", func(r chi.Router) {
				r.Get("/", srv.listMembersHandler)
				r.Post("/", srv.addMemberHandler)
				r.Patch("/{user_id}", srv.updateMemberRoleHandler)
				r.Delete("/{user_id}", srv.removeMemberHandler)
			})

			r.Post("/workspaces", srv.createWorkspaceHandler)
			r.Get("/workspaces", srv.listWorkspacesHandler)
		})
	})

	// ── Resource routes, gated by the permission resolver ─────────────────────
	apiRouter.Route("/workspaces/{workspace_id}", func(r chi.Router) {
		r.Use(srv.RequireAuthenticated())
		r.With(srv.RequirePermission(perm.ResourceWorkspace, perm.ActionView)).Get("/", srv.getWorkspaceHandler)
		r.With(srv.RequirePermission(perm.ResourceWorkspace, perm.ActionDelete)).Delete("/", srv.deleteWorkspaceHandler)

		r.With(srv.RequirePermission(perm.ResourceWorkspace, perm.ActionEdit)).Post("/projects", srv.createProjectHandler)
		r.With(srv.RequirePermission(perm.ResourceWorkspace, perm.ActionView)).Get("/projects", srv.listProjectsHandler)

		srv.mountGrantRoutes(r, perm.ResourceWorkspace)
	})

	apiRouter.Route("/projects/{project_id}", func(r chi.Router) {
		r.Use(srv.RequireAuthenticated())
		r.With(srv.RequirePermission(perm.ResourceProject, perm.ActionView)).Get("/", srv.getProjectHandler)
		r.With(srv.RequirePermission(perm.ResourceProject, perm.ActionShare)).Patch("/", srv.updateProjectHandler)
		r.With(srv.RequirePermission(perm.ResourceProject, perm.ActionDelete)).Delete("/", srv.deleteProjectHandler)

		r.With(srv.RequirePermission(perm.ResourceProject, perm.ActionEdit)).Post("/folders", srv.createFolderHandler)
		r.With(srv.RequirePermission(perm.ResourceProject, perm.ActionView)).Get("/folders", srv.listFoldersHandler)

		srv.mountGrantRoutes(r, perm.ResourceProject)
	})

	apiRouter.Route("/folders/{folder_id}", func(r chi.Router) {
		r.Use(srv.RequireAuthenticated())
		r.With(srv.RequirePermission(perm.ResourceFolder, perm.ActionView)).Get("/", srv.getFolderHandler)
		r.With(srv.RequirePermission(perm.ResourceFolder, perm.ActionShare)).Patch("/", srv.updateFolderHandler)
		r.With(srv.RequirePermission(perm.ResourceFolder, perm.ActionDelete)).Delete("/", srv.deleteFolderHandler)

		srv.mountGrantRoutes(r, perm.ResourceFolder)
	})

	// ── Generic permission check ──────────────────────────────────────────────
	apiRouter.With(srv.RequireAuthenticated()).Get("/permissions/check", srv.checkPermissionHandler)

	r.Mount("/api/v1", apiRouter)

	return r
}

// mountGrantRoutes registers the per-resource grant management routes. Listing,
// granting, and revoking all require edit_and_share on the resource; /me only
// requires authentication since it reports the caller's own access.
func (srv *Server) mountGrantRoutes(r chi.Router, resourceType perm.ResourceType) {
	r.Route("/permissions", func(r chi.Router) {
		r.With(srv.RequirePermission(resourceType, perm.ActionShare)).
			Get("/", srv.listGrantsHandler(resourceType))
		r.Get("/me", srv.myPermissionHandler(resourceType))
		r.With(srv.RequirePermission(resourceType, perm.ActionShare)).
			Put("/{user_id}", srv.putGrantHandler(resourceType))
		r.With(srv.RequirePermission(resourceType, perm.ActionShare)).
			Delete("/{user_id}", srv.deleteGrantHandler(resourceType))
	})
}

// acquireArgon2 tries to acquire the argon2 semaphore. Returns false if all
// slots are in use — the caller should return 503 immediately (do NOT block).
func (srv *Server) acquireArgon2() bool {
	select {
	case srv.argon2Sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (srv *Server) releaseArgon2() { <-srv.argon2Sem }

// healthResponse is the JSON body for /healthz.
type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

// healthzHandler returns 200 {"status":"ok"} when the DB is reachable,
// or 503 {"status":"degraded","db":"unavailable"} when it is not.
func healthzHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		statusCode := http.StatusOK

		if db == nil {
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		} else if err := db.Ping(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "healthz: db ping failed", "error", err)
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.ErrorContext(r.Context(), "healthz: failed to encode response", "error", err)
		}
	}
}
