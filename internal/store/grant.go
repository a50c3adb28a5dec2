// ABOUTME: Store methods for the three direct-grant tables: upsert, revoke,
// ABOUTME: point lookup, listing, and the guest project-grant count.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atelierhq/atelier/internal/perm"
)

// Grant is a direct permission row on a single resource.
type Grant struct {
	ResourceID uuid.UUID
	UserID     uuid.UUID
	Level      perm.Level
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// GrantRow is one grant in a resource's grant listing, joined with the
// grantee's profile fields.
type GrantRow struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Level       perm.Level
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// grantTable names the table and resource column for one grant kind.
type grantTable struct {
	table  string
	column string
}

var (
	workspaceGrants = grantTable{"workspace_permissions", "workspace_id"}
	projectGrants   = grantTable{"project_permissions", "project_id"}
	folderGrants    = grantTable{"folder_permissions", "folder_id"}
)

// upsertGrant inserts the (resource, user, level) row or updates level and
// updated_at in place. The primary key on (resource, user) serializes
// concurrent grants to the same pair — last writer wins on level.
func (s *Store) upsertGrant(ctx context.Context, t grantTable, resourceID, userID uuid.UUID, level perm.Level) (*Grant, error) {
	var g Grant
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, user_id, level) VALUES ($1, $2, $3)
		ON CONFLICT (%s, user_id)
		DO UPDATE SET level = EXCLUDED.level, updated_at = now()
		RETURNING %s, user_id, level, created_at, updated_at`,
		t.table, t.column, t.column, t.column)
	err := s.pool.QueryRow(ctx, query, resourceID, userID, level).
		Scan(&g.ResourceID, &g.UserID, &g.Level, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", t.table, err)
	}
	return &g, nil
}

// revokeGrant deletes the grant row if present; revoking an absent grant is a
// no-op.
func (s *Store) revokeGrant(ctx context.Context, t grantTable, resourceID, userID uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND user_id = $2`, t.table, t.column)
	if _, err := s.pool.Exec(ctx, query, resourceID, userID); err != nil {
		return fmt.Errorf("revoke %s: %w", t.table, err)
	}
	return nil
}

// getGrantLevel returns the level of a direct grant, or (nil, nil) if no row.
func (s *Store) getGrantLevel(ctx context.Context, t grantTable, resourceID, userID uuid.UUID) (*perm.Level, error) {
	var level perm.Level
	query := fmt.Sprintf(`SELECT level FROM %s WHERE %s = $1 AND user_id = $2`, t.table, t.column)
	err := s.pool.QueryRow(ctx, query, resourceID, userID).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", t.table, err)
	}
	return &level, nil
}

// listGrants returns all grants on a resource with grantee profile fields,
// ordered by grant creation time.
func (s *Store) listGrants(ctx context.Context, t grantTable, resourceID uuid.UUID) ([]GrantRow, error) {
	query, args, err := psql.
		Select("g.user_id", "u.email", "u.display_name", "g.level", "g.created_at", "g.updated_at").
		From(t.table+" g").
		Join("users u ON u.id = g.user_id").
		Where(sq.Eq{"g." + t.column: resourceID}).
		OrderBy("g.created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build grant listing: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.table, err)
	}
	defer rows.Close()

	var grants []GrantRow
	for rows.Next() {
		var g GrantRow
		if err := rows.Scan(&g.UserID, &g.Email, &g.DisplayName, &g.Level, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ── Workspace grants ──────────────────────────────────────────────────────────

func (s *Store) UpsertWorkspaceGrant(ctx context.Context, workspaceID, userID uuid.UUID, level perm.Level) (*Grant, error) {
	return s.upsertGrant(ctx, workspaceGrants, workspaceID, userID, level)
}

func (s *Store) RevokeWorkspaceGrant(ctx context.Context, workspaceID, userID uuid.UUID) error {
	return s.revokeGrant(ctx, workspaceGrants, workspaceID, userID)
}

// GetWorkspaceGrant is part of the perm.Store contract.
func (s *Store) GetWorkspaceGrant(ctx context.Context, workspaceID, userID uuid.UUID) (*perm.Level, error) {
	return s.getGrantLevel(ctx, workspaceGrants, workspaceID, userID)
}

func (s *Store) ListWorkspaceGrants(ctx context.Context, workspaceID uuid.UUID) ([]GrantRow, error) {
	return s.listGrants(ctx, workspaceGrants, workspaceID)
}

// ── Project grants ────────────────────────────────────────────────────────────

func (s *Store) UpsertProjectGrant(ctx context.Context, projectID, userID uuid.UUID, level perm.Level) (*Grant, error) {
	return s.upsertGrant(ctx, projectGrants, projectID, userID, level)
}

func (s *Store) RevokeProjectGrant(ctx context.Context, projectID, userID uuid.UUID) error {
	return s.revokeGrant(ctx, projectGrants, projectID, userID)
}

// GetProjectGrant is part of the perm.Store contract.
func (s *Store) GetProjectGrant(ctx context.Context, projectID, userID uuid.UUID) (*perm.Level, error) {
	return s.getGrantLevel(ctx, projectGrants, projectID, userID)
}

func (s *Store) ListProjectGrants(ctx context.Context, projectID uuid.UUID) ([]GrantRow, error) {
	return s.listGrants(ctx, projectGrants, projectID)
}

// ── Folder grants ─────────────────────────────────────────────────────────────

func (s *Store) UpsertFolderGrant(ctx context.Context, folderID, userID uuid.UUID, level perm.Level) (*Grant, error) {
	return s.upsertGrant(ctx, folderGrants, folderID, userID, level)
}

func (s *Store) RevokeFolderGrant(ctx context.Context, folderID, userID uuid.UUID) error {
	return s.revokeGrant(ctx, folderGrants, folderID, userID)
}

// GetFolderGrant is part of the perm.Store contract.
func (s *Store) GetFolderGrant(ctx context.Context, folderID, userID uuid.UUID) (*perm.Level, error) {
	return s.getGrantLevel(ctx, folderGrants, folderID, userID)
}

func (s *Store) ListFolderGrants(ctx context.Context, folderID uuid.UUID) ([]GrantRow, error) {
	return s.listGrants(ctx, folderGrants, folderID)
}

// CountUserProjectGrants counts distinct projects with a direct grant for the
// user. Part of the perm.Store contract — feeds the guest project cap.
func (s *Store) CountUserProjectGrants(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM project_permissions WHERE user_id = $1`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count project grants: %w", err)
	}
	return n, nil
}
