// ABOUTME: Store methods for projects. The resolver ref join denormalizes the
// ABOUTME: owning account so the admin-override check is one membership lookup.
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

// Project is a projects table row.
type Project struct {
	ID           uuid.UUID
	WorkspaceID  uuid.UUID
	Name         string
	IsRestricted bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateProject inserts a project under the given workspace.
func (s *Store) CreateProject(ctx context.Context, workspaceID uuid.UUID, name string, isRestricted bool) (*Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx, `
		INSERT INTO projects (workspace_id, name, is_restricted) VALUES ($1, $2, $3)
		RETURNING id, workspace_id, name, is_restricted, created_at, updated_at`,
		workspaceID, name, isRestricted,
	).Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.IsRestricted, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &p, nil
}

// GetProject returns the project with the given id, or (nil, nil) if none.
func (s *Store) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx, `
		SELECT id, workspace_id, name, is_restricted, created_at, updated_at
		FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.IsRestricted, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

// GetProjectRef returns the resolver's view of a project (parent workspace,
// owning account, restriction flag), or (nil, nil) if it does not exist.
// Part of the perm.Store contract.
func (s *Store) GetProjectRef(ctx context.Context, id uuid.UUID) (*perm.ProjectRef, error) {
	var ref perm.ProjectRef
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.workspace_id, w.account_id, p.is_restricted
		FROM projects p
		JOIN workspaces w ON w.id = p.workspace_id
		WHERE p.id = $1`, id,
	).Scan(&ref.ID, &ref.WorkspaceID, &ref.AccountID, &ref.IsRestricted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project ref: %w", err)
	}
	return &ref, nil
}

// SetProjectRestricted flips the project's inheritance wall.
func (s *Store) SetProjectRestricted(ctx context.Context, id uuid.UUID, restricted bool) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE projects SET is_restricted = $2, updated_at = now() WHERE id = $1`,
		id, restricted); err != nil {
		return fmt.Errorf("set project restricted: %w", err)
	}
	return nil
}

// DeleteProject deletes the project; folders and grant rows cascade.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// ListWorkspaceProjects returns all projects in a workspace ordered by name.
func (s *Store) ListWorkspaceProjects(ctx context.Context, workspaceID uuid.UUID) ([]Project, error) {
	query, args, err := psql.
		Select("id", "workspace_id", "name", "is_restricted", "created_at", "updated_at").
		From("projects").
		Where(sq.Eq{"workspace_id": workspaceID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build project listing: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.IsRestricted, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
