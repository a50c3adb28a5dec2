// ABOUTME: Store methods for workspaces — CRUD plus the resolver's ref lookup.
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

// Workspace is a workspaces table row.
type Workspace struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateWorkspace inserts a workspace under the given account.
func (s *Store) CreateWorkspace(ctx context.Context, accountID uuid.UUID, name string) (*Workspace, error) {
	var w Workspace
	err := s.pool.QueryRow(ctx, `
		INSERT INTO workspaces (account_id, name) VALUES ($1, $2)
		RETURNING id, account_id, name, created_at, updated_at`,
		accountID, name,
	).Scan(&w.ID, &w.AccountID, &w.Name, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &w, nil
}

// GetWorkspace returns the workspace with the given id, or (nil, nil) if none.
func (s *Store) GetWorkspace(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	var w Workspace
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id, name, created_at, updated_at FROM workspaces WHERE id = $1`, id,
	).Scan(&w.ID, &w.AccountID, &w.Name, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &w, nil
}

// GetWorkspaceRef returns the resolver's view of a workspace, or (nil, nil)
// if it does not exist. Part of the perm.Store contract.
func (s *Store) GetWorkspaceRef(ctx context.Context, id uuid.UUID) (*perm.WorkspaceRef, error) {
	var ref perm.WorkspaceRef
	err := s.pool.QueryRow(ctx,
		`SELECT id, account_id FROM workspaces WHERE id = $1`, id,
	).Scan(&ref.ID, &ref.AccountID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workspace ref: %w", err)
	}
	return &ref, nil
}

// DeleteWorkspace deletes the workspace; projects, folders, and grant rows go
// with it via FK cascade.
func (s *Store) DeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

// ListAccountWorkspaces returns all workspaces in an account ordered by name.
func (s *Store) ListAccountWorkspaces(ctx context.Context, accountID uuid.UUID) ([]Workspace, error) {
	query, args, err := psql.
		Select("id", "account_id", "name", "created_at", "updated_at").
		From("workspaces").
		Where(sq.Eq{"account_id": accountID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build workspace listing: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []Workspace
	for rows.Next() {
		var w Workspace
		if err := rows.Scan(&w.ID, &w.AccountID, &w.Name, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}
