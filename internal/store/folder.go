// ABOUTME: Store methods for folders. Folders may nest, but the resolver ref
// ABOUTME: only carries the immediate project — ancestor folders are not consulted.
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

// Folder is a folders table row.
type Folder struct {
	ID             uuid.UUID
	ProjectID      uuid.UUID
	ParentFolderID *uuid.UUID
	Name           string
	IsRestricted   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateFolder inserts a folder under the given project. parentFolderID may be
// nil for a top-level folder.
func (s *Store) CreateFolder(ctx context.Context, projectID uuid.UUID, parentFolderID *uuid.UUID, name string, isRestricted bool) (*Folder, error) {
	var f Folder
	err := s.pool.QueryRow(ctx, `
		INSERT INTO folders (project_id, parent_folder_id, name, is_restricted)
		VALUES ($1, $2, $3, $4)
		RETURNING id, project_id, parent_folder_id, name, is_restricted, created_at, updated_at`,
		projectID, parentFolderID, name, isRestricted,
	).Scan(&f.ID, &f.ProjectID, &f.ParentFolderID, &f.Name, &f.IsRestricted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	return &f, nil
}

// GetFolder returns the folder with the given id, or (nil, nil) if none.
func (s *Store) GetFolder(ctx context.Context, id uuid.UUID) (*Folder, error) {
	var f Folder
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, parent_folder_id, name, is_restricted, created_at, updated_at
		FROM folders WHERE id = $1`, id,
	).Scan(&f.ID, &f.ProjectID, &f.ParentFolderID, &f.Name, &f.IsRestricted, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder: %w", err)
	}
	return &f, nil
}

// GetFolderRef returns the resolver's view of a folder, or (nil, nil) if it
// does not exist. Part of the perm.Store contract.
func (s *Store) GetFolderRef(ctx context.Context, id uuid.UUID) (*perm.FolderRef, error) {
	var ref perm.FolderRef
	err := s.pool.QueryRow(ctx, `
		SELECT f.id, f.project_id, w.account_id, f.is_restricted
		FROM folders f
		JOIN projects p ON p.id = f.project_id
		JOIN workspaces w ON w.id = p.workspace_id
		WHERE f.id = $1`, id,
	).Scan(&ref.ID, &ref.ProjectID, &ref.AccountID, &ref.IsRestricted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get folder ref: %w", err)
	}
	return &ref, nil
}

// SetFolderRestricted flips the folder's inheritance wall.
func (s *Store) SetFolderRestricted(ctx context.Context, id uuid.UUID, restricted bool) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE folders SET is_restricted = $2, updated_at = now() WHERE id = $1`,
		id, restricted); err != nil {
		return fmt.Errorf("set folder restricted: %w", err)
	}
	return nil
}

// DeleteFolder deletes the folder; nested folders and grant rows cascade.
func (s *Store) DeleteFolder(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM folders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete folder: %w", err)
	}
	return nil
}

// ListProjectFolders returns all folders in a project ordered by name.
func (s *Store) ListProjectFolders(ctx context.Context, projectID uuid.UUID) ([]Folder, error) {
	query, args, err := psql.
		Select("id", "project_id", "parent_folder_id", "name", "is_restricted", "created_at", "updated_at").
		From("folders").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("name ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build folder listing: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.ProjectID, &f.ParentFolderID, &f.Name, &f.IsRestricted, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}
