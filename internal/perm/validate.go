// ABOUTME: Change validator — blocks direct grants below the effective inherited baseline.
// ABOUTME: The baseline is the parent resolver's output, not a raw grant lookup.
package perm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ChangeValidation is the outcome of ValidatePermissionChange. Reason is set
// only when Valid is false.
type ChangeValidation struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidatePermissionChange checks whether setting a direct grant of
// proposedLevel for userID on the resource would silently undercut what the
// resource inherits from its parent. An administrator lowering a grant below
// the inherited baseline would believe they reduced access when inheritance
// keeps it higher; that change is rejected with a reason.
//
// Workspaces have no parent and are always valid. The baseline deliberately
// comes from the parent-level resolver — admin override, direct grants, and
// inheritance at the parent all count, not merely a stored row.
func (r *Resolver) ValidatePermissionChange(ctx context.Context, userID uuid.UUID, resourceType ResourceType, resourceID uuid.UUID, proposedLevel Level) (ChangeValidation, error) {
	proposedIdx, err := LevelIndex(proposedLevel)
	if err != nil {
		return ChangeValidation{}, err
	}

	var baseline *Result
	switch resourceType {
	case ResourceWorkspace:
		return ChangeValidation{Valid: true}, nil
	case ResourceProject:
		p, err := r.store.GetProjectRef(ctx, resourceID)
		if err != nil {
			return ChangeValidation{}, fmt.Errorf("project %s: %w", resourceID, err)
		}
		if p == nil {
			return ChangeValidation{Valid: true}, nil
		}
		baseline, err = r.WorkspacePermission(ctx, userID, p.WorkspaceID)
		if err != nil {
			return ChangeValidation{}, err
		}
	case ResourceFolder:
		f, err := r.store.GetFolderRef(ctx, resourceID)
		if err != nil {
			return ChangeValidation{}, fmt.Errorf("folder %s: %w", resourceID, err)
		}
		if f == nil {
			return ChangeValidation{Valid: true}, nil
		}
		baseline, err = r.ProjectPermission(ctx, userID, f.ProjectID)
		if err != nil {
			return ChangeValidation{}, err
		}
	default:
		return ChangeValidation{}, fmt.Errorf("%w: %q", ErrUnknownResourceType, resourceType)
	}

	if baseline == nil {
		return ChangeValidation{Valid: true}, nil
	}
	baselineIdx, err := LevelIndex(baseline.Level)
	if err != nil {
		return ChangeValidation{}, err
	}
	if proposedIdx < baselineIdx {
		return ChangeValidation{
			Valid:  false,
			Reason: fmt.Sprintf("Cannot lower inherited permission below %s", baseline.Level),
		}, nil
	}
	return ChangeValidation{Valid: true}, nil
}
