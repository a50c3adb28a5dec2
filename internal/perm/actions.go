// ABOUTME: Action gate — maps coarse actions to minimum levels and evaluates them.
// ABOUTME: Unknown actions and resource types fail loudly, never silently deny or allow.
package perm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Action is a coarse operation a caller wants to perform on a resource.
type Action string

const (
	ActionView    Action = "view"
	ActionComment Action = "comment"
	ActionEdit    Action = "edit"
	ActionShare   Action = "share"
	ActionDelete  Action = "delete"

	// Recognized by the guest constraint checker only; they have no minimum
	// level and cannot be passed to CanPerformAction.
	ActionInvite        Action = "invite"
	ActionCreateProject Action = "create_project"
)

// ResourceType selects which resolver handles a permission check.
type ResourceType string

const (
	ResourceWorkspace ResourceType = "workspace"
	ResourceProject   ResourceType = "project"
	ResourceFolder    ResourceType = "folder"
)

var (
	ErrUnknownAction       = errors.New("unknown action")
	ErrUnknownResourceType = errors.New("unknown resource type")
)

// actionMinLevel is the fixed action → minimum required level table.
var actionMinLevel = map[Action]Level{
	ActionView:    LevelViewOnly,
	ActionComment: LevelCommentOnly,
	ActionEdit:    LevelEdit,
	ActionShare:   LevelEditAndShare,
	ActionDelete:  LevelFullAccess,
}

// ActionMinLevel returns the minimum level required for action.
func ActionMinLevel(action Action) (Level, error) {
	lvl, ok := actionMinLevel[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return lvl, nil
}

// Resolve dispatches to the resolver for the given resource type.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, resourceType ResourceType, resourceID uuid.UUID) (*Result, error) {
	switch resourceType {
	case ResourceWorkspace:
		return r.WorkspacePermission(ctx, userID, resourceID)
	case ResourceProject:
		return r.ProjectPermission(ctx, userID, resourceID)
	case ResourceFolder:
		return r.FolderPermission(ctx, userID, resourceID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResourceType, resourceType)
	}
}

// CanPerformAction reports whether the user's effective permission on the
// resource meets the minimum level for action. No access resolves to false;
// unknown action or resource type is an error.
func (r *Resolver) CanPerformAction(ctx context.Context, userID uuid.UUID, resourceType ResourceType, resourceID uuid.UUID, action Action) (bool, error) {
	required, err := ActionMinLevel(action)
	if err != nil {
		return false, err
	}
	res, err := r.Resolve(ctx, userID, resourceType, resourceID)
	if err != nil {
		return false, err
	}
	if res == nil {
		return false, nil
	}
	return LevelAtLeast(res.Level, required)
}
