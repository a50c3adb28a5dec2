// ABOUTME: PermissionLevel — five ordered capability tiers and comparison helpers.
// ABOUTME: Unknown levels are programmer errors and fail loudly, never default.
package perm

import (
	"errors"
	"fmt"
)

// Level is one of five discrete capability tiers. The total order
// view_only < comment_only < edit < edit_and_share < full_access is the single
// invariant every comparison and gating decision in this package reduces to.
type Level string

const (
	LevelViewOnly     Level = "view_only"
	LevelCommentOnly  Level = "comment_only"
	LevelEdit         Level = "edit"
	LevelEditAndShare Level = "edit_and_share"
	LevelFullAccess   Level = "full_access"
)

// ErrInvalidLevel is returned when a level string is not one of the five tiers.
var ErrInvalidLevel = errors.New("invalid permission level")

var levelOrdinals = map[Level]int{
	LevelViewOnly:     0,
	LevelCommentOnly:  1,
	LevelEdit:         2,
	LevelEditAndShare: 3,
	LevelFullAccess:   4,
}

// LevelIndex returns the ordinal (0–4) for l. Unknown input is an error —
// silently defaulting would turn a typo into an access decision.
func LevelIndex(l Level) (int, error) {
	idx, ok := levelOrdinals[l]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, l)
	}
	return idx, nil
}

// CompareLevels returns -1, 0, or 1 as a is below, equal to, or above b.
func CompareLevels(a, b Level) (int, error) {
	ai, err := LevelIndex(a)
	if err != nil {
		return 0, err
	}
	bi, err := LevelIndex(b)
	if err != nil {
		return 0, err
	}
	switch {
	case ai < bi:
		return -1, nil
	case ai > bi:
		return 1, nil
	default:
		return 0, nil
	}
}

// LevelAtLeast reports whether a grants at least the capability of b.
func LevelAtLeast(a, b Level) (bool, error) {
	c, err := CompareLevels(a, b)
	if err != nil {
		return false, err
	}
	return c >= 0, nil
}

// MaxLevel returns the higher of a and b.
func MaxLevel(a, b Level) (Level, error) {
	c, err := CompareLevels(a, b)
	if err != nil {
		return "", err
	}
	if c >= 0 {
		return a, nil
	}
	return b, nil
}

// MinLevel returns the lower of a and b.
func MinLevel(a, b Level) (Level, error) {
	c, err := CompareLevels(a, b)
	if err != nil {
		return "", err
	}
	if c <= 0 {
		return a, nil
	}
	return b, nil
}
