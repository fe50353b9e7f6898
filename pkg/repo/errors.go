package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/geogot/pkg/object"
)

var (
	// ErrCorruptHistory is returned when a commit chain cannot be followed:
	// a non-root commit without parents, or a parent that does not resolve.
	ErrCorruptHistory = errors.New("corrupt history")
	// ErrNothingToCommit is returned when the staged tree equals HEAD's tree.
	ErrNothingToCommit = errors.New("nothing to commit")
	// ErrNothingToMerge is returned when the branch to merge has no commits.
	ErrNothingToMerge = errors.New("nothing to merge")
	// ErrNotFastForward is returned by FastForward when the head is not an
	// ancestor of the branch tip.
	ErrNotFastForward = errors.New("not a fast-forward")
	// ErrMergeConflict is returned when a merge or rebase meets divergent
	// changes and the policy is ConflictFail. Nothing is written.
	ErrMergeConflict = errors.New("merge conflict")
	// ErrUncommittedChanges is returned when an operation would overwrite
	// staged or unstaged changes.
	ErrUncommittedChanges = errors.New("uncommitted changes")
	// ErrUnknownRevision is returned when a revision string names nothing.
	ErrUnknownRevision = errors.New("unknown revision")
)

// CorruptHistoryError names the commit at which history could not be
// followed.
type CorruptHistoryError struct {
	Commit object.ID
	Reason string
	Err    error
}

func (e *CorruptHistoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s at %s: %s: %v", ErrCorruptHistory, e.Commit.Short(), e.Reason, e.Err)
	}
	return fmt.Sprintf("%s at %s: %s", ErrCorruptHistory, e.Commit.Short(), e.Reason)
}

func (e *CorruptHistoryError) Unwrap() error {
	return e.Err
}

func (e *CorruptHistoryError) Is(target error) bool {
	return target == ErrCorruptHistory
}
