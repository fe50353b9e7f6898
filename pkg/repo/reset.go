package repo

import (
	"fmt"

	"github.com/odvcencio/geogot/pkg/object"
)

// ResetMode says how much of the workspace Reset rewrites.
type ResetMode int

const (
	// ResetSoft moves the head ref only.
	ResetSoft ResetMode = iota
	// ResetMixed also resets the staged tree. Unstaged edits survive.
	ResetMixed
	// ResetHard also resets the working tree.
	ResetHard
)

func (m ResetMode) String() string {
	switch m {
	case ResetSoft:
		return "soft"
	case ResetMixed:
		return "mixed"
	case ResetHard:
		return "hard"
	default:
		return fmt.Sprintf("ResetMode(%d)", int(m))
	}
}

// Reset moves the current branch (or detached HEAD) to the commit rev names
// and records the previous head in ORIG_HEAD.
//
// Trees that are not reset are pinned to their current ids, since an
// unwritten STAGE_HEAD or WORK_HEAD would otherwise follow the moved head.
func (r *Repo) Reset(rev string, mode ResetMode) (object.ID, error) {
	target, err := r.ResolveRevision(rev)
	if err != nil {
		return object.NullID, fmt.Errorf("reset: %w", err)
	}
	tree, err := r.commitTree(target)
	if err != nil {
		return object.NullID, fmt.Errorf("reset: %w", err)
	}
	old, err := r.HeadCommit()
	if err != nil {
		return object.NullID, fmt.Errorf("reset: %w", err)
	}

	reason := "reset: moving to " + rev
	switch mode {
	case ResetSoft, ResetMixed:
		stage, err := r.StageTree()
		if err != nil {
			return object.NullID, fmt.Errorf("reset: %w", err)
		}
		work, err := r.WorkTree()
		if err != nil {
			return object.NullID, fmt.Errorf("reset: %w", err)
		}
		if mode == ResetMixed {
			stage = tree
		}
		if err := r.setWorkspace(stage, work, reason); err != nil {
			return object.NullID, fmt.Errorf("reset: %w", err)
		}
	case ResetHard:
		if err := r.setWorkspace(tree, tree, reason); err != nil {
			return object.NullID, fmt.Errorf("reset: %w", err)
		}
	default:
		return object.NullID, fmt.Errorf("reset: unknown mode %v", mode)
	}

	if !old.IsNull() {
		if err := r.UpdateRef(OrigHeadRef, old, reason); err != nil {
			return object.NullID, fmt.Errorf("reset: %w", err)
		}
	}
	if err := r.moveHead(target, old, reason); err != nil {
		return object.NullID, fmt.Errorf("reset: %w", err)
	}
	r.log.Infow("reset", "mode", mode.String(), "commit", target.Short())
	return target, nil
}
