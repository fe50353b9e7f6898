package repo

import (
	"fmt"
	"slices"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/revtree"
)

// Rebase fast-forwards when it can. Otherwise it replays the head's
// first-parent commits since the split point onto the branch tip as new
// single-parent commits and moves the head to the last one. Commits whose
// changes are already present upstream are dropped.
//
// A replayed change conflicts when the upstream tree no longer holds the
// value the change started from. Ours is the replayed commit's side and
// Theirs the upstream side.
type Rebase struct {
	Policy ConflictPolicy
}

type replayStep struct {
	commit     *object.Commit
	parentTree object.ID
}

func (s Rebase) Merge(r *Repo, op MergeOp) (*MergeResult, error) {
	st, err := r.prepareMerge(op)
	if err != nil {
		return nil, err
	}
	if st.upToDate {
		return &MergeResult{Commit: st.head, UpToDate: true}, nil
	}
	if st.canFastForward {
		return r.fastForward(st)
	}

	steps, err := r.replaySteps(st)
	if err != nil {
		return nil, fmt.Errorf("rebase onto %q: %w", op.Branch, err)
	}

	res := &MergeResult{}
	cur, curTree := st.tip, st.tipTree
	committer := op.author(r)
	err = r.Update(func(src revtree.Source) error {
		for _, step := range steps {
			changes, err := diff.Collect(src, step.parentTree, step.commit.TreeID, nil)
			if err != nil {
				return err
			}
			t, err := revtree.Load(src, curTree)
			if err != nil {
				return err
			}
			changed, err := replayChanges(t, changes, s.Policy, &res.Conflicts)
			if err != nil {
				return err
			}
			if !changed || (len(res.Conflicts) > 0 && s.Policy == ConflictFail) {
				continue
			}
			treeID, err := t.Write()
			if err != nil {
				return err
			}
			id, err := r.writeCommit(src.DB, &object.Commit{
				TreeID:    treeID,
				Parents:   []object.ID{cur},
				Author:    step.commit.Author,
				Committer: committer,
				Timestamp: r.now().UnixMilli(),
				Message:   step.commit.Message,
			})
			if err != nil {
				return err
			}
			cur, curTree = id, treeID
			res.Replayed++
		}
		if len(res.Conflicts) > 0 && s.Policy == ConflictFail {
			return ErrMergeConflict
		}
		return nil
	})
	if err != nil {
		if len(res.Conflicts) > 0 && s.Policy == ConflictFail {
			return &MergeResult{Conflicts: res.Conflicts}, fmt.Errorf("rebase onto %q: %w: %d conflicting features", op.Branch, ErrMergeConflict, len(res.Conflicts))
		}
		return nil, fmt.Errorf("rebase onto %q: %w", op.Branch, err)
	}
	return r.finishMerge(st, res, cur, curTree, "rebase onto "+op.Branch)
}

// replaySteps lists the head's commits after the split point, oldest first,
// each with its parent's tree.
func (r *Repo) replaySteps(st *mergeState) ([]replayStep, error) {
	split, err := r.FindBranchSplit(st.tip, st.head)
	if err != nil {
		return nil, err
	}
	var steps []replayStep
	for c, err := range r.LinearHistory(st.head) {
		if err != nil {
			return nil, err
		}
		if c.ID == split {
			break
		}
		parentTree, err := r.commitTree(c.FirstParent())
		if err != nil {
			return nil, err
		}
		steps = append(steps, replayStep{commit: c, parentTree: parentTree})
	}
	slices.Reverse(steps)
	return steps, nil
}

// replayChanges applies changes to t and reports whether t changed.
func replayChanges(t *revtree.Tree, changes []diff.Change, policy ConflictPolicy, conflicts *[]Conflict) (bool, error) {
	changed := false
	for _, c := range changes {
		current, present, err := t.Get(c.Path)
		if err != nil {
			return false, err
		}
		switch {
		case holdsNew(c, current, present):
			continue
		case holdsOld(c, current, present):
		default:
			conflict := Conflict{Path: c.Path}
			if c.Type != diff.Added {
				conflict.Base = refPtr(c.Old)
			}
			if c.Type != diff.Removed {
				conflict.Ours = refPtr(c.New)
			}
			if present {
				conflict.Theirs = refPtr(current)
			}
			*conflicts = append(*conflicts, conflict)
			if policy != ConflictOurs {
				continue
			}
		}
		if err := applyChanges(t, []diff.Change{c}); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

// holdsNew reports whether the tree already reflects the change's result.
func holdsNew(c diff.Change, current object.Ref, present bool) bool {
	if c.Type == diff.Removed {
		return !present
	}
	return present && current.Equal(c.New)
}

// holdsOld reports whether the tree still holds what the change started from.
func holdsOld(c diff.Change, current object.Ref, present bool) bool {
	if c.Type == diff.Added {
		return !present
	}
	return present && current.Equal(c.Old)
}
