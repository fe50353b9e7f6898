package repo

import (
	"fmt"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/object"
)

// StatusReport describes the workspace relative to HEAD.
type StatusReport struct {
	// Branch is the short branch name, empty when HEAD is detached.
	Branch string
	Head   object.ID
	// Staged holds diff(HEAD tree, staged tree).
	Staged []diff.Change
	// Unstaged holds diff(staged tree, working tree).
	Unstaged []diff.Change
}

// Clean reports whether there is nothing staged or unstaged.
func (s *StatusReport) Clean() bool {
	return len(s.Staged) == 0 && len(s.Unstaged) == 0
}

// Status compares HEAD, the staged tree and the working tree.
func (r *Repo) Status() (*StatusReport, error) {
	branch, err := r.CurrentBranch()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	head, err := r.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	headTree, err := r.commitTree(head)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	stageTree, err := r.StageTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	workTree, err := r.WorkTree()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	report := &StatusReport{Branch: branch, Head: head}
	if report.Staged, err = diff.Collect(r.Source(), headTree, stageTree, nil); err != nil {
		return nil, fmt.Errorf("status: staged: %w", err)
	}
	if report.Unstaged, err = diff.Collect(r.Source(), stageTree, workTree, nil); err != nil {
		return nil, fmt.Errorf("status: unstaged: %w", err)
	}
	return report, nil
}

// ensureClean fails with ErrUncommittedChanges when the workspace differs
// from HEAD.
func (r *Repo) ensureClean() error {
	st, err := r.Status()
	if err != nil {
		return err
	}
	if !st.Clean() {
		return fmt.Errorf("%w: %d staged, %d unstaged", ErrUncommittedChanges, len(st.Staged), len(st.Unstaged))
	}
	return nil
}

// sameTree reports whether two trees hold the same entries. The null id and
// a persisted empty tree compare equal.
func (r *Repo) sameTree(a, b object.ID) (bool, error) {
	if a == b {
		return true, nil
	}
	for _, err := range diff.Trees(r.Source(), a, b, nil) {
		if err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
