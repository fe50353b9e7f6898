package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/geogot/pkg/store"
)

// Checkout switches HEAD to target and resets the staged and working trees
// to the target commit's tree.
//
// Algorithm:
//  1. Refuse when the workspace has staged or unstaged changes, unless force.
//  2. Resolve target: a branch name first (HEAD becomes symbolic), then any
//     revision (HEAD is detached at it).
//  3. Point STAGE_HEAD and WORK_HEAD at the commit's tree.
//  4. Update HEAD.
func (r *Repo) Checkout(target string, force bool) error {
	if !force {
		if err := r.ensureClean(); err != nil {
			return fmt.Errorf("checkout: %w", err)
		}
	}

	isBranch := true
	id, err := r.readRefID(BranchPrefix+target, 0)
	if errors.Is(err, store.ErrRefNotFound) {
		isBranch = false
		id, err = r.ResolveRevision(target)
	}
	if err != nil {
		return fmt.Errorf("checkout %q: %w", target, err)
	}

	tree, err := r.commitTree(id)
	if err != nil {
		return fmt.Errorf("checkout %q: %w", target, err)
	}
	if err := r.setWorkspace(tree, tree, "checkout: "+target); err != nil {
		return fmt.Errorf("checkout %q: %w", target, err)
	}

	headValue := id.String()
	if isBranch {
		headValue = store.SymbolicPrefix + BranchPrefix + target
	}
	if err := r.Refs.SetRef(HeadRef, headValue, "checkout: moving to "+target); err != nil {
		return fmt.Errorf("checkout %q: %w", target, err)
	}
	r.log.Infow("checked out", "target", target, "commit", id.Short(), "detached", !isBranch)
	return nil
}

// CheckoutNewBranch creates a branch at HEAD and switches to it without
// touching the workspace.
func (r *Repo) CheckoutNewBranch(name string) error {
	head, err := r.HeadCommit()
	if err != nil {
		return fmt.Errorf("checkout -b %q: %w", name, err)
	}
	if head.IsNull() {
		return fmt.Errorf("checkout -b %q: current branch has no commits", name)
	}
	if err := r.CreateBranch(name, head); err != nil {
		return err
	}
	return r.Refs.SetRef(HeadRef, store.SymbolicPrefix+BranchPrefix+name, "checkout: moving to "+name)
}
