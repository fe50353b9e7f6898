package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/store"
)

// CreateBranch creates a new branch pointing at the given commit. Returns an
// error if the branch already exists.
func (r *Repo) CreateBranch(name string, target object.ID) error {
	if err := validateBranchName(name); err != nil {
		return fmt.Errorf("create branch: %w", err)
	}
	if err := r.UpdateRefCAS(BranchPrefix+name, target, object.NullID, "branch: created"); err != nil {
		if errors.Is(err, store.ErrRefCASMismatch) {
			return fmt.Errorf("create branch: branch %q already exists", name)
		}
		return fmt.Errorf("create branch %q: %w", name, err)
	}
	return nil
}

// DeleteBranch removes refs/heads/<name>. Returns an error if the branch is
// the current branch or does not exist.
func (r *Repo) DeleteBranch(name string) error {
	current, err := r.CurrentBranch()
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if current == name {
		return fmt.Errorf("delete branch: cannot delete current branch %q", name)
	}
	deleted, err := r.Refs.DeleteRef(BranchPrefix + name)
	if err != nil {
		return fmt.Errorf("delete branch %q: %w", name, err)
	}
	if !deleted {
		return fmt.Errorf("delete branch: branch %q does not exist", name)
	}
	r.log.Infow("deleted branch", "branch", name)
	return nil
}

// ListBranches returns the local branch names sorted alphabetically.
func (r *Repo) ListBranches() ([]string, error) {
	refs, err := r.ListRefs(BranchPrefix)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return sortedNames(refs, BranchPrefix), nil
}

// CurrentBranch returns the branch HEAD names (e.g. "ref: refs/heads/main"
// gives "main"). A detached HEAD gives "".
func (r *Repo) CurrentBranch() (string, error) {
	target, symbolic, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	if symbolic && strings.HasPrefix(target, BranchPrefix) {
		return strings.TrimPrefix(target, BranchPrefix), nil
	}
	return "", nil
}

func validateBranchName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("branch name is required")
	case name == HeadRef, strings.HasPrefix(name, "-"), strings.HasPrefix(name, "refs/"):
		return fmt.Errorf("invalid branch name %q", name)
	case strings.ContainsAny(name, " \t\n~^:?*[\\"), strings.Contains(name, ".."),
		strings.HasSuffix(name, "/"), strings.HasSuffix(name, ".lock"):
		return fmt.Errorf("invalid branch name %q", name)
	}
	return nil
}
