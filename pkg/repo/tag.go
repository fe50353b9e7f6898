package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
)

// CreateTag creates or updates a lightweight tag ref under refs/tags/.
func (r *Repo) CreateTag(name string, target object.ID, force bool) error {
	name = strings.TrimSpace(name)
	if err := validateTagName(name); err != nil {
		return fmt.Errorf("create tag: %w", err)
	}
	if target.IsNull() {
		return fmt.Errorf("create tag: target id is required")
	}
	refName := TagPrefix + name
	if force {
		if err := r.UpdateRef(refName, target, "tag: updated"); err != nil {
			return fmt.Errorf("create tag: %w", err)
		}
		return nil
	}
	if err := r.UpdateRefCAS(refName, target, object.NullID, "tag: created"); err != nil {
		return fmt.Errorf("create tag: tag %q already exists: %w", name, err)
	}
	return nil
}

// DeleteTag removes refs/tags/<name>.
func (r *Repo) DeleteTag(name string) error {
	deleted, err := r.Refs.DeleteRef(TagPrefix + strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete tag %q: %w", name, err)
	}
	if !deleted {
		return fmt.Errorf("delete tag: tag %q does not exist", name)
	}
	return nil
}

// ListTags returns tag names sorted alphabetically.
func (r *Repo) ListTags() ([]string, error) {
	refs, err := r.ListRefs(TagPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return sortedNames(refs, TagPrefix), nil
}

func validateTagName(name string) error {
	if name == "" {
		return fmt.Errorf("tag name is required")
	}
	if strings.HasPrefix(name, "-") || strings.ContainsAny(name, " \t\n~^:?*[\\") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid tag name %q", name)
	}
	return nil
}
