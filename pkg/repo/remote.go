package repo

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/remote"
	"github.com/odvcencio/geogot/pkg/revtree"
)

// BranchHeads returns the named branches' head commits; no names means all
// branches.
func (r *Repo) BranchHeads(names ...string) (map[string]object.ID, error) {
	all, err := r.ListRefs(BranchPrefix)
	if err != nil {
		return nil, err
	}
	heads := make(map[string]object.ID, len(all))
	if len(names) == 0 {
		for ref, id := range all {
			heads[strings.TrimPrefix(ref, BranchPrefix)] = id
		}
		return heads, nil
	}
	for _, name := range names {
		id, ok := all[BranchPrefix+name]
		if !ok {
			return nil, fmt.Errorf("branch %q does not exist", name)
		}
		heads[name] = id
	}
	return heads, nil
}

// HaveList advertises every ref this repository holds as a branch list
// (see remote.FormatBranchList). A peer passes it to ExportBundleFor to
// leave out what this repository can already reach.
func (r *Repo) HaveList() (string, error) {
	refs, err := r.ListRefs("refs/")
	if err != nil {
		return "", fmt.Errorf("have list: %w", err)
	}
	return remote.FormatBranchList(refs), nil
}

// ExportBundle writes the given branches (all when empty) to w, leaving out
// objects reachable from have.
func (r *Repo) ExportBundle(w io.Writer, branches []string, have []object.ID, compress bool) (remote.BundleStats, error) {
	heads, err := r.BranchHeads(branches...)
	if err != nil {
		return remote.BundleStats{}, fmt.Errorf("export bundle: %w", err)
	}
	stats, err := remote.WriteBundle(w, r.Objects, r.Codec, heads, have, remote.BundleOptions{Compress: compress})
	if err != nil {
		return stats, err
	}
	r.log.Debugw("bundle exported", "branches", remote.FormatBranchList(heads), "objects", stats.Objects())
	return stats, nil
}

// ExportBundleFor is ExportBundle for a receiver that advertised haveList.
// Heads this repository does not hold are ignored.
func (r *Repo) ExportBundleFor(w io.Writer, branches []string, haveList string, compress bool) (remote.BundleStats, error) {
	heads, err := remote.ParseBranchList(haveList)
	if err != nil {
		return remote.BundleStats{}, fmt.Errorf("export bundle: %w", err)
	}
	have := make([]object.ID, 0, len(heads))
	for _, id := range heads {
		have = append(have, id)
	}
	return r.ExportBundle(w, branches, have, compress)
}

// ImportBundle stores a bundle's objects in one transaction. With a remote
// name, each advertised branch is recorded as
// refs/remotes/<remoteName>/<branch>.
func (r *Repo) ImportBundle(rd io.Reader, remoteName string) (*remote.Bundle, error) {
	var b *remote.Bundle
	err := r.Update(func(src revtree.Source) error {
		var err error
		b, err = remote.ReadBundle(rd, src.DB)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("import bundle: %w", err)
	}
	for name, id := range b.Branches {
		if ok, err := r.Objects.Exists(id); err != nil {
			return nil, fmt.Errorf("import bundle: %w", err)
		} else if !ok {
			return nil, fmt.Errorf("import bundle: branch %q: head %s: %w", name, id.Short(), object.ErrObjectNotFound)
		}
		if remoteName == "" {
			continue
		}
		ref := RemotePrefix + remoteName + "/" + name
		if err := r.UpdateRef(ref, id, "fetch "+remoteName); err != nil {
			return nil, fmt.Errorf("import bundle: %w", err)
		}
	}
	r.log.Infow("bundle imported", "remote", remoteName, "objects", b.Stats.Objects(), "new", b.Written)
	return b, nil
}

// Fetch copies the branches of the configured remote into this repository.
// The remote is another repository on disk; only objects this repository
// cannot already reach are transferred.
func (r *Repo) Fetch(remoteName string, branches ...string) (*remote.Bundle, error) {
	path, err := r.RemotePath(remoteName)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	peer, err := Open(path, WithLogger(r.log))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}
	defer peer.Close()

	have, err := r.HaveList()
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}
	var buf bytes.Buffer
	if _, err := peer.ExportBundleFor(&buf, branches, have, r.Config.Core.Compress); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", remoteName, err)
	}
	return r.ImportBundle(&buf, remoteName)
}

// Pull fetches branch from the remote and merges its remote-tracking ref
// into the current head with strategy.
func (r *Repo) Pull(remoteName, branch string, strategy MergeStrategy) (*MergeResult, error) {
	if branch == "" {
		current, err := r.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("pull: %w", err)
		}
		if current == "" {
			return nil, fmt.Errorf("pull: HEAD is detached; name a branch")
		}
		branch = current
	}
	if _, err := r.Fetch(remoteName, branch); err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	return r.Merge(MergeOp{
		Branch:  RemotePrefix + remoteName + "/" + branch,
		Comment: fmt.Sprintf("Merge branch '%s' of %s", branch, remoteName),
	}, strategy)
}
