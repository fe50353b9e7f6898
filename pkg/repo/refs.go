package repo

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/store"
)

// maxSymrefDepth bounds chains of symbolic refs.
const maxSymrefDepth = 5

// Head reads HEAD. A symbolic HEAD returns the target ref name (e.g.
// "refs/heads/main") and symbolic=true; a detached HEAD returns the raw id.
func (r *Repo) Head() (target string, symbolic bool, err error) {
	v, err := r.Refs.ReadRef(HeadRef)
	if err != nil {
		return "", false, fmt.Errorf("head: %w", err)
	}
	if strings.HasPrefix(v, store.SymbolicPrefix) {
		return strings.TrimPrefix(v, store.SymbolicPrefix), true, nil
	}
	return v, false, nil
}

// ResolveRef resolves a ref name to an object id.
//
// Resolution order:
//  1. "HEAD" and the other upper-case pseudo refs are read directly and
//     symbolic values are followed.
//  2. Names starting with "refs/" are read as-is.
//  3. Otherwise "refs/heads/<name>", then "refs/tags/<name>", then
//     "refs/remotes/<name>" are tried.
//
// A missing ref fails with store.ErrRefNotFound.
func (r *Repo) ResolveRef(name string) (object.ID, error) {
	for _, candidate := range refCandidates(name) {
		id, err := r.readRefID(candidate, 0)
		if errors.Is(err, store.ErrRefNotFound) {
			continue
		}
		return id, err
	}
	return object.NullID, fmt.Errorf("resolve ref %q: %w", name, store.ErrRefNotFound)
}

func refCandidates(name string) []string {
	if strings.HasPrefix(name, "refs/") || isPseudoRef(name) {
		return []string{name}
	}
	return []string{BranchPrefix + name, TagPrefix + name, RemotePrefix + name}
}

func isPseudoRef(name string) bool {
	return name != "" && strings.ToUpper(name) == name && !strings.ContainsAny(name, "/.~^")
}

func (r *Repo) readRefID(name string, depth int) (object.ID, error) {
	if depth > maxSymrefDepth {
		return object.NullID, fmt.Errorf("resolve ref %q: symbolic ref chain too deep", name)
	}
	v, err := r.Refs.ReadRef(name)
	if err != nil {
		return object.NullID, err
	}
	if strings.HasPrefix(v, store.SymbolicPrefix) {
		return r.readRefID(strings.TrimPrefix(v, store.SymbolicPrefix), depth+1)
	}
	id, err := object.ParseID(v)
	if err != nil {
		return object.NullID, fmt.Errorf("resolve ref %q: %w", name, err)
	}
	return id, nil
}

// HeadCommit returns the commit HEAD points at, or the null id when the
// current branch has no commits yet.
func (r *Repo) HeadCommit() (object.ID, error) {
	id, err := r.readRefID(HeadRef, 0)
	if errors.Is(err, store.ErrRefNotFound) {
		return object.NullID, nil
	}
	if err != nil {
		return object.NullID, fmt.Errorf("head commit: %w", err)
	}
	return id, nil
}

// headRefName returns the ref a new commit moves: the branch HEAD names, or
// HEAD itself when detached.
func (r *Repo) headRefName() (string, error) {
	target, symbolic, err := r.Head()
	if err != nil {
		return "", err
	}
	if symbolic {
		return target, nil
	}
	return HeadRef, nil
}

// UpdateRef points name at id unconditionally.
func (r *Repo) UpdateRef(name string, id object.ID, reason string) error {
	if err := r.Refs.SetRef(name, id.String(), reason); err != nil {
		return err
	}
	r.log.Debugw("ref updated", "ref", name, "id", id.String(), "reason", reason)
	return nil
}

// UpdateRefCAS points name at id only if it currently holds old. A null old
// requires the ref to be absent.
func (r *Repo) UpdateRefCAS(name string, id, old object.ID, reason string) error {
	oldValue := ""
	if !old.IsNull() {
		oldValue = old.String()
	}
	if err := r.Refs.CompareAndSwapRef(name, oldValue, id.String(), reason); err != nil {
		return err
	}
	r.log.Debugw("ref updated", "ref", name, "old", oldValue, "id", id.String(), "reason", reason)
	return nil
}

// moveHead advances whatever HEAD points at from old to id.
func (r *Repo) moveHead(id, old object.ID, reason string) error {
	name, err := r.headRefName()
	if err != nil {
		return err
	}
	if err := r.UpdateRefCAS(name, id, old, reason); err != nil {
		return fmt.Errorf("update %s: %w", name, err)
	}
	return nil
}

// ListRefs lists refs whose names start with prefix, resolved to ids.
// Symbolic refs are skipped.
func (r *Repo) ListRefs(prefix string) (map[string]object.ID, error) {
	raw, err := r.Refs.ListRefs(prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]object.ID, len(raw))
	for name, v := range raw {
		if strings.HasPrefix(v, store.SymbolicPrefix) {
			continue
		}
		id, err := object.ParseID(v)
		if err != nil {
			return nil, fmt.Errorf("list refs: %s: %w", name, err)
		}
		out[name] = id
	}
	return out, nil
}

// ResolveRevision turns a revision string into a commit or object id. It
// accepts ref names (see ResolveRef), full ids, abbreviated ids of at least
// store.MinPrefixLength characters, and first-parent suffixes: "~N" and
// "^" (one step).
func (r *Repo) ResolveRevision(rev string) (object.ID, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		return object.NullID, fmt.Errorf("resolve revision: %w: empty", ErrUnknownRevision)
	}
	base, steps, err := splitAncestry(rev)
	if err != nil {
		return object.NullID, err
	}

	id, err := r.resolveBase(base)
	if err != nil {
		return object.NullID, err
	}
	for i := 0; i < steps; i++ {
		c, err := r.GetCommit(id)
		if err != nil {
			return object.NullID, fmt.Errorf("resolve revision %q: %w", rev, err)
		}
		if c.IsRoot() {
			return object.NullID, fmt.Errorf("resolve revision %q: %w: history ends at %s", rev, ErrUnknownRevision, c.ID.Short())
		}
		id = c.FirstParent()
	}
	return id, nil
}

func (r *Repo) resolveBase(base string) (object.ID, error) {
	id, err := r.ResolveRef(base)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, store.ErrRefNotFound) {
		return object.NullID, err
	}
	if len(base) == object.IDSize*2 {
		if id, perr := object.ParseID(base); perr == nil {
			if ok, err := r.Objects.Exists(id); err != nil {
				return object.NullID, err
			} else if ok {
				return id, nil
			}
		}
	}
	if isHex(base) && len(base) >= store.MinPrefixLength {
		id, err := store.ResolvePrefix(r.Objects, base)
		if err == nil || errors.Is(err, object.ErrAmbiguousID) {
			return id, err
		}
	}
	return object.NullID, fmt.Errorf("resolve revision %q: %w", base, ErrUnknownRevision)
}

// splitAncestry peels "~N", "~" and "^" suffixes off rev.
func splitAncestry(rev string) (string, int, error) {
	steps := 0
	for {
		switch {
		case strings.HasSuffix(rev, "^"):
			rev = rev[:len(rev)-1]
			steps++
			continue
		case strings.HasSuffix(rev, "~"):
			rev = rev[:len(rev)-1]
			steps++
			continue
		}
		i := strings.LastIndexByte(rev, '~')
		if i <= 0 {
			break
		}
		n, err := strconv.Atoi(rev[i+1:])
		if err != nil || n < 0 {
			return "", 0, fmt.Errorf("resolve revision %q: %w: bad ancestry suffix", rev, ErrUnknownRevision)
		}
		rev = rev[:i]
		steps += n
	}
	if rev == "" {
		return "", 0, fmt.Errorf("resolve revision: %w: missing base", ErrUnknownRevision)
	}
	return rev, steps, nil
}

func isHex(s string) bool {
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return s != ""
}

func sortedNames(m map[string]object.ID, trim string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, strings.TrimPrefix(name, trim))
	}
	sort.Strings(names)
	return names
}
