package revtree

import (
	"errors"
	"iter"
	"sort"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
)

// EntryKind tags the variant held by an Entry.
type EntryKind uint8

const (
	EntryLeaf EntryKind = iota + 1
	EntryBucket
)

// Entry is one step of a traversal: either a leaf ref or a bucket reference.
// Depth is the depth of the node holding the entry.
type Entry struct {
	Kind   EntryKind
	Depth  int
	Ref    object.Ref    // EntryLeaf
	Bucket object.Bucket // EntryBucket; ID is null for sub-trees not yet written
}

// Walk visits the tree depth-first in ascending bucket order, and in
// ascending name order within a leaf. onBucket decides whether the bucket's
// sub-tree is descended into; a nil onBucket descends everywhere. A nil
// onLeaf skips leaf callbacks.
func (t *Tree) Walk(onLeaf func(Entry) error, onBucket func(Entry) (bool, error)) error {
	if t.buckets == nil {
		if onLeaf == nil {
			return nil
		}
		for _, r := range t.sortedRefs() {
			if err := onLeaf(Entry{Kind: EntryLeaf, Depth: t.depth, Ref: r}); err != nil {
				return err
			}
		}
		return nil
	}
	for _, idx := range t.bucketIndexes() {
		b := t.buckets[idx]
		descend := true
		if onBucket != nil {
			id := b.id
			if b.tree != nil && b.tree.dirty {
				id = object.NullID
			}
			var err error
			descend, err = onBucket(Entry{
				Kind:   EntryBucket,
				Depth:  t.depth,
				Bucket: object.Bucket{Index: idx, ID: id, Size: b.size},
			})
			if err != nil {
				return err
			}
		}
		if !descend {
			continue
		}
		c, err := t.child(idx)
		if err != nil {
			return err
		}
		if err := c.Walk(onLeaf, onBucket); err != nil {
			return err
		}
	}
	return nil
}

// Filter selects entries by name. A nil Filter selects everything.
type Filter func(name string) bool

// PrefixFilter selects names starting with any of the prefixes. With no
// prefixes it selects everything.
func PrefixFilter(prefixes ...string) Filter {
	if len(prefixes) == 0 {
		return nil
	}
	ps := append([]string(nil), prefixes...)
	sort.Strings(ps)
	return func(name string) bool {
		for _, p := range ps {
			if strings.HasPrefix(name, p) {
				return true
			}
		}
		return false
	}
}

var errStopIteration = errors.New("stop iteration")

// Iterate yields the tree's refs in Walk order. Each call starts a fresh
// traversal. Mutating the tree while iterating is not supported.
func (t *Tree) Iterate(filter Filter) iter.Seq2[object.Ref, error] {
	return func(yield func(object.Ref, error) bool) {
		err := t.Walk(func(e Entry) error {
			if filter != nil && !filter(e.Ref.Name) {
				return nil
			}
			if !yield(e.Ref, nil) {
				return errStopIteration
			}
			return nil
		}, nil)
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(object.Ref{}, err)
		}
	}
}

// Refs collects Iterate into a slice.
func (t *Tree) Refs(filter Filter) ([]object.Ref, error) {
	var out []object.Ref
	for r, err := range t.Iterate(filter) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
