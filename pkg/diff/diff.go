// Package diff compares two persisted RevTrees and reports which named
// entries were added, removed or modified between them.
package diff

import (
	"errors"
	"fmt"
	"iter"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/revtree"
)

// ChangeType classifies what happened to an entry between two trees.
type ChangeType int

const (
	Added    ChangeType = iota // Entry exists only in the new tree.
	Removed                    // Entry exists only in the old tree.
	Modified                   // Entry exists in both trees but points at different content.
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "ADD"
	case Removed:
		return "DELETE"
	case Modified:
		return "MODIFY"
	default:
		return "UNKNOWN"
	}
}

// Change records a single entry-level change between two trees.
type Change struct {
	Path string
	Type ChangeType
	Old  object.Ref // zero for Added.
	New  object.Ref // zero for Removed.
}

// Ref returns the side of the change that still exists: New unless the
// entry was removed.
func (c Change) Ref() object.Ref {
	if c.Type == Removed {
		return c.Old
	}
	return c.New
}

var errStop = errors.New("diff: stop")

// Trees walks the trees stored under oldID and newID in lockstep and yields
// their differences. Sub-trees with equal ids on both sides are skipped
// without being read. Within a leaf, changes come in ascending name order.
// The null id stands for the empty tree. Each call starts a new walk.
func Trees(src revtree.Source, oldID, newID object.ID, filter revtree.Filter) iter.Seq2[Change, error] {
	return func(yield func(Change, error) bool) {
		if oldID == newID {
			return
		}
		w := walker{src: src, filter: filter, yield: yield}
		oldNode, err := src.ReadNode(oldID)
		if err != nil {
			yield(Change{}, err)
			return
		}
		newNode, err := src.ReadNode(newID)
		if err != nil {
			yield(Change{}, err)
			return
		}
		if err := w.nodes(oldNode, newNode, 0); err != nil && !errors.Is(err, errStop) {
			yield(Change{}, err)
		}
	}
}

// Collect drains Trees into a slice.
func Collect(src revtree.Source, oldID, newID object.ID, filter revtree.Filter) ([]Change, error) {
	var out []Change
	for c, err := range Trees(src, oldID, newID, filter) {
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

type walker struct {
	src    revtree.Source
	filter revtree.Filter
	yield  func(Change, error) bool
}

func (w *walker) emit(c Change) error {
	if w.filter != nil && !w.filter(c.Path) {
		return nil
	}
	if !w.yield(c, nil) {
		return errStop
	}
	return nil
}

func (w *walker) nodes(oldNode, newNode *object.TreeNode, depth int) error {
	if !oldNode.IsInternal() && !newNode.IsInternal() {
		return w.leaves(oldNode.Refs, newNode.Refs)
	}
	oldSide, err := partition(oldNode, depth)
	if err != nil {
		return err
	}
	newSide, err := partition(newNode, depth)
	if err != nil {
		return err
	}
	for idx := 0; idx < revtree.NumBuckets; idx++ {
		o, n := oldSide[idx], newSide[idx]
		if o.empty() && n.empty() {
			continue
		}
		if o.bucket && n.bucket && o.id == n.id {
			continue
		}
		on, err := o.node(w.src)
		if err != nil {
			return err
		}
		nn, err := n.node(w.src)
		if err != nil {
			return err
		}
		if err := w.nodes(on, nn, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// leaves merges two name-sorted ref lists.
func (w *walker) leaves(oldRefs, newRefs []object.Ref) error {
	i, j := 0, 0
	for i < len(oldRefs) || j < len(newRefs) {
		switch {
		case j == len(newRefs) || (i < len(oldRefs) && oldRefs[i].Name < newRefs[j].Name):
			if err := w.emit(Change{Path: oldRefs[i].Name, Type: Removed, Old: oldRefs[i]}); err != nil {
				return err
			}
			i++
		case i == len(oldRefs) || newRefs[j].Name < oldRefs[i].Name:
			if err := w.emit(Change{Path: newRefs[j].Name, Type: Added, New: newRefs[j]}); err != nil {
				return err
			}
			j++
		default:
			if oldRefs[i].ID != newRefs[j].ID {
				if err := w.emit(Change{Path: newRefs[j].Name, Type: Modified, Old: oldRefs[i], New: newRefs[j]}); err != nil {
					return err
				}
			}
			i++
			j++
		}
	}
	return nil
}

// side is one tree's content for a bucket slot: a persisted sub-tree, or the
// refs of a leaf that fall into that slot.
type side struct {
	bucket bool
	id     object.ID
	refs   []object.Ref
}

func (s side) empty() bool { return !s.bucket && len(s.refs) == 0 }

func (s side) node(src revtree.Source) (*object.TreeNode, error) {
	if s.bucket {
		return src.ReadNode(s.id)
	}
	return &object.TreeNode{Size: uint64(len(s.refs)), Refs: s.refs}, nil
}

// partition spreads a node over bucket slots. Leaf refs are assigned with
// the same function the tree uses to split, so a leaf lines up with the
// buckets of an internal node on the other side. Sorted order is kept.
func partition(n *object.TreeNode, depth int) ([revtree.NumBuckets]side, error) {
	var out [revtree.NumBuckets]side
	if n.IsInternal() {
		for _, b := range n.Buckets {
			if b.Index >= revtree.NumBuckets {
				return out, fmt.Errorf("diff: %w: bucket index %d", object.ErrCorruptObject, b.Index)
			}
			out[b.Index] = side{bucket: true, id: b.ID}
		}
		return out, nil
	}
	if depth >= revtree.MaxDepth {
		return out, fmt.Errorf("diff: %w: leaf paired with buckets at max depth", object.ErrCorruptObject)
	}
	for _, r := range n.Refs {
		idx := revtree.BucketIndex(r.Name, depth)
		out[idx].refs = append(out[idx].refs, r)
	}
	return out, nil
}

// Summary counts changes by type.
type Summary struct {
	Added    int
	Modified int
	Removed  int
}

// Total is the number of changes counted.
func (s Summary) Total() int {
	return s.Added + s.Modified + s.Removed
}

// Summarize counts changes by type.
func Summarize(changes []Change) Summary {
	var s Summary
	for _, c := range changes {
		switch c.Type {
		case Added:
			s.Added++
		case Modified:
			s.Modified++
		case Removed:
			s.Removed++
		}
	}
	return s
}
