// Package revtree implements RevTree, the self-splitting merkle tree that
// holds one snapshot of named entries.
//
// A node starts as a leaf holding refs directly. Once it holds more than
// SplitFactor refs it becomes an internal node whose entries are spread over
// up to NumBuckets sub-trees by BucketIndex, a pure function of the entry
// name and the node depth. Because the shape depends only on the set of
// names, two trees with the same content always encode to the same bytes
// and share one object id.
//
// Sub-trees are materialized lazily from the object database, and Write
// persists only nodes that changed; untouched sub-trees keep their ids.
package revtree

import (
	"fmt"
	"sort"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/store"
)

const (
	// SplitFactor is the largest number of refs a leaf may hold before it
	// splits.
	SplitFactor = 512
	// NumBuckets is the fan-out of an internal node.
	NumBuckets = 32
	// MaxDepth is the depth at which nodes stop splitting. A SHA-1 digest
	// has 20 bytes, one per level.
	MaxDepth = object.IDSize
)

// BucketIndex returns the bucket that owns name at the given depth.
func BucketIndex(name string, depth int) int {
	h := object.HashString(name)
	return int(h[depth]) % NumBuckets
}

// Source is where trees are read from and written to.
type Source struct {
	DB    store.Objects
	Codec *object.Codec
}

// ReadNode decodes one persisted node. The null id reads as an empty leaf.
func (s Source) ReadNode(id object.ID) (*object.TreeNode, error) {
	if id.IsNull() {
		return &object.TreeNode{}, nil
	}
	data, err := s.DB.Get(id)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id, err)
	}
	n, err := s.Codec.DecodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id, err)
	}
	return n, nil
}

// Tree is one node of a RevTree together with whatever part of its subtree
// has been materialized. It is not safe for concurrent mutation.
type Tree struct {
	src   Source
	depth int

	id    object.ID // persisted id; meaningful only while !dirty
	dirty bool
	size  uint64

	entries map[string]object.Ref // leaf node
	buckets map[int]*bucket       // internal node; nil for leaves
}

// bucket is an internal node's reference to a sub-tree. tree stays nil until
// the sub-tree is first needed.
type bucket struct {
	id   object.ID
	size uint64
	tree *Tree
}

// New returns an empty tree.
func New(src Source) *Tree {
	return newTree(src, 0)
}

func newTree(src Source, depth int) *Tree {
	return &Tree{src: src, depth: depth, dirty: true, entries: make(map[string]object.Ref)}
}

// Load materializes the root node of the tree stored under id. Sub-trees are
// loaded on demand. The null id loads as an empty tree.
func Load(src Source, id object.ID) (*Tree, error) {
	return loadAt(src, id, 0)
}

func loadAt(src Source, id object.ID, depth int) (*Tree, error) {
	if id.IsNull() {
		return newTree(src, depth), nil
	}
	n, err := src.ReadNode(id)
	if err != nil {
		return nil, err
	}
	t := &Tree{src: src, depth: depth, id: id, size: n.Size}
	if n.IsInternal() {
		if depth >= MaxDepth {
			return nil, fmt.Errorf("read tree %s: %w: bucket below max depth", id, object.ErrCorruptObject)
		}
		t.buckets = make(map[int]*bucket, len(n.Buckets))
		for _, b := range n.Buckets {
			if b.Index >= NumBuckets {
				return nil, fmt.Errorf("read tree %s: %w: bucket index %d", id, object.ErrCorruptObject, b.Index)
			}
			t.buckets[b.Index] = &bucket{id: b.ID, size: b.Size}
		}
		return t, nil
	}
	t.entries = make(map[string]object.Ref, len(n.Refs))
	for _, r := range n.Refs {
		t.entries[r.Name] = r
	}
	return t, nil
}

// ID returns the id of the persisted form and whether it is current, that is
// whether the tree is unchanged since it was loaded or last written.
func (t *Tree) ID() (object.ID, bool) {
	return t.id, !t.dirty
}

// Size is the number of refs in the tree. Internal nodes answer from the
// sizes recorded for their buckets without loading them.
func (t *Tree) Size() uint64 {
	return t.size
}

// IsInternal reports whether the root node holds buckets rather than refs.
func (t *Tree) IsInternal() bool {
	return t.buckets != nil
}

// Depth is the node's distance from the root.
func (t *Tree) Depth() int {
	return t.depth
}

func (t *Tree) child(index int) (*Tree, error) {
	b := t.buckets[index]
	if b.tree != nil {
		return b.tree, nil
	}
	c, err := loadAt(t.src, b.id, t.depth+1)
	if err != nil {
		return nil, err
	}
	if c.size != b.size {
		return nil, fmt.Errorf("read tree %s: %w: size %d, parent recorded %d", b.id, object.ErrCorruptObject, c.size, b.size)
	}
	b.tree = c
	return c, nil
}

// Get looks up a ref by name.
func (t *Tree) Get(name string) (object.Ref, bool, error) {
	for node := t; ; {
		if node.buckets == nil {
			r, ok := node.entries[name]
			return r, ok, nil
		}
		idx := BucketIndex(name, node.depth)
		if _, ok := node.buckets[idx]; !ok {
			return object.Ref{}, false, nil
		}
		c, err := node.child(idx)
		if err != nil {
			return object.Ref{}, false, err
		}
		node = c
	}
}

// Put adds ref or replaces the ref with the same name. A leaf that grows past
// SplitFactor splits into buckets.
func (t *Tree) Put(ref object.Ref) error {
	if ref.Name == "" {
		return fmt.Errorf("tree put: empty name")
	}
	if t.buckets != nil {
		idx := BucketIndex(ref.Name, t.depth)
		b, ok := t.buckets[idx]
		if !ok {
			b = &bucket{tree: newTree(t.src, t.depth+1)}
			t.buckets[idx] = b
		}
		c, err := t.child(idx)
		if err != nil {
			return err
		}
		if err := c.Put(ref); err != nil {
			return err
		}
		if c.dirty {
			t.size = t.size - b.size + c.size
			b.size = c.size
			t.dirty = true
		}
		return nil
	}

	if old, ok := t.entries[ref.Name]; ok && old.Equal(ref) {
		return nil
	}
	t.entries[ref.Name] = ref
	t.size = uint64(len(t.entries))
	t.dirty = true
	if len(t.entries) > SplitFactor && t.depth < MaxDepth {
		t.split()
	}
	return nil
}

// Remove deletes name and reports whether it was present. Internal nodes are
// never turned back into leaves here; Normalize does that.
func (t *Tree) Remove(name string) (bool, error) {
	if t.buckets == nil {
		if _, ok := t.entries[name]; !ok {
			return false, nil
		}
		delete(t.entries, name)
		t.size = uint64(len(t.entries))
		t.dirty = true
		return true, nil
	}
	idx := BucketIndex(name, t.depth)
	b, ok := t.buckets[idx]
	if !ok {
		return false, nil
	}
	c, err := t.child(idx)
	if err != nil {
		return false, err
	}
	removed, err := c.Remove(name)
	if err != nil || !removed {
		return false, err
	}
	t.size = t.size - b.size + c.size
	b.size = c.size
	t.dirty = true
	return true, nil
}

// split turns a leaf into an internal node. Children that are themselves
// oversized split recursively.
func (t *Tree) split() {
	groups := make(map[int]map[string]object.Ref)
	for name, r := range t.entries {
		idx := BucketIndex(name, t.depth)
		g := groups[idx]
		if g == nil {
			g = make(map[string]object.Ref)
			groups[idx] = g
		}
		g[name] = r
	}
	t.entries = nil
	t.buckets = make(map[int]*bucket, len(groups))
	for idx, g := range groups {
		c := newTree(t.src, t.depth+1)
		c.entries = g
		c.size = uint64(len(g))
		if len(g) > SplitFactor && c.depth < MaxDepth {
			c.split()
		}
		t.buckets[idx] = &bucket{size: c.size, tree: c}
	}
	t.dirty = true
}

// Normalize brings the tree into the canonical shape for its current set of
// names: internal nodes holding SplitFactor refs or fewer collapse into
// leaves, empty buckets are dropped and oversized leaves split. Unchanged
// persisted sub-trees are already canonical and are not visited.
func (t *Tree) Normalize() error {
	if !t.dirty {
		return nil
	}
	if t.buckets == nil {
		if len(t.entries) > SplitFactor && t.depth < MaxDepth {
			t.split()
		}
		return nil
	}
	if t.size <= SplitFactor {
		entries := make(map[string]object.Ref, t.size)
		if err := t.collect(entries); err != nil {
			return err
		}
		t.buckets = nil
		t.entries = entries
		t.size = uint64(len(entries))
		return nil
	}
	for idx, b := range t.buckets {
		if b.size == 0 {
			delete(t.buckets, idx)
			continue
		}
		if b.tree != nil {
			if err := b.tree.Normalize(); err != nil {
				return err
			}
		}
	}
	return nil
}

// collect gathers every ref below t into out.
func (t *Tree) collect(out map[string]object.Ref) error {
	if t.buckets == nil {
		for name, r := range t.entries {
			out[name] = r
		}
		return nil
	}
	for idx := range t.buckets {
		c, err := t.child(idx)
		if err != nil {
			return err
		}
		if err := c.collect(out); err != nil {
			return err
		}
	}
	return nil
}

// Write normalizes the tree and persists every changed node bottom-up,
// returning the root id. Sub-trees that did not change keep their ids and
// are not rewritten.
func (t *Tree) Write() (object.ID, error) {
	if err := t.Normalize(); err != nil {
		return object.NullID, err
	}
	return t.persist()
}

func (t *Tree) persist() (object.ID, error) {
	if !t.dirty {
		return t.id, nil
	}
	node := &object.TreeNode{Size: t.size}
	if t.buckets != nil {
		for _, idx := range t.bucketIndexes() {
			b := t.buckets[idx]
			if b.tree != nil && b.tree.dirty {
				id, err := b.tree.persist()
				if err != nil {
					return object.NullID, err
				}
				b.id = id
			}
			node.Buckets = append(node.Buckets, object.Bucket{Index: idx, ID: b.id, Size: b.size})
		}
	} else {
		node.Refs = t.sortedRefs()
	}
	data, err := t.src.Codec.EncodeTree(node)
	if err != nil {
		return object.NullID, err
	}
	id, _, err := store.WriteObject(t.src.DB, data)
	if err != nil {
		return object.NullID, err
	}
	t.id = id
	t.dirty = false
	return id, nil
}

func (t *Tree) bucketIndexes() []int {
	idxs := make([]int, 0, len(t.buckets))
	for idx := range t.buckets {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	return idxs
}

func (t *Tree) sortedRefs() []object.Ref {
	refs := make([]object.Ref, 0, len(t.entries))
	for _, r := range t.entries {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs
}
