package object

import (
	"fmt"
	"math"
)

// Type is the leading tag byte of every encoded object. Refs reuse it to say
// what kind of object they point at.
type Type byte

const (
	TypeCommit  Type = 0x01
	TypeTree    Type = 0x02
	TypeFeature Type = 0x03 // opaque record blob
	TypeTag     Type = 0x04
)

func (t Type) String() string {
	switch t {
	case TypeCommit:
		return "commit"
	case TypeTree:
		return "tree"
	case TypeFeature:
		return "feature"
	case TypeTag:
		return "tag"
	default:
		return fmt.Sprintf("type(0x%02x)", byte(t))
	}
}

// Valid reports whether t is one of the known object types.
func (t Type) Valid() bool {
	return t >= TypeCommit && t <= TypeTag
}

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// Valid reports whether no coordinate is NaN and the box is not inverted.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.MinX, b.MaxX, b.MinY, b.MaxY} {
		if math.IsNaN(v) {
			return false
		}
	}
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// Expand returns the smallest box covering b and o.
func (b Bounds) Expand(o Bounds) Bounds {
	return Bounds{
		MinX: math.Min(b.MinX, o.MinX),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// Intersects reports whether the two boxes overlap (edges included).
func (b Bounds) Intersects(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

// Ref is a named pointer to an object. Tree leaves are Refs. Bounds and CRS
// are the spatial extension; nil Bounds and empty CRS mean "not spatial".
type Ref struct {
	Name   string
	ID     ID
	Type   Type
	Bounds *Bounds
	CRS    string
}

// Equal compares every field, including bounds.
func (r Ref) Equal(o Ref) bool {
	if r.Name != o.Name || r.ID != o.ID || r.Type != o.Type || r.CRS != o.CRS {
		return false
	}
	if (r.Bounds == nil) != (o.Bounds == nil) {
		return false
	}
	return r.Bounds == nil || *r.Bounds == *o.Bounds
}

// Bucket references a persisted sub-tree of an internal tree node together
// with the sub-tree's leaf count.
type Bucket struct {
	Index int
	ID    ID
	Size  uint64
}

// TreeNode is the serializable form of one RevTree node. Exactly one of Refs
// or Buckets is populated; an empty tree has neither.
type TreeNode struct {
	Size    uint64
	Refs    []Ref    // ascending by Name
	Buckets []Bucket // ascending by Index
}

// IsInternal reports whether the node holds bucket references.
func (n *TreeNode) IsInternal() bool {
	return len(n.Buckets) > 0
}

// Commit is a snapshot in history. Parents[0] is the primary ancestor; a root
// commit has no parents.
type Commit struct {
	ID        ID
	TreeID    ID
	Parents   []ID
	Author    string
	Committer string
	Timestamp int64 // unix milliseconds
	Message   string
}

// IsRoot reports whether the commit starts a history.
func (c *Commit) IsRoot() bool {
	return len(c.Parents) == 0
}

// FirstParent returns the primary ancestor, or NullID for a root commit.
func (c *Commit) FirstParent() ID {
	if len(c.Parents) == 0 {
		return NullID
	}
	return c.Parents[0]
}

// Record is an opaque versioned payload (a feature). Only its codec knows
// the layout.
type Record interface{}
