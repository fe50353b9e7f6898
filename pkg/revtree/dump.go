package revtree

import (
	"fmt"
	"io"
	"strings"
)

// Dump prints the tree structure, one line per bucket and ref, indented by
// depth. maxDepth limits how deep buckets are expanded; negative means no
// limit.
func (t *Tree) Dump(w io.Writer, maxDepth int) error {
	id, clean := t.ID()
	root := "(unwritten)"
	if clean {
		root = id.String()
	}
	kind := "leaf"
	if t.IsInternal() {
		kind = "internal"
	}
	if _, err := fmt.Fprintf(w, "tree %s %s size=%d\n", root, kind, t.Size()); err != nil {
		return err
	}
	return t.Walk(func(e Entry) error {
		_, err := fmt.Fprintf(w, "%s%s %s %s\n", indent(e.Depth+1), e.Ref.Type, e.Ref.ID.Short(), e.Ref.Name)
		return err
	}, func(e Entry) (bool, error) {
		id := "(unwritten)"
		if !e.Bucket.ID.IsNull() {
			id = e.Bucket.ID.Short()
		}
		_, err := fmt.Fprintf(w, "%sbucket %02d %s size=%d\n", indent(e.Depth+1), e.Bucket.Index, id, e.Bucket.Size)
		return maxDepth < 0 || e.Depth < maxDepth, err
	})
}

func indent(n int) string {
	return strings.Repeat("  ", n)
}
