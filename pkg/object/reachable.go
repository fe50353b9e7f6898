package object

import "fmt"

// References returns the ids an encoded object points at: a commit's tree
// and parents, a tree's buckets and leaf targets. Features reference nothing.
// Null ids are omitted.
func (c *Codec) References(id ID, data []byte) ([]ID, error) {
	t, err := TypeOf(data)
	if err != nil {
		return nil, fmt.Errorf("references %s: %w", id, err)
	}
	switch t {
	case TypeFeature, TypeTag:
		return nil, nil
	case TypeCommit:
		cm, err := c.DecodeCommit(id, data)
		if err != nil {
			return nil, err
		}
		refs := make([]ID, 0, 1+len(cm.Parents))
		if !cm.TreeID.IsNull() {
			refs = append(refs, cm.TreeID)
		}
		return append(refs, cm.Parents...), nil
	case TypeTree:
		n, err := c.DecodeTree(data)
		if err != nil {
			return nil, fmt.Errorf("references %s: %w", id, err)
		}
		refs := make([]ID, 0, len(n.Buckets)+len(n.Refs))
		for _, b := range n.Buckets {
			refs = append(refs, b.ID)
		}
		for _, r := range n.Refs {
			if !r.ID.IsNull() {
				refs = append(refs, r.ID)
			}
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("references %s: unsupported type %s", id, t)
	}
}
