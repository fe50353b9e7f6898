package repo

import (
	"errors"
	"fmt"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/feature"
	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/revtree"
	"github.com/odvcencio/geogot/pkg/store"
)

// FeatureInput is one feature to write into the working tree. CRS is an
// identifier such as "EPSG:4326" and may be empty.
type FeatureInput struct {
	Name    string
	Feature *feature.Feature
	CRS     string
}

// treeRef reads a ref holding a tree id. An absent ref yields fallback.
func (r *Repo) treeRef(name string, fallback func() (object.ID, error)) (object.ID, error) {
	v, err := r.Refs.ReadRef(name)
	if errors.Is(err, store.ErrRefNotFound) {
		return fallback()
	}
	if err != nil {
		return object.NullID, err
	}
	id, err := object.ParseID(v)
	if err != nil {
		return object.NullID, fmt.Errorf("%s: %w", name, err)
	}
	return id, nil
}

// HeadTree returns the tree of the HEAD commit, or the null id on an unborn
// branch.
func (r *Repo) HeadTree() (object.ID, error) {
	head, err := r.HeadCommit()
	if err != nil {
		return object.NullID, err
	}
	return r.commitTree(head)
}

func (r *Repo) commitTree(id object.ID) (object.ID, error) {
	if id.IsNull() {
		return object.NullID, nil
	}
	c, err := r.GetCommit(id)
	if err != nil {
		return object.NullID, err
	}
	return c.TreeID, nil
}

// StageTree returns the staged tree. Without STAGE_HEAD it is HEAD's tree.
func (r *Repo) StageTree() (object.ID, error) {
	return r.treeRef(StageHeadRef, r.HeadTree)
}

// WorkTree returns the working tree. Without WORK_HEAD it is the staged
// tree.
func (r *Repo) WorkTree() (object.ID, error) {
	return r.treeRef(WorkHeadRef, r.StageTree)
}

// setWorkspace points STAGE_HEAD and WORK_HEAD at the given trees.
func (r *Repo) setWorkspace(stage, work object.ID, reason string) error {
	if err := r.UpdateRef(StageHeadRef, stage, reason); err != nil {
		return fmt.Errorf("update %s: %w", StageHeadRef, err)
	}
	if err := r.UpdateRef(WorkHeadRef, work, reason); err != nil {
		return fmt.Errorf("update %s: %w", WorkHeadRef, err)
	}
	return nil
}

// Insert writes each feature as a blob and puts a ref to it into the
// working tree, replacing any feature of the same name. The tree and blobs
// are written in one transaction.
func (r *Repo) Insert(inputs ...FeatureInput) (object.ID, error) {
	workID, err := r.WorkTree()
	if err != nil {
		return object.NullID, fmt.Errorf("insert: %w", err)
	}
	var newID object.ID
	err = r.Update(func(src revtree.Source) error {
		t, err := revtree.Load(src, workID)
		if err != nil {
			return err
		}
		for _, in := range inputs {
			ref, err := r.writeFeature(src, in)
			if err != nil {
				return err
			}
			if err := t.Put(ref); err != nil {
				return err
			}
		}
		newID, err = t.Write()
		return err
	})
	if err != nil {
		return object.NullID, fmt.Errorf("insert: %w", err)
	}
	if err := r.UpdateRef(WorkHeadRef, newID, "insert"); err != nil {
		return object.NullID, fmt.Errorf("insert: %w", err)
	}
	r.log.Debugw("features inserted", "count", len(inputs), "tree", newID.Short())
	return newID, nil
}

func (r *Repo) writeFeature(src revtree.Source, in FeatureInput) (object.Ref, error) {
	if in.Name == "" {
		return object.Ref{}, fmt.Errorf("feature name is empty")
	}
	if in.Feature == nil {
		return object.Ref{}, fmt.Errorf("feature %q: no content", in.Name)
	}
	crs := ""
	if in.CRS != "" {
		resolved, err := r.Codec.ResolveCRS(in.CRS)
		if err != nil {
			return object.Ref{}, fmt.Errorf("feature %q: %w", in.Name, err)
		}
		crs = resolved.Identifier()
	}
	data, err := r.Codec.EncodeRecord(in.Feature)
	if err != nil {
		return object.Ref{}, fmt.Errorf("feature %q: %w", in.Name, err)
	}
	id, _, err := store.WriteObject(src.DB, data)
	if err != nil {
		return object.Ref{}, err
	}
	return object.Ref{
		Name:   in.Name,
		ID:     id,
		Type:   object.TypeFeature,
		Bounds: in.Feature.Bounds(),
		CRS:    crs,
	}, nil
}

// Delete removes the named features from the working tree and reports how
// many were present.
func (r *Repo) Delete(names ...string) (int, error) {
	workID, err := r.WorkTree()
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	removed := 0
	var newID object.ID
	err = r.Update(func(src revtree.Source) error {
		t, err := revtree.Load(src, workID)
		if err != nil {
			return err
		}
		for _, name := range names {
			ok, err := t.Remove(name)
			if err != nil {
				return err
			}
			if ok {
				removed++
			}
		}
		newID, err = t.Write()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := r.UpdateRef(WorkHeadRef, newID, "delete"); err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return removed, nil
}

// Stage folds the working-tree changes accepted by filter (nil accepts all)
// into the staged tree and returns how many changes were staged.
func (r *Repo) Stage(filter revtree.Filter) (int, error) {
	stageID, err := r.StageTree()
	if err != nil {
		return 0, fmt.Errorf("stage: %w", err)
	}
	workID, err := r.WorkTree()
	if err != nil {
		return 0, fmt.Errorf("stage: %w", err)
	}
	var (
		n     int
		newID object.ID
	)
	err = r.Update(func(src revtree.Source) error {
		changes, err := diff.Collect(src, stageID, workID, filter)
		if err != nil {
			return err
		}
		n = len(changes)
		if n == 0 {
			return nil
		}
		t, err := revtree.Load(src, stageID)
		if err != nil {
			return err
		}
		if err := applyChanges(t, changes); err != nil {
			return err
		}
		newID, err = t.Write()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("stage: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := r.UpdateRef(StageHeadRef, newID, "stage"); err != nil {
		return 0, fmt.Errorf("stage: %w", err)
	}
	r.log.Debugw("changes staged", "count", n, "tree", newID.Short())
	return n, nil
}

// Unstage resets the staged entries accepted by filter back to HEAD's tree.
// The working tree is left alone.
func (r *Repo) Unstage(filter revtree.Filter) (int, error) {
	headID, err := r.HeadTree()
	if err != nil {
		return 0, fmt.Errorf("unstage: %w", err)
	}
	stageID, err := r.StageTree()
	if err != nil {
		return 0, fmt.Errorf("unstage: %w", err)
	}
	var (
		n     int
		newID object.ID
	)
	err = r.Update(func(src revtree.Source) error {
		changes, err := diff.Collect(src, stageID, headID, filter)
		if err != nil {
			return err
		}
		n = len(changes)
		if n == 0 {
			return nil
		}
		t, err := revtree.Load(src, stageID)
		if err != nil {
			return err
		}
		if err := applyChanges(t, changes); err != nil {
			return err
		}
		newID, err = t.Write()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("unstage: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := r.UpdateRef(StageHeadRef, newID, "unstage"); err != nil {
		return 0, fmt.Errorf("unstage: %w", err)
	}
	return n, nil
}

// applyChanges makes t reflect the new side of each change.
func applyChanges(t *revtree.Tree, changes []diff.Change) error {
	for _, c := range changes {
		if c.Type == diff.Removed {
			if _, err := t.Remove(c.Path); err != nil {
				return err
			}
			continue
		}
		if err := t.Put(c.New); err != nil {
			return err
		}
	}
	return nil
}

// GetFeature reads the feature stored under name in the given tree.
func (r *Repo) GetFeature(treeID object.ID, name string) (*feature.Feature, object.Ref, error) {
	t, err := revtree.Load(r.Source(), treeID)
	if err != nil {
		return nil, object.Ref{}, fmt.Errorf("get feature %q: %w", name, err)
	}
	ref, ok, err := t.Get(name)
	if err != nil {
		return nil, object.Ref{}, fmt.Errorf("get feature %q: %w", name, err)
	}
	if !ok {
		return nil, object.Ref{}, fmt.Errorf("get feature %q: %w", name, object.ErrObjectNotFound)
	}
	f, err := r.ReadFeature(ref.ID)
	if err != nil {
		return nil, object.Ref{}, fmt.Errorf("get feature %q: %w", name, err)
	}
	return f, ref, nil
}

// ReadFeature decodes the feature blob id.
func (r *Repo) ReadFeature(id object.ID) (*feature.Feature, error) {
	data, err := r.Objects.Get(id)
	if err != nil {
		return nil, err
	}
	rec, err := r.Codec.DecodeRecord(id, data)
	if err != nil {
		return nil, err
	}
	f, ok := rec.(*feature.Feature)
	if !ok {
		return nil, fmt.Errorf("read feature %s: %w: unexpected record %T", id.Short(), object.ErrCorruptObject, rec)
	}
	return f, nil
}
