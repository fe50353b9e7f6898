package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/store"
)

// GCSummary reports the outcome of GC.
type GCSummary struct {
	Reachable int
	Removed   int
	// RemovedIDs lists what was (or, in a dry run, would be) deleted.
	RemovedIDs []object.ID
	DryRun     bool
}

// GC deletes every object not reachable from a ref. Roots are all refs,
// including HEAD, ORIG_HEAD and the tree ids in STAGE_HEAD and WORK_HEAD.
// A reachable object that is missing or undecodable aborts the collection
// before anything is deleted.
func (r *Repo) GC(dryRun bool) (*GCSummary, error) {
	raw, err := r.Refs.ListRefs("")
	if err != nil {
		return nil, fmt.Errorf("gc: %w", err)
	}

	var stack []object.ID
	for name, v := range raw {
		if strings.HasPrefix(v, store.SymbolicPrefix) {
			continue
		}
		id, err := object.ParseID(v)
		if err != nil {
			return nil, fmt.Errorf("gc: ref %s: %w", name, err)
		}
		if !id.IsNull() {
			stack = append(stack, id)
		}
	}

	reachable := make(map[object.ID]struct{})
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := reachable[id]; seen {
			continue
		}
		reachable[id] = struct{}{}
		data, err := r.Objects.Get(id)
		if err != nil {
			return nil, fmt.Errorf("gc: mark: %w", err)
		}
		refs, err := r.Codec.References(id, data)
		if err != nil {
			return nil, fmt.Errorf("gc: mark: %w", err)
		}
		for _, ref := range refs {
			if _, seen := reachable[ref]; !seen {
				stack = append(stack, ref)
			}
		}
	}

	summary := &GCSummary{Reachable: len(reachable), DryRun: dryRun}
	err = r.Objects.Walk(func(id object.ID) error {
		if _, ok := reachable[id]; !ok {
			summary.RemovedIDs = append(summary.RemovedIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gc: sweep: %w", err)
	}
	if !dryRun {
		for _, id := range summary.RemovedIDs {
			if _, err := r.Objects.Delete(id); err != nil {
				return nil, fmt.Errorf("gc: sweep: %w", err)
			}
		}
	}
	summary.Removed = len(summary.RemovedIDs)
	r.log.Infow("gc finished", "reachable", summary.Reachable, "removed", summary.Removed, "dry_run", dryRun)
	return summary, nil
}
