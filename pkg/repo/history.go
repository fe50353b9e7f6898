package repo

import (
	"errors"
	"fmt"
	"iter"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/store"
)

// GetCommit reads and decodes the commit stored under id. A missing id fails
// with object.ErrObjectNotFound; undecodable bytes with
// object.ErrCorruptObject.
func (r *Repo) GetCommit(id object.ID) (*object.Commit, error) {
	data, err := r.Objects.Get(id)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", id.Short(), err)
	}
	c, err := r.Codec.DecodeCommit(id, data)
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", id.Short(), err)
	}
	return c, nil
}

// WriteCommit stores c and returns its id. c.ID is set on success.
func (r *Repo) WriteCommit(c *object.Commit) (object.ID, error) {
	return r.writeCommit(r.Objects, c)
}

func (r *Repo) writeCommit(objs store.Objects, c *object.Commit) (object.ID, error) {
	id, _, err := store.WriteObject(objs, r.Codec.EncodeCommit(c))
	if err != nil {
		return object.NullID, fmt.Errorf("write commit: %w", err)
	}
	c.ID = id
	return id, nil
}

// historyCommit reads a commit reached by following a parent link. Any
// failure other than storage I/O is history corruption.
func (r *Repo) historyCommit(id, child object.ID) (*object.Commit, error) {
	c, err := r.GetCommit(id)
	if err == nil {
		return c, nil
	}
	switch {
	case errors.Is(err, object.ErrCorruptObject):
		return nil, &CorruptHistoryError{Commit: id, Reason: "undecodable commit", Err: err}
	case errors.Is(err, object.ErrObjectNotFound) && !child.IsNull():
		return nil, &CorruptHistoryError{Commit: child, Reason: "parent " + id.Short() + " does not resolve", Err: err}
	default:
		return nil, err
	}
}

// LinearHistory yields tip and its first-parent ancestors, newest first,
// ending at the root commit. Each call walks afresh. A tip that does not
// exist yields object.ErrObjectNotFound; a broken chain below it yields
// ErrCorruptHistory.
func (r *Repo) LinearHistory(tip object.ID) iter.Seq2[*object.Commit, error] {
	return func(yield func(*object.Commit, error) bool) {
		child := object.NullID
		for cur := tip; !cur.IsNull(); {
			c, err := r.historyCommit(cur, child)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(c, nil) {
				return
			}
			child, cur = cur, c.FirstParent()
		}
	}
}

// Log returns up to limit commits of the first-parent history of start,
// newest first. limit <= 0 means no limit.
func (r *Repo) Log(start object.ID, limit int) ([]*object.Commit, error) {
	var commits []*object.Commit
	for c, err := range r.LinearHistory(start) {
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
		commits = append(commits, c)
		if limit > 0 && len(commits) >= limit {
			break
		}
	}
	return commits, nil
}

// FindBranchSplit finds where branchTip's history joins head's first-parent
// history. It walks branchTip's ancestors breadth-first, first parents
// before other parents, and returns the first one found in head's linear
// history (head included). The null id means the histories share nothing.
func (r *Repo) FindBranchSplit(branchTip, head object.ID) (object.ID, error) {
	if branchTip.IsNull() || head.IsNull() {
		return object.NullID, nil
	}
	onHead := make(map[object.ID]struct{})
	for c, err := range r.LinearHistory(head) {
		if err != nil {
			return object.NullID, fmt.Errorf("find branch split: %w", err)
		}
		onHead[c.ID] = struct{}{}
	}

	maxSteps, maxDepth := traversalLimits()
	state := r.getTraversalState()
	visited := map[object.ID]struct{}{branchTip: {}}
	queue := []traversalQueueItem{{id: branchTip}}
	steps := 0
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxSteps {
			return object.NullID, traversalStepsLimitError("find branch split", maxSteps)
		}
		if _, ok := onHead[item.id]; ok {
			return item.id, nil
		}
		c, err := state.readCommit(r, item.id, item.child)
		if err != nil {
			return object.NullID, fmt.Errorf("find branch split: %w", err)
		}
		for _, p := range c.Parents {
			if _, seen := visited[p]; seen {
				continue
			}
			if item.depth+1 > maxDepth {
				return object.NullID, traversalDepthLimitError("find branch split", maxDepth)
			}
			visited[p] = struct{}{}
			queue = append(queue, traversalQueueItem{id: p, child: item.id, depth: item.depth + 1})
		}
	}
	return object.NullID, nil
}
