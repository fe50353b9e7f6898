package repo

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/odvcencio/geogot/pkg/object"
)

const (
	maxTraversalSteps = 1_000_000
	maxTraversalDepth = 1_000_000
)

// These vars allow tests to tighten safety limits without affecting
// production defaults.
var (
	traversalStepsLimit = maxTraversalSteps
	traversalDepthLimit = maxTraversalDepth
)

type traversalQueueItem struct {
	id    object.ID
	child object.ID // commit whose parent link led here
	depth int
}

func traversalLimits() (maxSteps int, maxDepth int) {
	maxSteps = normalizeTraversalLimit(traversalStepsLimit, maxTraversalSteps)
	maxDepth = normalizeTraversalLimit(traversalDepthLimit, maxTraversalDepth)
	return maxSteps, maxDepth
}

func normalizeTraversalLimit(limit, hardMax int) int {
	// Keep safety defaults as hard bounds; test hooks may only tighten.
	if limit <= 0 || limit > hardMax {
		return hardMax
	}
	return limit
}

func traversalStepsLimitError(op string, limit int) error {
	return fmt.Errorf("%s: traversal exceeded maximum steps (%d)", op, limit)
}

func traversalDepthLimitError(op string, limit int) error {
	return fmt.Errorf("%s: traversal exceeded maximum depth (%d)", op, limit)
}

// traversalState caches decoded commits and generation numbers across
// ancestry queries. Commits are immutable, so entries never go stale.
type traversalState struct {
	mu sync.RWMutex

	commits     map[object.ID]*object.Commit
	generations map[object.ID]uint64
}

func newTraversalState() *traversalState {
	return &traversalState{
		commits:     make(map[object.ID]*object.Commit),
		generations: make(map[object.ID]uint64),
	}
}

func (s *traversalState) readCommit(r *Repo, id, child object.ID) (*object.Commit, error) {
	s.mu.RLock()
	cached, ok := s.commits[id]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	c, err := r.historyCommit(id, child)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, exists := s.commits[id]; exists {
		s.mu.Unlock()
		return existing, nil
	}
	s.commits[id] = c
	s.mu.Unlock()
	return c, nil
}

func (s *traversalState) loadGeneration(id object.ID) (uint64, bool) {
	s.mu.RLock()
	g, ok := s.generations[id]
	s.mu.RUnlock()
	return g, ok
}

func (s *traversalState) storeGeneration(id object.ID, g uint64) {
	s.mu.Lock()
	s.generations[id] = g
	s.mu.Unlock()
}

func (s *traversalState) generationCacheSize() int {
	s.mu.RLock()
	n := len(s.generations)
	s.mu.RUnlock()
	return n
}

// generation is 1 for a root commit and one more than the largest parent
// generation otherwise. It is computed with an explicit stack so long
// histories cannot exhaust the goroutine stack.
func (s *traversalState) generation(r *Repo, id object.ID) (uint64, error) {
	if id.IsNull() {
		return 0, nil
	}
	if g, ok := s.loadGeneration(id); ok {
		return g, nil
	}

	type frame struct {
		id, child object.ID
	}
	stack := []frame{{id: id}}
	// inProgress holds commits whose parents are being computed: the current
	// path. Meeting one of them again means the graph has a cycle.
	inProgress := make(map[object.ID]bool)
	maxSteps, _ := traversalLimits()
	steps := 0

	for len(stack) > 0 {
		steps++
		if steps > 2*maxSteps {
			return 0, traversalStepsLimitError("commit generation", maxSteps)
		}
		top := stack[len(stack)-1]
		if _, ok := s.loadGeneration(top.id); ok {
			stack = stack[:len(stack)-1]
			continue
		}
		c, err := s.readCommit(r, top.id, top.child)
		if err != nil {
			return 0, err
		}

		if !inProgress[top.id] {
			inProgress[top.id] = true
			for _, p := range c.Parents {
				if _, ok := s.loadGeneration(p); ok {
					continue
				}
				if inProgress[p] {
					return 0, &CorruptHistoryError{Commit: p, Reason: "commit graph cycle"}
				}
				stack = append(stack, frame{id: p, child: top.id})
			}
			continue
		}

		var maxParent uint64
		for _, p := range c.Parents {
			g, _ := s.loadGeneration(p)
			if g > maxParent {
				maxParent = g
			}
		}
		s.storeGeneration(top.id, maxParent+1)
		delete(inProgress, top.id)
		stack = stack[:len(stack)-1]
	}

	g, _ := s.loadGeneration(id)
	return g, nil
}

// IsAncestor reports whether ancestor is reachable from descendant through
// parent links (a commit is its own ancestor). The walk is breadth-first,
// pruned by generation numbers and bounded by the traversal limits.
func (r *Repo) IsAncestor(ancestor, descendant object.ID) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	if ancestor.IsNull() || descendant.IsNull() {
		return false, nil
	}
	state := r.getTraversalState()
	ancestorGeneration, err := state.generation(r, ancestor)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	descendantGeneration, err := state.generation(r, descendant)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	if ancestorGeneration >= descendantGeneration {
		return false, nil
	}

	maxSteps, maxDepth := traversalLimits()
	visited := map[object.ID]struct{}{descendant: {}}
	queue := []traversalQueueItem{{id: descendant}}
	steps := 0

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		steps++
		if steps > maxSteps {
			return false, traversalStepsLimitError("is ancestor", maxSteps)
		}
		if item.depth > maxDepth {
			return false, traversalDepthLimitError("is ancestor", maxDepth)
		}
		if item.id == ancestor {
			return true, nil
		}

		c, err := state.readCommit(r, item.id, item.child)
		if err != nil {
			return false, fmt.Errorf("is ancestor: %w", err)
		}
		for _, p := range c.Parents {
			if _, seen := visited[p]; seen {
				continue
			}
			pg, err := state.generation(r, p)
			if err != nil {
				return false, fmt.Errorf("is ancestor: %w", err)
			}
			if pg < ancestorGeneration {
				continue
			}
			visited[p] = struct{}{}
			queue = append(queue, traversalQueueItem{id: p, child: item.id, depth: item.depth + 1})
		}
	}
	return false, nil
}

type mergeBaseItem struct {
	id         object.ID
	child      object.ID
	generation uint64
}

// mergeBaseHeap pops the highest generation first, the smallest id on ties.
type mergeBaseHeap []mergeBaseItem

func (h mergeBaseHeap) Len() int { return len(h) }

func (h mergeBaseHeap) Less(i, j int) bool {
	if h[i].generation == h[j].generation {
		return h[i].id.Compare(h[j].id) < 0
	}
	return h[i].generation > h[j].generation
}

func (h mergeBaseHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeBaseHeap) Push(x any) { *h = append(*h, x.(mergeBaseItem)) }

func (h *mergeBaseHeap) Pop() any {
	old := *h
	item := old[len(old)-1]
	*h = old[:len(old)-1]
	return item
}

const (
	reachedFromA uint8 = 1 << iota
	reachedFromB
)

// FindMergeBase returns a common ancestor of a and b with the highest
// generation (smallest id on ties), or the null id when the histories are
// unrelated. Unlike FindBranchSplit it follows every parent on both sides,
// so a branch merged before resolves to its last merged tip.
//
// Commits are visited in descending generation order, so by the time one
// is popped every descendant that can reach it has already marked it.
func (r *Repo) FindMergeBase(a, b object.ID) (object.ID, error) {
	if a.IsNull() || b.IsNull() {
		return object.NullID, nil
	}
	if a == b {
		return a, nil
	}

	state := r.getTraversalState()
	reached := make(map[object.ID]uint8)
	queue := &mergeBaseHeap{}
	mark := func(id, child object.ID, flags uint8) error {
		if prev, ok := reached[id]; ok {
			reached[id] = prev | flags
			return nil
		}
		g, err := state.generation(r, id)
		if err != nil {
			return err
		}
		reached[id] = flags
		heap.Push(queue, mergeBaseItem{id: id, child: child, generation: g})
		return nil
	}
	if err := mark(a, object.NullID, reachedFromA); err != nil {
		return object.NullID, fmt.Errorf("find merge base: %w", err)
	}
	if err := mark(b, object.NullID, reachedFromB); err != nil {
		return object.NullID, fmt.Errorf("find merge base: %w", err)
	}

	maxSteps, _ := traversalLimits()
	steps := 0
	for queue.Len() > 0 {
		item := heap.Pop(queue).(mergeBaseItem)
		steps++
		if steps > maxSteps {
			return object.NullID, traversalStepsLimitError("find merge base", maxSteps)
		}
		flags := reached[item.id]
		if flags == reachedFromA|reachedFromB {
			return item.id, nil
		}
		c, err := state.readCommit(r, item.id, item.child)
		if err != nil {
			return object.NullID, fmt.Errorf("find merge base: %w", err)
		}
		for _, p := range c.Parents {
			if p.IsNull() {
				continue
			}
			if err := mark(p, item.id, flags); err != nil {
				return object.NullID, fmt.Errorf("find merge base: %w", err)
			}
		}
	}
	return object.NullID, nil
}
