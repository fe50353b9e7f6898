package repo

import (
	"fmt"
	"strings"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/revtree"
)

// ConflictPolicy decides what happens to a key both sides changed
// differently since the merge base.
type ConflictPolicy int

const (
	// ConflictFail writes nothing and returns ErrMergeConflict together with
	// the conflicts found.
	ConflictFail ConflictPolicy = iota
	// ConflictOurs keeps the current branch's side.
	ConflictOurs
	// ConflictTheirs takes the merged branch's side.
	ConflictTheirs
)

func (p ConflictPolicy) String() string {
	switch p {
	case ConflictFail:
		return "fail"
	case ConflictOurs:
		return "ours"
	case ConflictTheirs:
		return "theirs"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

// ParseConflictPolicy accepts "fail", "ours" and "theirs".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return ConflictFail, nil
	case "ours":
		return ConflictOurs, nil
	case "theirs":
		return ConflictTheirs, nil
	default:
		return ConflictFail, fmt.Errorf("unknown conflict policy %q", s)
	}
}

// MergeOp names the branch to merge into the current head.
type MergeOp struct {
	// Branch is any revision; usually a branch name.
	Branch string
	// Comment is the merge commit message. Empty gives a default.
	Comment string
	// Author defaults to the configured identity.
	Author string
}

// MergeStrategy merges op.Branch into r's current head.
type MergeStrategy interface {
	Merge(r *Repo, op MergeOp) (*MergeResult, error)
}

// Conflict is a key changed differently on both sides. A nil side means the
// key is absent there.
type Conflict struct {
	Path   string
	Base   *object.Ref
	Ours   *object.Ref
	Theirs *object.Ref
}

// MergeResult reports what a merge did. Changes is the diff from the old
// head tree to the new one, all change types included.
type MergeResult struct {
	Changes     []diff.Change
	Conflicts   []Conflict
	Commit      object.ID
	FastForward bool
	// UpToDate is set when the branch tip was already in the head's
	// history and nothing changed.
	UpToDate bool
	// Replayed counts the commits a rebase rewrote.
	Replayed int
}

// Merge runs strategy for op. A nil strategy is ThreeWay{}.
func (r *Repo) Merge(op MergeOp, strategy MergeStrategy) (*MergeResult, error) {
	if strategy == nil {
		strategy = ThreeWay{}
	}
	return strategy.Merge(r, op)
}

type mergeState struct {
	op       MergeOp
	headRef  string
	head     object.ID
	tip      object.ID
	headTree object.ID
	tipTree  object.ID

	upToDate       bool
	canFastForward bool
}

// prepareMerge resolves both sides and classifies the merge.
func (r *Repo) prepareMerge(op MergeOp) (*mergeState, error) {
	if strings.TrimSpace(op.Branch) == "" {
		return nil, fmt.Errorf("merge: %w: no branch given", ErrNothingToMerge)
	}
	tip, err := r.ResolveRevision(op.Branch)
	if err != nil {
		return nil, fmt.Errorf("merge %q: %w (%w)", op.Branch, ErrNothingToMerge, err)
	}
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
	}
	headRef, err := r.headRefName()
	if err != nil {
		return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
	}
	head, err := r.HeadCommit()
	if err != nil {
		return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
	}
	st := &mergeState{op: op, headRef: headRef, head: head, tip: tip}
	if st.headTree, err = r.commitTree(head); err != nil {
		return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
	}
	if st.tipTree, err = r.commitTree(tip); err != nil {
		return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
	}

	switch {
	case head.IsNull():
		st.canFastForward = true
	default:
		merged, err := r.IsAncestor(tip, head)
		if err != nil {
			return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
		}
		if merged {
			st.upToDate = true
			break
		}
		if st.canFastForward, err = r.IsAncestor(head, tip); err != nil {
			return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
		}
	}
	return st, nil
}

func (op MergeOp) author(r *Repo) string {
	if op.Author != "" {
		return op.Author
	}
	return r.Config.Identity()
}

// finishMerge moves the head ref from st.head to commit, records ORIG_HEAD,
// resets the workspace to tree and fills in the result's changes.
func (r *Repo) finishMerge(st *mergeState, res *MergeResult, commit, tree object.ID, reason string) (*MergeResult, error) {
	if !st.head.IsNull() {
		if err := r.UpdateRef(OrigHeadRef, st.head, reason); err != nil {
			return nil, fmt.Errorf("%s: %w", reason, err)
		}
	}
	if err := r.UpdateRefCAS(st.headRef, commit, st.head, reason); err != nil {
		return nil, fmt.Errorf("%s: %w", reason, err)
	}
	if err := r.setWorkspace(tree, tree, reason); err != nil {
		return nil, fmt.Errorf("%s: %w", reason, err)
	}
	changes, err := diff.Collect(r.Source(), st.headTree, tree, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", reason, err)
	}
	res.Changes = changes
	res.Commit = commit
	r.log.Infow("head moved",
		"reason", reason,
		"ref", st.headRef,
		"commit", commit.Short(),
		"changes", len(changes),
		"fast_forward", res.FastForward,
	)
	return res, nil
}

func (r *Repo) fastForward(st *mergeState) (*MergeResult, error) {
	return r.finishMerge(st, &MergeResult{FastForward: true}, st.tip, st.tipTree, "merge "+st.op.Branch+": fast-forward")
}

// FastForward only repoints the head at the branch tip, which must descend
// from it. No commit is written.
type FastForward struct{}

func (FastForward) Merge(r *Repo, op MergeOp) (*MergeResult, error) {
	st, err := r.prepareMerge(op)
	if err != nil {
		return nil, err
	}
	if st.upToDate {
		return &MergeResult{Commit: st.head, UpToDate: true}, nil
	}
	if !st.canFastForward {
		return nil, fmt.Errorf("merge %q: %w", op.Branch, ErrNotFastForward)
	}
	return r.fastForward(st)
}

// ThreeWay fast-forwards when it can. Otherwise it reconciles both trees
// against their merge base (see FindMergeBase) and writes a commit with parents
// [head, branch tip].
//
// Per key: a change on one side only is taken; the same change on both
// sides is taken once; different changes are conflicts resolved by Policy.
type ThreeWay struct {
	Policy ConflictPolicy
}

func (s ThreeWay) Merge(r *Repo, op MergeOp) (*MergeResult, error) {
	st, err := r.prepareMerge(op)
	if err != nil {
		return nil, err
	}
	if st.upToDate {
		return &MergeResult{Commit: st.head, UpToDate: true}, nil
	}
	if st.canFastForward {
		return r.fastForward(st)
	}

	base, err := r.FindMergeBase(st.head, st.tip)
	if err != nil {
		return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
	}
	baseTree, err := r.commitTree(base)
	if err != nil {
		return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
	}

	res := &MergeResult{}
	var commitID, treeID object.ID
	err = r.Update(func(src revtree.Source) error {
		merged, conflicts, err := reconcile(src, baseTree, st.headTree, st.tipTree, s.Policy)
		if err != nil {
			return err
		}
		res.Conflicts = conflicts
		if len(conflicts) > 0 && s.Policy == ConflictFail {
			return ErrMergeConflict
		}
		if treeID, err = merged.Write(); err != nil {
			return err
		}
		message := op.Comment
		if strings.TrimSpace(message) == "" {
			message = fmt.Sprintf("Merge branch '%s'", op.Branch)
		}
		author := op.author(r)
		commitID, err = r.writeCommit(src.DB, &object.Commit{
			TreeID:    treeID,
			Parents:   []object.ID{st.head, st.tip},
			Author:    author,
			Committer: author,
			Timestamp: r.now().UnixMilli(),
			Message:   message,
		})
		return err
	})
	if err != nil {
		if len(res.Conflicts) > 0 && s.Policy == ConflictFail {
			return res, fmt.Errorf("merge %q: %w: %d conflicting features", op.Branch, ErrMergeConflict, len(res.Conflicts))
		}
		return nil, fmt.Errorf("merge %q: %w", op.Branch, err)
	}
	r.log.Debugw("merge base", "base", base.Short(), "conflicts", len(res.Conflicts), "policy", s.Policy.String())
	return r.finishMerge(st, res, commitID, treeID, "merge "+op.Branch)
}

// reconcile applies the changes from base to theirs onto ours. The
// returned tree is not written.
func reconcile(src revtree.Source, base, ours, theirs object.ID, policy ConflictPolicy) (*revtree.Tree, []Conflict, error) {
	ourChanges, err := diff.Collect(src, base, ours, nil)
	if err != nil {
		return nil, nil, err
	}
	theirChanges, err := diff.Collect(src, base, theirs, nil)
	if err != nil {
		return nil, nil, err
	}
	byPath := make(map[string]diff.Change, len(ourChanges))
	for _, c := range ourChanges {
		byPath[c.Path] = c
	}

	t, err := revtree.Load(src, ours)
	if err != nil {
		return nil, nil, err
	}
	var conflicts []Conflict
	for _, tc := range theirChanges {
		oc, touched := byPath[tc.Path]
		if touched {
			if sameOutcome(oc, tc) {
				continue
			}
			conflicts = append(conflicts, mergeConflict(oc, tc))
			if policy != ConflictTheirs {
				continue
			}
		}
		if err := applyChanges(t, []diff.Change{tc}); err != nil {
			return nil, nil, err
		}
	}
	return t, conflicts, nil
}

func sameOutcome(a, b diff.Change) bool {
	if a.Type == diff.Removed || b.Type == diff.Removed {
		return a.Type == b.Type
	}
	return a.New.Equal(b.New)
}

func mergeConflict(ours, theirs diff.Change) Conflict {
	c := Conflict{Path: ours.Path}
	if ours.Type != diff.Added {
		c.Base = refPtr(ours.Old)
	}
	if ours.Type != diff.Removed {
		c.Ours = refPtr(ours.New)
	}
	if theirs.Type != diff.Removed {
		c.Theirs = refPtr(theirs.New)
	}
	return c
}

func refPtr(r object.Ref) *object.Ref {
	return &r
}
