package repo

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/object"
)

// setupMergeRepo commits {a:1, b:1} on main and creates a "feature" branch
// at that commit.
func setupMergeRepo(t *testing.T) (*Repo, object.ID) {
	t.Helper()
	r := newTestRepo(t)
	put(t, r, "a", "1", "b", "1")
	base := commitAll(t, r, "base")
	mustBranch(t, r, "feature", base)
	return r, base
}

func changeSummary(changes []diff.Change) map[string]string {
	out := make(map[string]string, len(changes))
	for _, c := range changes {
		out[c.Path] = c.Type.String()
	}
	return out
}

func TestMergeFastForward(t *testing.T) {
	r, base := setupMergeRepo(t)
	mustCheckout(t, r, "feature")
	put(t, r, "c", "1")
	tip := commitAll(t, r, "add c")
	mustCheckout(t, r, "main")

	res, err := r.Merge(MergeOp{Branch: "feature"}, ThreeWay{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !res.FastForward || res.Commit != tip {
		t.Fatalf("result = %+v, want fast-forward to %s", res, tip.Short())
	}
	head, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}
	if head != tip {
		t.Fatalf("HEAD = %s, want branch tip", head.Short())
	}
	if diff := cmp.Diff(map[string]string{"c": "ADD"}, changeSummary(res.Changes)); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
	orig, err := r.ResolveRef(OrigHeadRef)
	if err != nil || orig != base {
		t.Fatalf("ORIG_HEAD = %s, %v; want %s", orig.Short(), err, base.Short())
	}
	st, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Clean() {
		t.Fatalf("workspace not reset after fast-forward: %+v", st)
	}
}

func TestMergeThreeWay(t *testing.T) {
	r, base := setupMergeRepo(t)
	mustCheckout(t, r, "feature")
	put(t, r, "b", "2", "c", "1")
	tip := commitAll(t, r, "feature work")
	mustCheckout(t, r, "main")
	if _, err := r.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	put(t, r, "d", "1")
	oldHead := commitAll(t, r, "main work")

	res, err := r.Merge(MergeOp{Branch: "feature", Comment: "merge feature", Author: "merger"}, ThreeWay{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.FastForward || len(res.Conflicts) != 0 {
		t.Fatalf("result = %+v, want a clean three-way merge", res)
	}
	c, err := r.GetCommit(res.Commit)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if diff := cmp.Diff([]object.ID{oldHead, tip}, c.Parents); diff != "" {
		t.Fatalf("parents mismatch (-want +got):\n%s", diff)
	}
	if c.Message != "merge feature" || c.Author != "merger" {
		t.Fatalf("commit = %+v", c)
	}
	if diff := cmp.Diff(map[string]string{"b": "MODIFY", "c": "ADD"}, changeSummary(res.Changes)); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
	for name, want := range map[string]string{"a": "", "b": "2", "c": "1", "d": "1"} {
		if got := valueAt(t, r, name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	split, err := r.FindBranchSplit(tip, oldHead)
	if err != nil || split != base {
		t.Fatalf("split = %s, %v; want base", split.Short(), err)
	}
}

func TestMergeIdenticalChangesMerge(t *testing.T) {
	r, _ := setupMergeRepo(t)
	mustCheckout(t, r, "feature")
	put(t, r, "b", "same", "x", "1")
	commitAll(t, r, "feature")
	mustCheckout(t, r, "main")
	put(t, r, "b", "same", "y", "1")
	commitAll(t, r, "main")

	res, err := r.Merge(MergeOp{Branch: "feature"}, ThreeWay{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("identical edits reported as conflicts: %+v", res.Conflicts)
	}
	if got := valueAt(t, r, "b"); got != "same" {
		t.Fatalf("b = %q, want same", got)
	}
}

func setupConflict(t *testing.T) (*Repo, object.ID) {
	t.Helper()
	r, _ := setupMergeRepo(t)
	mustCheckout(t, r, "feature")
	put(t, r, "b", "theirs", "c", "1")
	commitAll(t, r, "feature")
	mustCheckout(t, r, "main")
	put(t, r, "b", "ours")
	head := commitAll(t, r, "main")
	return r, head
}

func TestMergeConflictFailWritesNothing(t *testing.T) {
	r, head := setupConflict(t)
	before := r.Objects.(interface{ Len() int }).Len()

	res, err := r.Merge(MergeOp{Branch: "feature"}, ThreeWay{Policy: ConflictFail})
	if !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("Merge error = %v, want ErrMergeConflict", err)
	}
	if res == nil || len(res.Conflicts) != 1 || res.Conflicts[0].Path != "b" {
		t.Fatalf("result = %+v, want one conflict on b", res)
	}
	conflict := res.Conflicts[0]
	if conflict.Base == nil || conflict.Ours == nil || conflict.Theirs == nil {
		t.Fatalf("conflict sides = %+v, want all three present", conflict)
	}
	if after := r.Objects.(interface{ Len() int }).Len(); after != before {
		t.Fatalf("object count %d -> %d, want nothing written", before, after)
	}
	if now, _ := r.HeadCommit(); now != head {
		t.Fatalf("HEAD moved to %s", now.Short())
	}
}

func TestMergeConflictPolicies(t *testing.T) {
	for _, tt := range []struct {
		policy ConflictPolicy
		want   string
	}{
		{ConflictOurs, "ours"},
		{ConflictTheirs, "theirs"},
	} {
		t.Run(tt.policy.String(), func(t *testing.T) {
			r, _ := setupConflict(t)
			res, err := r.Merge(MergeOp{Branch: "feature"}, ThreeWay{Policy: tt.policy})
			if err != nil {
				t.Fatalf("Merge: %v", err)
			}
			if len(res.Conflicts) != 1 {
				t.Fatalf("conflicts = %+v, want one", res.Conflicts)
			}
			if got := valueAt(t, r, "b"); got != tt.want {
				t.Fatalf("b = %q, want %q", got, tt.want)
			}
			if got := valueAt(t, r, "c"); got != "1" {
				t.Fatalf("non-conflicting c = %q, want 1", got)
			}
		})
	}
}

func TestModifyDeleteIsConflict(t *testing.T) {
	r, _ := setupMergeRepo(t)
	mustCheckout(t, r, "feature")
	if _, err := r.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	commitAll(t, r, "drop a")
	mustCheckout(t, r, "main")
	put(t, r, "a", "2")
	commitAll(t, r, "edit a")

	res, err := r.Merge(MergeOp{Branch: "feature"}, ThreeWay{})
	if !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("Merge error = %v, want ErrMergeConflict", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Theirs != nil || res.Conflicts[0].Ours == nil {
		t.Fatalf("conflicts = %+v, want a/theirs deleted", res.Conflicts)
	}
}

func TestMergeNothingToMerge(t *testing.T) {
	r, _ := setupMergeRepo(t)
	if _, err := r.Merge(MergeOp{}, nil); !errors.Is(err, ErrNothingToMerge) {
		t.Fatalf("empty branch error = %v, want ErrNothingToMerge", err)
	}
	if _, err := r.Merge(MergeOp{Branch: "nope"}, nil); !errors.Is(err, ErrNothingToMerge) {
		t.Fatalf("unknown branch error = %v, want ErrNothingToMerge", err)
	}
}

func TestMergeAlreadyUpToDate(t *testing.T) {
	r, _ := setupMergeRepo(t)
	put(t, r, "c", "1")
	head := commitAll(t, r, "ahead")

	res, err := r.Merge(MergeOp{Branch: "feature"}, ThreeWay{})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !res.UpToDate || res.Commit != head || len(res.Changes) != 0 || res.FastForward {
		t.Fatalf("result = %+v, want an empty result at head", res)
	}
	if _, err := r.ResolveRef(OrigHeadRef); err == nil {
		t.Fatal("ORIG_HEAD written for a no-op merge")
	}
}

func TestMergeRefusesUncommittedChanges(t *testing.T) {
	r, _ := setupMergeRepo(t)
	put(t, r, "dirty", "1")
	if _, err := r.Merge(MergeOp{Branch: "feature"}, nil); !errors.Is(err, ErrUncommittedChanges) {
		t.Fatalf("Merge error = %v, want ErrUncommittedChanges", err)
	}
}

func TestFastForwardStrategyRefusesDivergence(t *testing.T) {
	r, _ := setupConflict(t)
	if _, err := r.Merge(MergeOp{Branch: "feature"}, FastForward{}); !errors.Is(err, ErrNotFastForward) {
		t.Fatalf("Merge error = %v, want ErrNotFastForward", err)
	}
}

func TestRebaseReplaysLocalCommits(t *testing.T) {
	r, _ := setupMergeRepo(t)
	mustCheckout(t, r, "feature")
	put(t, r, "c", "1")
	tip := commitAll(t, r, "upstream")
	mustCheckout(t, r, "main")
	put(t, r, "d", "1")
	commitAll(t, r, "local one")
	put(t, r, "a", "2")
	commitAll(t, r, "local two")

	res, err := r.Merge(MergeOp{Branch: "feature", Author: "rebaser"}, Rebase{})
	if err != nil {
		t.Fatalf("Rebase: %v", err)
	}
	if res.Replayed != 2 || res.FastForward {
		t.Fatalf("result = %+v, want two replayed commits", res)
	}
	if diff := cmp.Diff([]string{"local two", "local one", "upstream", "base"}, messages(t, r, res.Commit)); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	c, err := r.GetCommit(res.Commit)
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if len(c.Parents) != 1 || c.Author != "tester" || c.Committer != "rebaser" {
		t.Fatalf("rebased commit = %+v", c)
	}
	ok, err := r.IsAncestor(tip, res.Commit)
	if err != nil || !ok {
		t.Fatalf("IsAncestor(upstream, rebased) = %v, %v", ok, err)
	}
	for name, want := range map[string]string{"a": "2", "b": "1", "c": "1", "d": "1"} {
		if got := valueAt(t, r, name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
	if diff := cmp.Diff(map[string]string{"c": "ADD"}, changeSummary(res.Changes)); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestRebaseConflict(t *testing.T) {
	r, head := setupConflict(t)
	res, err := r.Merge(MergeOp{Branch: "feature"}, Rebase{})
	if !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("Rebase error = %v, want ErrMergeConflict", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0].Theirs.Equal(*res.Conflicts[0].Ours) {
		t.Fatalf("conflicts = %+v", res.Conflicts)
	}
	if now, _ := r.HeadCommit(); now != head {
		t.Fatal("HEAD moved after a failed rebase")
	}

	res, err = r.Merge(MergeOp{Branch: "feature"}, Rebase{Policy: ConflictOurs})
	if err != nil {
		t.Fatalf("Rebase ours: %v", err)
	}
	if got := valueAt(t, r, "b"); got != "ours" {
		t.Fatalf("b = %q, want ours", got)
	}
	if got := valueAt(t, r, "c"); got != "1" {
		t.Fatalf("c = %q, want 1", got)
	}
	if res.Replayed != 1 {
		t.Fatalf("replayed %d, want 1", res.Replayed)
	}
}

func TestParseConflictPolicy(t *testing.T) {
	for in, want := range map[string]ConflictPolicy{"": ConflictFail, "fail": ConflictFail, "OURS": ConflictOurs, "theirs": ConflictTheirs} {
		got, err := ParseConflictPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseConflictPolicy(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseConflictPolicy("mine"); err == nil {
		t.Error("ParseConflictPolicy accepted an unknown policy")
	}
}

func TestMergeSameBranchTwice(t *testing.T) {
	r := newTestRepo(t)
	put(t, r, "a", "0", "k", "0")
	root := commitAll(t, r, "root")
	mustBranch(t, r, "topic", root)

	put(t, r, "a", "main")
	commitAll(t, r, "main edits a")
	mustCheckout(t, r, "topic")
	put(t, r, "k", "t1")
	firstTip := commitAll(t, r, "topic sets k")
	mustCheckout(t, r, "main")
	if _, err := r.Merge(MergeOp{Branch: "topic"}, ThreeWay{}); err != nil {
		t.Fatalf("first merge: %v", err)
	}

	mustCheckout(t, r, "topic")
	put(t, r, "k", "t2")
	secondTip := commitAll(t, r, "topic sets k again")
	mustCheckout(t, r, "main")
	head, err := r.HeadCommit()
	if err != nil {
		t.Fatalf("HeadCommit: %v", err)
	}

	base, err := r.FindMergeBase(head, secondTip)
	if err != nil || base != firstTip {
		t.Fatalf("FindMergeBase = %s, %v; want first topic tip %s", base.Short(), err, firstTip.Short())
	}
	split, err := r.FindBranchSplit(secondTip, head)
	if err != nil || split != root {
		t.Fatalf("FindBranchSplit = %s, %v; want root %s", split.Short(), err, root.Short())
	}

	res, err := r.Merge(MergeOp{Branch: "topic"}, ThreeWay{})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Fatalf("second merge conflicts: %+v", res.Conflicts)
	}
	if diff := cmp.Diff(map[string]string{"k": "MODIFY"}, changeSummary(res.Changes)); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
	for name, want := range map[string]string{"a": "main", "k": "t2"} {
		if got := valueAt(t, r, name); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestFindMergeBaseAncestorAndSelf(t *testing.T) {
	r, base := setupMergeRepo(t)
	put(t, r, "c", "1")
	tip := commitAll(t, r, "main work")
	for _, tt := range []struct {
		a, b, want object.ID
	}{
		{tip, tip, tip},
		{tip, base, base},
		{base, tip, base},
		{tip, object.NullID, object.NullID},
	} {
		got, err := r.FindMergeBase(tt.a, tt.b)
		if err != nil || got != tt.want {
			t.Errorf("FindMergeBase(%s, %s) = %s, %v; want %s", tt.a.Short(), tt.b.Short(), got.Short(), err, tt.want.Short())
		}
	}
}
