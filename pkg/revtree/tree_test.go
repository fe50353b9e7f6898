package revtree

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/store"
)

func newSource(t *testing.T) (Source, *store.Memory) {
	t.Helper()
	db := store.NewMemory()
	return Source{DB: db, Codec: object.NewCodec(nil)}, db
}

func featureRef(name string, version int) object.Ref {
	return object.Ref{
		Name: name,
		ID:   object.HashString(fmt.Sprintf("%s@%d", name, version)),
		Type: object.TypeFeature,
	}
}

func featureName(i int) string {
	return fmt.Sprintf("Feature.%d", i)
}

func buildTree(t *testing.T, src Source, names []string) *Tree {
	t.Helper()
	tr := New(src)
	for _, name := range names {
		if err := tr.Put(featureRef(name, 0)); err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}
	return tr
}

func namesRange(lo, hi int) []string {
	out := make([]string, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, featureName(i))
	}
	return out
}

func reversed(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}

func mustWrite(t *testing.T, tr *Tree) object.ID {
	t.Helper()
	id, err := tr.Write()
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return id
}

func TestInsertionOrderDoesNotChangeID(t *testing.T) {
	src, _ := newSource(t)
	names := namesRange(0, 1100)

	asc := buildTree(t, src, names)
	desc := buildTree(t, src, reversed(names))

	ascID := mustWrite(t, asc)
	descID := mustWrite(t, desc)
	if ascID != descID {
		t.Fatalf("ascending id %s != descending id %s", ascID, descID)
	}
	if !asc.IsInternal() {
		t.Fatal("1100-entry tree is not internal")
	}
}

func TestRemoveConvergesToDirectBuild(t *testing.T) {
	src, _ := newSource(t)

	tr := buildTree(t, src, namesRange(0, 1100))
	mustWrite(t, tr)
	for i := 600; i < 1100; i++ {
		ok, err := tr.Remove(featureName(i))
		if err != nil || !ok {
			t.Fatalf("Remove %d = %v, %v", i, ok, err)
		}
	}
	got := mustWrite(t, tr)
	want := mustWrite(t, buildTree(t, src, namesRange(0, 600)))
	if got != want {
		t.Fatalf("after removing to 600 entries: id %s, direct build %s", got, want)
	}

	for i := 100; i < 600; i++ {
		if _, err := tr.Remove(featureName(i)); err != nil {
			t.Fatalf("Remove %d: %v", i, err)
		}
	}
	if !tr.IsInternal() {
		t.Fatal("Remove collapsed the node before Normalize")
	}
	got = mustWrite(t, tr)
	if tr.IsInternal() {
		t.Fatal("100-entry tree is still internal after Write")
	}
	want = mustWrite(t, buildTree(t, src, namesRange(0, 100)))
	if got != want {
		t.Fatalf("after collapsing to 100 entries: id %s, direct build %s", got, want)
	}
}

func TestInterleavedPutRemoveIsDeterministic(t *testing.T) {
	src, _ := newSource(t)

	a := New(src)
	for i := 0; i < 1500; i++ {
		if err := a.Put(featureRef(featureName(i), 0)); err != nil {
			t.Fatal(err)
		}
		if i%3 == 0 && i > 0 {
			if _, err := a.Remove(featureName(i - 1)); err != nil {
				t.Fatal(err)
			}
		}
	}

	var keep []string
	for i := 0; i < 1500; i++ {
		if i%3 == 2 && i != 1499 {
			continue
		}
		keep = append(keep, featureName(i))
	}
	b := buildTree(t, src, reversed(keep))

	if a.Size() != b.Size() {
		t.Fatalf("sizes differ: %d vs %d", a.Size(), b.Size())
	}
	if ida, idb := mustWrite(t, a), mustWrite(t, b); ida != idb {
		t.Fatalf("ids differ: %s vs %s", ida, idb)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 300, 1100} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			src, _ := newSource(t)
			tr := buildTree(t, src, namesRange(0, n))
			id := mustWrite(t, tr)

			want, err := tr.Refs(nil)
			if err != nil {
				t.Fatalf("Refs: %v", err)
			}
			loaded, err := Load(src, id)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			got, err := loaded.Refs(nil)
			if err != nil {
				t.Fatalf("Refs after load: %v", err)
			}
			if len(got) != len(want) || len(got) != n {
				t.Fatalf("got %d refs, want %d", len(got), n)
			}
			for i := range want {
				if got[i].Name != want[i].Name || got[i].ID != want[i].ID {
					t.Fatalf("ref %d: got %s=%s, want %s=%s", i, got[i].Name, got[i].ID, want[i].Name, want[i].ID)
				}
			}
			if again := mustWrite(t, loaded); again != id {
				t.Fatalf("rewriting a loaded tree changed its id: %s -> %s", id, again)
			}
		})
	}
}

func TestSizeConsistency(t *testing.T) {
	src, _ := newSource(t)
	const n, k = 1100, 37

	tr := buildTree(t, src, namesRange(0, n))
	if tr.Size() != n {
		t.Fatalf("Size = %d, want %d", tr.Size(), n)
	}
	for i := 0; i < k; i++ {
		ok, err := tr.Remove(featureName(i * 7))
		if err != nil || !ok {
			t.Fatalf("Remove = %v, %v", ok, err)
		}
	}
	if tr.Size() != n-k {
		t.Fatalf("Size after removes = %d, want %d", tr.Size(), n-k)
	}
	ok, err := tr.Remove(featureName(0))
	if err != nil || ok {
		t.Fatalf("Remove of absent key = %v, %v", ok, err)
	}

	if err := tr.Put(featureRef(featureName(1), 9)); err != nil {
		t.Fatal(err)
	}
	if tr.Size() != n-k {
		t.Fatalf("Size after replace = %d, want %d", tr.Size(), n-k)
	}

	id := mustWrite(t, tr)
	loaded, err := Load(src, id)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != n-k {
		t.Fatalf("Size after reload = %d, want %d", loaded.Size(), n-k)
	}
	for _, b := range loaded.buckets {
		if b.tree != nil {
			t.Fatal("Size materialized a bucket")
		}
	}
	r, ok, err := loaded.Get(featureName(1))
	if err != nil || !ok || r.ID != featureRef(featureName(1), 9).ID {
		t.Fatalf("Get replaced key = %+v, %v, %v", r, ok, err)
	}
}

func TestSplitThreshold(t *testing.T) {
	src, _ := newSource(t)

	tr := buildTree(t, src, namesRange(0, SplitFactor))
	if tr.IsInternal() {
		t.Fatalf("tree with %d entries split", SplitFactor)
	}
	if err := tr.Put(featureRef(featureName(SplitFactor), 0)); err != nil {
		t.Fatal(err)
	}
	if !tr.IsInternal() {
		t.Fatalf("tree with %d entries did not split", SplitFactor+1)
	}
	if len(tr.buckets) > NumBuckets {
		t.Fatalf("%d buckets, max %d", len(tr.buckets), NumBuckets)
	}
	for i := 0; i <= SplitFactor; i++ {
		name := featureName(i)
		r, ok, err := tr.Get(name)
		if err != nil || !ok || r.Name != name {
			t.Fatalf("Get(%s) = %+v, %v, %v", name, r, ok, err)
		}
	}
	if _, ok, _ := tr.Get("missing"); ok {
		t.Fatal("Get found a key that was never added")
	}
}

func TestBucketIndexIsPure(t *testing.T) {
	for depth := 0; depth < MaxDepth; depth++ {
		a := BucketIndex("Feature.42", depth)
		b := BucketIndex("Feature.42", depth)
		if a != b || a < 0 || a >= NumBuckets {
			t.Fatalf("BucketIndex depth %d = %d, %d", depth, a, b)
		}
	}
	h := object.HashString("Feature.42")
	if got, want := BucketIndex("Feature.42", 3), int(h[3])%NumBuckets; got != want {
		t.Fatalf("BucketIndex = %d, want %d", got, want)
	}
}

func TestUnchangedBucketsKeepIDs(t *testing.T) {
	src, db := newSource(t)
	tr := buildTree(t, src, namesRange(0, 1100))
	mustWrite(t, tr)
	before := bucketIDs(t, tr)
	objects := db.Len()

	if err := tr.Put(featureRef(featureName(5), 1)); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, tr)
	after := bucketIDs(t, tr)

	changed := 0
	for idx, id := range before {
		if after[idx] != id {
			changed++
		}
	}
	if changed != 1 {
		t.Fatalf("%d bucket ids changed, want 1", changed)
	}
	// One new leaf plus one new root.
	if got := db.Len() - objects; got != 2 {
		t.Fatalf("write stored %d new objects, want 2", got)
	}
}

func bucketIDs(t *testing.T, tr *Tree) map[int]object.ID {
	t.Helper()
	out := make(map[int]object.ID)
	err := tr.Walk(nil, func(e Entry) (bool, error) {
		if e.Depth == 0 {
			out[e.Bucket.Index] = e.Bucket.ID
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return out
}

func TestIterateFilterAndEarlyStop(t *testing.T) {
	src, _ := newSource(t)
	tr := buildTree(t, src, namesRange(0, 1100))
	mustWrite(t, tr)

	n := 0
	for r, err := range tr.Iterate(PrefixFilter("Feature.10")) {
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(r.Name, "Feature.10") {
			t.Fatalf("filter let through %s", r.Name)
		}
		n++
	}
	// Feature.10, Feature.100-109, Feature.1000-1099
	if n != 1+10+100 {
		t.Fatalf("filtered %d refs, want 111", n)
	}

	seen := 0
	for _, err := range tr.Iterate(nil) {
		if err != nil {
			t.Fatal(err)
		}
		seen++
		if seen == 5 {
			break
		}
	}
	if seen != 5 {
		t.Fatalf("early stop saw %d", seen)
	}

	all, err := tr.Refs(nil)
	if err != nil || len(all) != 1100 {
		t.Fatalf("fresh iteration after early stop = %d refs, %v", len(all), err)
	}
}

func TestLoadNullIsEmpty(t *testing.T) {
	src, _ := newSource(t)
	tr, err := Load(src, object.NullID)
	if err != nil {
		t.Fatalf("Load(null): %v", err)
	}
	if tr.Size() != 0 || tr.IsInternal() {
		t.Fatalf("null tree size=%d internal=%v", tr.Size(), tr.IsInternal())
	}
	id := mustWrite(t, tr)
	if id != object.HashBytes([]byte{0x02, 0x00, 0x00}) {
		t.Fatalf("empty tree id = %s", id)
	}
}

func TestLoadDetectsSizeMismatch(t *testing.T) {
	src, db := newSource(t)
	leaf, err := src.Codec.EncodeTree(&object.TreeNode{Size: 1, Refs: []object.Ref{featureRef("a", 0)}})
	if err != nil {
		t.Fatal(err)
	}
	leafID, _, err := store.WriteObject(db, leaf)
	if err != nil {
		t.Fatal(err)
	}
	root, err := src.Codec.EncodeTree(&object.TreeNode{Size: 2, Buckets: []object.Bucket{{Index: 3, ID: leafID, Size: 2}}})
	if err != nil {
		t.Fatal(err)
	}
	rootID, _, err := store.WriteObject(db, root)
	if err != nil {
		t.Fatal(err)
	}

	tr, err := Load(src, rootID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := tr.Refs(nil); !errors.Is(err, object.ErrCorruptObject) {
		t.Fatalf("Refs: %v, want ErrCorruptObject", err)
	}
}

func TestLoadMissingTree(t *testing.T) {
	src, _ := newSource(t)
	_, err := Load(src, object.HashString("nope"))
	if !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("Load missing: %v, want ErrObjectNotFound", err)
	}
}

func TestDump(t *testing.T) {
	src, _ := newSource(t)
	tr := buildTree(t, src, namesRange(0, 600))
	mustWrite(t, tr)

	var sb strings.Builder
	if err := tr.Dump(&sb, 0); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	out := sb.String()
	if !strings.Contains(out, "internal size=600") {
		t.Fatalf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "  bucket ") {
		t.Fatalf("missing bucket lines:\n%s", out)
	}
	if strings.Contains(out, "Feature.") {
		t.Fatalf("depth-limited dump descended into buckets:\n%s", out)
	}
}
