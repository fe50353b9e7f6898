package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/odvcencio/geogot/pkg/feature"
	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/revtree"
	"github.com/odvcencio/geogot/pkg/store"
)

func testSource() revtree.Source {
	return revtree.Source{DB: store.NewMemory(), Codec: object.NewCodec(feature.Codec{})}
}

func ref(name string, id object.ID) object.Ref {
	return object.Ref{Name: name, ID: id, Type: object.TypeFeature}
}

func writeTree(t *testing.T, src revtree.Source, refs ...object.Ref) object.ID {
	t.Helper()
	tr := revtree.New(src)
	for _, r := range refs {
		if err := tr.Put(r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	id, err := tr.Write()
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return id
}

type pathType struct {
	Path string
	Type ChangeType
}

func summarize(changes []Change) []pathType {
	out := make([]pathType, 0, len(changes))
	for _, c := range changes {
		out = append(out, pathType{c.Path, c.Type})
	}
	return out
}

func TestModifyAndAdd(t *testing.T) {
	src := testSource()
	id1, id2, id3, id4 := object.HashString("1"), object.HashString("2"), object.HashString("3"), object.HashString("4")

	a := writeTree(t, src, ref("x", id1), ref("y", id2))
	b := writeTree(t, src, ref("x", id1), ref("y", id3), ref("z", id4))

	changes, err := Collect(src, a, b, nil)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []pathType{{"y", Modified}, {"z", Added}}
	if diff := cmp.Diff(want, summarize(changes)); diff != "" {
		t.Fatalf("changes mismatch (-want +got):\n%s", diff)
	}
	if changes[0].Old.ID != id2 || changes[0].New.ID != id3 {
		t.Fatalf("modify carries %s -> %s", changes[0].Old.ID, changes[0].New.ID)
	}

	back, err := Collect(src, b, a, nil)
	if err != nil {
		t.Fatalf("Collect reverse: %v", err)
	}
	want = []pathType{{"y", Modified}, {"z", Removed}}
	if diff := cmp.Diff(want, summarize(back)); diff != "" {
		t.Fatalf("reverse mismatch (-want +got):\n%s", diff)
	}
}

func TestIdenticalTreesYieldNothing(t *testing.T) {
	src := testSource()
	a := writeTree(t, src, ref("x", object.HashString("1")))
	changes, err := Collect(src, a, a, nil)
	if err != nil || len(changes) != 0 {
		t.Fatalf("Collect(a, a) = %v, %v", changes, err)
	}
}

func TestNullIDIsEmptyTree(t *testing.T) {
	src := testSource()
	a := writeTree(t, src, ref("x", object.HashString("1")), ref("y", object.HashString("2")))

	changes, err := Collect(src, object.NullID, a, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []pathType{{"x", Added}, {"y", Added}}
	if diff := cmp.Diff(want, summarize(changes)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func bigRefs(n, version int) []object.Ref {
	out := make([]object.Ref, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Feature.%d", i)
		out = append(out, ref(name, object.HashString(fmt.Sprintf("%s@%d", name, version))))
	}
	return out
}

func TestInternalTreesShortCircuit(t *testing.T) {
	src := testSource()
	base := bigRefs(1100, 0)
	a := writeTree(t, src, base...)

	changed := append([]object.Ref(nil), base...)
	changed[7] = ref("Feature.7", object.HashString("new"))
	changed = append(changed, ref("Feature.extra", object.HashString("extra")))
	b := writeTree(t, src, changed...)

	// Count reads to show unchanged buckets are skipped.
	counting := &countingObjects{Objects: src.DB}
	csrc := revtree.Source{DB: counting, Codec: src.Codec}
	changes, err := Collect(csrc, a, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []pathType{{"Feature.7", Modified}, {"Feature.extra", Added}}
	if revtree.BucketIndex("Feature.extra", 0) < revtree.BucketIndex("Feature.7", 0) {
		want[0], want[1] = want[1], want[0]
	}
	if diff := cmp.Diff(want, summarize(changes)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	// Two roots plus at most two changed buckets per side.
	if counting.gets > 6 {
		t.Fatalf("diff read %d objects, want at most 6", counting.gets)
	}
}

type countingObjects struct {
	store.Objects
	gets int
}

func (c *countingObjects) Get(id object.ID) ([]byte, error) {
	c.gets++
	return c.Objects.Get(id)
}

func TestLeafAgainstInternal(t *testing.T) {
	src := testSource()
	small := bigRefs(100, 0)
	large := bigRefs(600, 0)
	large[3] = ref("Feature.3", object.HashString("changed"))
	a := writeTree(t, src, small...)
	b := writeTree(t, src, large...)

	changes, err := Collect(src, a, b, nil)
	if err != nil {
		t.Fatal(err)
	}
	s := Summarize(changes)
	if s.Added != 500 || s.Modified != 1 || s.Removed != 0 {
		t.Fatalf("summary = %+v", s)
	}

	back, err := Collect(src, b, a, nil)
	if err != nil {
		t.Fatal(err)
	}
	s = Summarize(back)
	if s.Added != 0 || s.Modified != 1 || s.Removed != 500 {
		t.Fatalf("reverse summary = %+v", s)
	}
}

func TestFilterAndEarlyStop(t *testing.T) {
	src := testSource()
	a := writeTree(t, src)
	b := writeTree(t, src, bigRefs(50, 0)...)

	changes, err := Collect(src, a, b, revtree.PrefixFilter("Feature.1"))
	if err != nil {
		t.Fatal(err)
	}
	// Feature.1 and Feature.10-19
	if len(changes) != 11 {
		t.Fatalf("filtered %d changes, want 11", len(changes))
	}

	n := 0
	for _, err := range Trees(src, a, b, nil) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("early stop saw %d", n)
	}
}

func TestMissingTreeErrors(t *testing.T) {
	src := testSource()
	a := writeTree(t, src, ref("x", object.HashString("1")))
	var gotErr error
	for _, err := range Trees(src, a, object.HashString("missing"), nil) {
		gotErr = err
	}
	if gotErr == nil {
		t.Fatal("diff against a missing tree succeeded")
	}
}

func TestFormat(t *testing.T) {
	changes := []Change{
		{Path: "a", Type: Added, New: ref("a", object.HashString("1"))},
		{Path: "b", Type: Modified},
		{Path: "c", Type: Removed},
	}
	var sb strings.Builder
	if err := Format(&sb, changes); err != nil {
		t.Fatal(err)
	}
	want := "  + a     (added)\n  ~ b     (modified)\n  - c     (removed)\n"
	if sb.String() != want {
		t.Fatalf("Format =\n%q\nwant\n%q", sb.String(), want)
	}
	if got := FormatSummary(Summarize(changes)); got != "1 added, 1 modified, 1 removed" {
		t.Fatalf("FormatSummary = %q", got)
	}
}

func TestFormatPatch(t *testing.T) {
	before := feature.New()
	_ = before.Set("name", "Elm")
	_ = before.Set("lanes", 2)
	after := feature.New()
	_ = after.Set("name", "Elm")
	_ = after.Set("lanes", 3)
	after.Geometry = &feature.Geometry{Type: feature.GeometryPoint, Coords: []feature.Coord{{X: 1, Y: 2}}}

	oldID, newID := object.HashString("old"), object.HashString("new")
	byID := map[object.ID]*feature.Feature{oldID: before, newID: after}
	load := func(id object.ID) (*feature.Feature, error) { return byID[id], nil }

	var sb strings.Builder
	err := FormatPatch(&sb, []Change{{
		Path: "road.1", Type: Modified,
		Old: ref("road.1", oldID), New: ref("road.1", newID),
	}}, load)
	if err != nil {
		t.Fatal(err)
	}
	want := "--- a/road.1\n+++ b/road.1\n-lanes = 2\n+lanes = 3\n+geometry = POINT(1 2)\n"
	if sb.String() != want {
		t.Fatalf("FormatPatch =\n%s\nwant\n%s", sb.String(), want)
	}
}
