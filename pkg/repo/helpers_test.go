package repo

import (
	"testing"
	"time"

	"github.com/odvcencio/geogot/pkg/feature"
	"github.com/odvcencio/geogot/pkg/object"
)

// testClock advances one millisecond per call so successive commits never
// share a timestamp.
func testClock() func() time.Time {
	var tick int64
	return func() time.Time {
		tick++
		return time.UnixMilli(1_700_000_000_000 + tick)
	}
}

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := NewMemory(WithClock(testClock()))
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return r
}

func testFeature(t *testing.T, value string) *feature.Feature {
	t.Helper()
	f := feature.New()
	if err := f.Set("value", value); err != nil {
		t.Fatalf("Set: %v", err)
	}
	return f
}

// put inserts name=value features into the working tree.
func put(t *testing.T, r *Repo, pairs ...string) {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatalf("put: odd number of arguments")
	}
	inputs := make([]FeatureInput, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		inputs = append(inputs, FeatureInput{Name: pairs[i], Feature: testFeature(t, pairs[i+1])})
	}
	if _, err := r.Insert(inputs...); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

// commitAll stages every working-tree change and commits it.
func commitAll(t *testing.T, r *Repo, message string) object.ID {
	t.Helper()
	if _, err := r.Stage(nil); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	id, err := r.Commit(message, "tester")
	if err != nil {
		t.Fatalf("Commit(%q): %v", message, err)
	}
	return id
}

// valueAt reads the "value" property of name in the HEAD tree, "" when
// absent.
func valueAt(t *testing.T, r *Repo, name string) string {
	t.Helper()
	tree, err := r.HeadTree()
	if err != nil {
		t.Fatalf("HeadTree: %v", err)
	}
	f, _, err := r.GetFeature(tree, name)
	if err != nil {
		return ""
	}
	v, _ := f.Properties["value"].(string)
	return v
}

func mustCheckout(t *testing.T, r *Repo, target string) {
	t.Helper()
	if err := r.Checkout(target, false); err != nil {
		t.Fatalf("Checkout(%q): %v", target, err)
	}
}

func mustBranch(t *testing.T, r *Repo, name string, at object.ID) {
	t.Helper()
	if err := r.CreateBranch(name, at); err != nil {
		t.Fatalf("CreateBranch(%q): %v", name, err)
	}
}
