package remote

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/store"
)

// MaxObjectSize bounds a single object payload read from a bundle.
const MaxObjectSize = 256 << 20

// ObjectRecord is one encoded object.
type ObjectRecord struct {
	ID   object.ID
	Type object.Type
	Data []byte
}

// BundleOptions configures WriteBundle.
type BundleOptions struct {
	// Compress wraps the stream in zstd.
	Compress bool
}

// BundleStats counts what a bundle carried.
type BundleStats struct {
	Commits  int
	Trees    int
	Features int
	Branches int
}

// Objects returns the number of object frames.
func (s BundleStats) Objects() int {
	return s.Commits + s.Trees + s.Features
}

func (s *BundleStats) count(t object.Type) {
	switch t {
	case object.TypeCommit:
		s.Commits++
	case object.TypeTree:
		s.Trees++
	case object.TypeFeature:
		s.Features++
	}
}

// WriteBundle writes every object reachable from the branch heads but not
// from have, commits first, then trees, then features, followed by one
// branch frame per head.
func WriteBundle(w io.Writer, objs store.Objects, codec *object.Codec, branches map[string]object.ID, have []object.ID, opts BundleOptions) (BundleStats, error) {
	var stats BundleStats
	roots := make([]object.ID, 0, len(branches))
	for _, id := range branches {
		roots = append(roots, id)
	}
	records, err := CollectObjects(objs, codec, roots, have)
	if err != nil {
		return stats, fmt.Errorf("write bundle: %w", err)
	}
	sortForBundle(records)

	sw, err := newStreamWriter(w, opts.Compress)
	if err != nil {
		return stats, fmt.Errorf("write bundle: %w", err)
	}
	for _, rec := range records {
		tag, ok := TagFor(rec.Type)
		if !ok {
			sw.Close()
			return stats, fmt.Errorf("write bundle: object %s: type %s cannot be sent", rec.ID.Short(), rec.Type)
		}
		if err := WriteFrame(sw, Frame{Tag: tag, ID: rec.ID, Payload: rec.Data}); err != nil {
			sw.Close()
			return stats, fmt.Errorf("write bundle: %w", err)
		}
		stats.count(rec.Type)
	}

	names := make([]string, 0, len(branches))
	for name := range branches {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := WriteFrame(sw, Frame{Tag: TagBranch, ID: branches[name], Payload: []byte(name)}); err != nil {
			sw.Close()
			return stats, fmt.Errorf("write bundle: %w", err)
		}
		stats.Branches++
	}
	if err := sw.Close(); err != nil {
		return stats, fmt.Errorf("write bundle: %w", err)
	}
	return stats, nil
}

// sortForBundle orders commits before trees before features, ids ascending
// within each type.
func sortForBundle(records []ObjectRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Type != records[j].Type {
			return records[i].Type < records[j].Type
		}
		return records[i].ID.Compare(records[j].ID) < 0
	})
}

// Bundle is what ReadBundle found in a stream.
type Bundle struct {
	// Branches maps advertised branch names to head commits.
	Branches map[string]object.ID
	Stats    BundleStats
	// Written counts objects that were new to the receiving database.
	Written int
}

// ReadBundle stores every object frame in objs and collects the branch
// frames. Each payload must hash to its frame id and carry the type its
// tag announces. Compressed and plain streams are both accepted.
func ReadBundle(r io.Reader, objs store.Objects) (*Bundle, error) {
	sr, err := newStreamReader(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	defer sr.Close()

	b := &Bundle{Branches: make(map[string]object.ID)}
	for {
		f, err := ReadFrame(sr, MaxObjectSize)
		if errors.Is(err, io.EOF) {
			return b, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read bundle: %w", err)
		}
		if f.Tag == TagBranch {
			name := string(f.Payload)
			if name == "" {
				return nil, fmt.Errorf("read bundle: %w: branch frame without a name", ErrFrame)
			}
			b.Branches[name] = f.ID
			b.Stats.Branches++
			continue
		}
		n, err := writeVerifiedObject(objs, f)
		if err != nil {
			return nil, fmt.Errorf("read bundle: %w", err)
		}
		b.Written += n
		t, _ := typeFor(f.Tag)
		b.Stats.count(t)
	}
}

func writeVerifiedObject(objs store.Objects, f Frame) (int, error) {
	want, ok := typeFor(f.Tag)
	if !ok {
		return 0, fmt.Errorf("%w: unknown tag %q", ErrFrame, f.Tag)
	}
	got, err := object.TypeOf(f.Payload)
	if err != nil {
		return 0, fmt.Errorf("object %s: %w", f.ID.Short(), err)
	}
	if got != want {
		return 0, fmt.Errorf("object %s: %w: tag %q carries a %s", f.ID.Short(), ErrFrame, f.Tag, got)
	}
	if computed := object.HashBytes(f.Payload); computed != f.ID {
		return 0, fmt.Errorf("object hash mismatch: expected %s, got %s", f.ID, computed)
	}
	inserted, err := objs.Put(f.ID, f.Payload, false)
	if err != nil {
		return 0, err
	}
	if inserted {
		return 1, nil
	}
	return 0, nil
}

// CollectObjects returns objects reachable from roots excluding anything
// reachable from stopRoots.
func CollectObjects(objs store.Objects, codec *object.Codec, roots, stopRoots []object.ID) ([]ObjectRecord, error) {
	roots = uniqueIDs(roots)
	stopSet, err := ReachableSet(objs, codec, stopRoots)
	if err != nil {
		return nil, err
	}

	seen := make(map[object.ID]struct{})
	stack := append([]object.ID(nil), roots...)
	records := make([]ObjectRecord, 0, 1024)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[id]; ok {
			continue
		}
		if _, stopped := stopSet[id]; stopped {
			continue
		}
		seen[id] = struct{}{}

		data, err := objs.Get(id)
		if err != nil {
			return nil, fmt.Errorf("read object %s: %w", id.Short(), err)
		}
		t, err := object.TypeOf(data)
		if err != nil {
			return nil, fmt.Errorf("read object %s: %w", id.Short(), err)
		}
		records = append(records, ObjectRecord{ID: id, Type: t, Data: data})

		refs, err := codec.References(id, data)
		if err != nil {
			return nil, err
		}
		stack = append(stack, refs...)
	}
	return records, nil
}

// ReachableSet returns all local object ids reachable from roots. Roots the
// database does not hold are ignored, so a peer's heads can be passed as-is.
func ReachableSet(objs store.Objects, codec *object.Codec, roots []object.ID) (map[object.ID]struct{}, error) {
	roots = uniqueIDs(roots)
	out := make(map[object.ID]struct{}, len(roots))
	stack := append([]object.ID(nil), roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := out[id]; ok {
			continue
		}
		data, err := objs.Get(id)
		if errors.Is(err, object.ErrObjectNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read object %s: %w", id.Short(), err)
		}
		out[id] = struct{}{}
		refs, err := codec.References(id, data)
		if err != nil {
			return nil, err
		}
		stack = append(stack, refs...)
	}
	return out, nil
}

func uniqueIDs(in []object.ID) []object.ID {
	seen := make(map[object.ID]struct{}, len(in))
	out := make([]object.ID, 0, len(in))
	for _, id := range in {
		if id.IsNull() {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
