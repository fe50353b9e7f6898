package diff

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/odvcencio/geogot/pkg/feature"
	"github.com/odvcencio/geogot/pkg/object"
)

// Format writes one line per change:
//
//	+ name        (added)
//	~ name        (modified)
//	- name        (removed)
func Format(w io.Writer, changes []Change) error {
	for _, c := range changes {
		marker, label := markerLabel(c.Type)
		if _, err := fmt.Fprintf(w, "  %s %s     (%s)\n", marker, c.Path, label); err != nil {
			return err
		}
	}
	return nil
}

// FormatNameStatus writes "<TYPE> <old> <new> <path>" lines with short ids,
// a compact machine-friendly listing.
func FormatNameStatus(w io.Writer, changes []Change) error {
	for _, c := range changes {
		if _, err := fmt.Fprintf(w, "%-6s %s %s %s\n", c.Type, shortOrDash(c.Old.ID), shortOrDash(c.New.ID), c.Path); err != nil {
			return err
		}
	}
	return nil
}

// FormatSummary renders counts, e.g. "3 added, 1 modified, 0 removed".
func FormatSummary(s Summary) string {
	return fmt.Sprintf("%d added, %d modified, %d removed", s.Added, s.Modified, s.Removed)
}

// FeatureLoader reads a feature blob by id.
type FeatureLoader func(id object.ID) (*feature.Feature, error)

// FormatPatch writes a property-level patch. Modified features show only the
// properties that changed; added and removed features are shown in full.
//
//	--- a/name
//	+++ b/name
//	-prop = old
//	+prop = new
func FormatPatch(w io.Writer, changes []Change, load FeatureLoader) error {
	var b strings.Builder
	for _, c := range changes {
		var before, after *feature.Feature
		var err error
		if c.Type != Added {
			if before, err = load(c.Old.ID); err != nil {
				return fmt.Errorf("patch %s: %w", c.Path, err)
			}
			fmt.Fprintf(&b, "--- a/%s\n", c.Path)
		}
		if c.Type != Removed {
			if after, err = load(c.New.ID); err != nil {
				return fmt.Errorf("patch %s: %w", c.Path, err)
			}
			fmt.Fprintf(&b, "+++ b/%s\n", c.Path)
		}
		for _, l := range propertyLines(before, after) {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// propertyLines lists removed and added property renderings in name order.
// Either side may be nil.
func propertyLines(before, after *feature.Feature) []string {
	oldLines := renderLines(before)
	newLines := renderLines(after)
	names := make(map[string]struct{}, len(oldLines)+len(newLines))
	for k := range oldLines {
		names[k] = struct{}{}
	}
	for k := range newLines {
		names[k] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []string
	for _, name := range sorted {
		o, inOld := oldLines[name]
		n, inNew := newLines[name]
		if inOld && inNew && o == n {
			continue
		}
		if inOld {
			out = append(out, "-"+o)
		}
		if inNew {
			out = append(out, "+"+n)
		}
	}
	return out
}

// geometryKey sorts after every property name.
const geometryKey = "\xffgeometry"

func renderLines(f *feature.Feature) map[string]string {
	out := make(map[string]string)
	if f == nil {
		return out
	}
	for name, v := range f.Properties {
		out[name] = fmt.Sprintf("%s = %s", name, feature.FormatValue(v))
	}
	if f.Geometry != nil {
		out[geometryKey] = "geometry = " + f.Geometry.WKT()
	}
	return out
}

func markerLabel(t ChangeType) (string, string) {
	switch t {
	case Added:
		return "+", "added"
	case Removed:
		return "-", "removed"
	default:
		return "~", "modified"
	}
}

func shortOrDash(id object.ID) string {
	if id.IsNull() {
		return "--------"
	}
	return id.Short()
}
