// Package feature is the default record type stored in feature blobs: a set
// of typed properties plus an optional geometry.
package feature

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
)

// GeometryType names the supported geometry shapes.
type GeometryType byte

const (
	GeometryPoint      GeometryType = 1
	GeometryLineString GeometryType = 2
	GeometryPolygon    GeometryType = 3
)

func (g GeometryType) String() string {
	switch g {
	case GeometryPoint:
		return "POINT"
	case GeometryLineString:
		return "LINESTRING"
	case GeometryPolygon:
		return "POLYGON"
	default:
		return fmt.Sprintf("GEOMETRY(%d)", byte(g))
	}
}

// Coord is an x/y pair.
type Coord struct{ X, Y float64 }

// Geometry is a single shape. Polygons carry one closed outer ring.
type Geometry struct {
	Type   GeometryType
	Coords []Coord
}

// Bounds returns the envelope of the geometry, or nil when it has no
// coordinates.
func (g *Geometry) Bounds() *object.Bounds {
	if g == nil || len(g.Coords) == 0 {
		return nil
	}
	b := object.Bounds{
		MinX: math.Inf(1), MaxX: math.Inf(-1),
		MinY: math.Inf(1), MaxY: math.Inf(-1),
	}
	for _, c := range g.Coords {
		b.MinX = math.Min(b.MinX, c.X)
		b.MaxX = math.Max(b.MaxX, c.X)
		b.MinY = math.Min(b.MinY, c.Y)
		b.MaxY = math.Max(b.MaxY, c.Y)
	}
	return &b
}

// WKT renders the geometry as well-known text.
func (g *Geometry) WKT() string {
	if g == nil {
		return "EMPTY"
	}
	var sb strings.Builder
	sb.WriteString(g.Type.String())
	sb.WriteString("(")
	if g.Type == GeometryPolygon {
		sb.WriteString("(")
	}
	for i, c := range g.Coords {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatFloat(c.X))
		sb.WriteString(" ")
		sb.WriteString(formatFloat(c.Y))
	}
	if g.Type == GeometryPolygon {
		sb.WriteString(")")
	}
	sb.WriteString(")")
	return sb.String()
}

// Feature is one versioned record. ID is filled in when the feature is read
// back from the object database; it is not part of the encoding.
type Feature struct {
	ID         object.ID
	Properties map[string]any
	Geometry   *Geometry
}

// New returns a feature with an empty property set.
func New() *Feature {
	return &Feature{Properties: make(map[string]any)}
}

// Set stores a property after normalizing its Go type. Supported values are
// nil, bool, integers, floats, string and []byte.
func (f *Feature) Set(name string, v any) error {
	nv, err := normalize(v)
	if err != nil {
		return fmt.Errorf("feature property %q: %w", name, err)
	}
	if f.Properties == nil {
		f.Properties = make(map[string]any)
	}
	f.Properties[name] = nv
	return nil
}

// Bounds is the envelope of the feature's geometry.
func (f *Feature) Bounds() *object.Bounds {
	return f.Geometry.Bounds()
}

// Names returns property names in ascending order.
func (f *Feature) Names() []string {
	names := make([]string, 0, len(f.Properties))
	for k := range f.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders one property per line followed by the geometry.
func (f *Feature) String() string {
	var sb strings.Builder
	for _, name := range f.Names() {
		fmt.Fprintf(&sb, "%s = %s\n", name, FormatValue(f.Properties[name]))
	}
	if f.Geometry != nil {
		fmt.Fprintf(&sb, "geometry = %s\n", f.Geometry.WKT())
	}
	return sb.String()
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, float64, string:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case []byte:
		return append([]byte(nil), x...), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// FormatValue renders a property value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case []byte:
		return fmt.Sprintf("0x%x", x)
	case float64:
		return formatFloat(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
