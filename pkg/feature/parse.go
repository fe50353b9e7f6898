package feature

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseWKT parses POINT, LINESTRING and single-ring POLYGON well-known text.
func ParseWKT(s string) (*Geometry, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("parse wkt %q: missing parentheses", s)
	}
	kind := strings.ToUpper(strings.TrimSpace(s[:open]))
	body := strings.TrimSpace(s[open+1 : len(s)-1])

	var g Geometry
	switch kind {
	case "POINT":
		g.Type = GeometryPoint
	case "LINESTRING":
		g.Type = GeometryLineString
	case "POLYGON":
		g.Type = GeometryPolygon
		if !strings.HasPrefix(body, "(") || !strings.HasSuffix(body, ")") {
			return nil, fmt.Errorf("parse wkt %q: polygon ring must be parenthesized", s)
		}
		body = strings.TrimSpace(body[1 : len(body)-1])
		if strings.ContainsAny(body, "()") {
			return nil, fmt.Errorf("parse wkt %q: only one polygon ring is supported", s)
		}
	default:
		return nil, fmt.Errorf("parse wkt %q: unsupported geometry %q", s, kind)
	}

	for _, pair := range strings.Split(body, ",") {
		fields := strings.Fields(pair)
		if len(fields) != 2 {
			return nil, fmt.Errorf("parse wkt %q: coordinate %q needs x and y", s, strings.TrimSpace(pair))
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse wkt %q: %w", s, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse wkt %q: %w", s, err)
		}
		g.Coords = append(g.Coords, Coord{X: x, Y: y})
	}

	switch g.Type {
	case GeometryPoint:
		if len(g.Coords) != 1 {
			return nil, fmt.Errorf("parse wkt %q: point needs exactly one coordinate", s)
		}
	case GeometryLineString:
		if len(g.Coords) < 2 {
			return nil, fmt.Errorf("parse wkt %q: linestring needs at least two coordinates", s)
		}
	case GeometryPolygon:
		if len(g.Coords) < 4 || g.Coords[0] != g.Coords[len(g.Coords)-1] {
			return nil, fmt.Errorf("parse wkt %q: polygon ring must be closed with at least four coordinates", s)
		}
	}
	return &g, nil
}

// ParseProperty splits "name=value" and infers the value type: null, true,
// false, integers and floats are recognized, quoted text is unquoted and
// anything else is kept as a string.
func ParseProperty(s string) (string, any, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("parse property %q: expected name=value", s)
	}
	raw = strings.TrimSpace(raw)
	switch raw {
	case "null":
		return name, nil, nil
	case "true":
		return name, true, nil
	case "false":
		return name, false, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return name, i, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return name, f, nil
	}
	if len(raw) >= 2 && raw[0] == '"' {
		if u, err := strconv.Unquote(raw); err == nil {
			return name, u, nil
		}
	}
	return name, raw, nil
}
