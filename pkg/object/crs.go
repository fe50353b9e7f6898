package object

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CRSCacheSize bounds the per-codec CRS cache. Entries of one feature type
// share a CRS, so a handful of slots absorbs almost every lookup.
const CRSCacheSize = 3

// CRS is a resolved coordinate reference system.
type CRS struct {
	Authority string // e.g. "EPSG"
	Code      int
	// LonLat is true for geographic systems with longitude-first axis order.
	LonLat bool
}

// Identifier returns the canonical "AUTHORITY:CODE" form.
func (c CRS) Identifier() string {
	return c.Authority + ":" + strconv.Itoa(c.Code)
}

// CRSResolver turns an identifier string into a CRS. Resolution may be
// expensive (database lookups, WKT parsing), which is why Codec memoizes it.
type CRSResolver interface {
	ResolveCRS(identifier string) (CRS, error)
}

// CRSResolverFunc adapts a function to CRSResolver.
type CRSResolverFunc func(identifier string) (CRS, error)

func (f CRSResolverFunc) ResolveCRS(identifier string) (CRS, error) {
	return f(identifier)
}

// AuthorityResolver understands "EPSG:4326", "urn:ogc:def:crs:EPSG::4326",
// "http://www.opengis.net/def/crs/EPSG/0/4326" and "CRS:84".
type AuthorityResolver struct{}

func (AuthorityResolver) ResolveCRS(identifier string) (CRS, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return CRS{}, fmt.Errorf("resolve crs: empty identifier")
	}
	upper := strings.ToUpper(id)
	if upper == "CRS:84" || upper == "OGC:CRS84" || strings.HasSuffix(upper, "OGC:1.3:CRS84") {
		return CRS{Authority: "EPSG", Code: 4326, LonLat: true}, nil
	}

	var authority, code string
	switch {
	case strings.HasPrefix(upper, "URN:OGC:DEF:CRS:"):
		parts := strings.Split(id, ":")
		if len(parts) < 6 {
			return CRS{}, fmt.Errorf("resolve crs %q: malformed urn", id)
		}
		authority, code = parts[4], parts[len(parts)-1]
	case strings.HasPrefix(upper, "HTTP://WWW.OPENGIS.NET/DEF/CRS/"):
		parts := strings.Split(strings.TrimRight(id, "/"), "/")
		if len(parts) < 3 {
			return CRS{}, fmt.Errorf("resolve crs %q: malformed uri", id)
		}
		authority, code = parts[len(parts)-3], parts[len(parts)-1]
	default:
		var ok bool
		authority, code, ok = strings.Cut(id, ":")
		if !ok {
			return CRS{}, fmt.Errorf("resolve crs %q: expected AUTHORITY:CODE", id)
		}
	}

	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil || n <= 0 {
		return CRS{}, fmt.Errorf("resolve crs %q: bad code %q", id, code)
	}
	authority = strings.ToUpper(strings.TrimSpace(authority))
	return CRS{Authority: authority, Code: n, LonLat: authority == "EPSG" && n == 4326}, nil
}

// crsCache memoizes resolver results with least-recently-used eviction.
type crsCache struct {
	resolver CRSResolver
	entries  *lru.Cache[string, CRS]
	misses   atomic.Int64
}

func newCRSCache(resolver CRSResolver, size int) *crsCache {
	if resolver == nil {
		resolver = AuthorityResolver{}
	}
	if size <= 0 {
		size = CRSCacheSize
	}
	entries, err := lru.New[string, CRS](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &crsCache{resolver: resolver, entries: entries}
}

func (c *crsCache) resolve(identifier string) (CRS, error) {
	if crs, ok := c.entries.Get(identifier); ok {
		return crs, nil
	}
	c.misses.Add(1)
	crs, err := c.resolver.ResolveCRS(identifier)
	if err != nil {
		return CRS{}, err
	}
	c.entries.Add(identifier, crs)
	return crs, nil
}
