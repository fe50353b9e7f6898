package remote

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/geogot/pkg/object"
)

// NoBranches is the branch list sent when no branch state is known.
const NoBranches = "HEAD"

// FormatBranchList renders heads as a comma-separated "name:id" list sorted
// by name, or NoBranches when heads is empty.
func FormatBranchList(heads map[string]object.ID) string {
	if len(heads) == 0 {
		return NoBranches
	}
	names := make([]string, 0, len(heads))
	for name := range heads {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ":" + heads[name].String()
	}
	return strings.Join(parts, ",")
}

// ParseBranchList parses the output of FormatBranchList. NoBranches and the
// empty string give an empty map.
func ParseBranchList(raw string) (map[string]object.ID, error) {
	heads := make(map[string]object.ID)
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == NoBranches {
		return heads, nil
	}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		i := strings.LastIndexByte(item, ':')
		if i <= 0 {
			return nil, fmt.Errorf("parse branch list: malformed entry %q", item)
		}
		name := item[:i]
		id, err := object.ParseID(item[i+1:])
		if err != nil {
			return nil, fmt.Errorf("parse branch list: entry %q: %w", item, err)
		}
		if _, dup := heads[name]; dup {
			return nil, fmt.Errorf("parse branch list: duplicate branch %q", name)
		}
		heads[name] = id
	}
	return heads, nil
}
