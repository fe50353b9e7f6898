package repo

import (
	"fmt"

	"github.com/odvcencio/geogot/pkg/diff"
	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/revtree"
)

// LogEntry is a commit together with the changes it made to the features a
// log was filtered by.
type LogEntry struct {
	Commit  *object.Commit
	Changes []diff.Change
}

// LogFeatures walks first-parent history from start and returns up to limit
// commits that changed a feature accepted by filter, newest first. A commit
// is compared against its first parent; a root commit against the empty
// tree. limit <= 0 means no limit.
func (r *Repo) LogFeatures(start object.ID, limit int, filter revtree.Filter) ([]LogEntry, error) {
	var results []LogEntry
	for c, err := range r.LinearHistory(start) {
		if err != nil {
			return nil, fmt.Errorf("log features: %w", err)
		}
		parentTree, err := r.commitTree(c.FirstParent())
		if err != nil {
			return nil, fmt.Errorf("log features: %w", err)
		}
		changes, err := diff.Collect(r.Source(), parentTree, c.TreeID, filter)
		if err != nil {
			return nil, fmt.Errorf("log features: %s: %w", c.ID.Short(), err)
		}
		if len(changes) == 0 {
			continue
		}
		results = append(results, LogEntry{Commit: c, Changes: changes})
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}
