package repo

import (
	"strings"

	"github.com/odvcencio/geogot/pkg/store"
)

// ReadReflog returns the update history of ref, newest first. An empty ref
// or "HEAD" means the branch HEAD points at (HEAD itself when detached);
// short names are taken as branches.
func (r *Repo) ReadReflog(ref string, limit int) ([]store.ReflogEntry, error) {
	return r.Refs.ReadReflog(r.resolveReflogRefName(ref), limit)
}

func (r *Repo) resolveReflogRefName(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == HeadRef {
		name, err := r.headRefName()
		if err != nil {
			return HeadRef
		}
		return name
	}
	if strings.HasPrefix(ref, "refs/") || isPseudoRef(ref) {
		return ref
	}
	return BranchPrefix + ref
}
