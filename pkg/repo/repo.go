// Package repo is the repository facade: it ties the object database, ref
// database and codec together and implements history, staging, commits,
// merges, rebases and garbage collection on top of RevTrees.
package repo

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/odvcencio/geogot/pkg/feature"
	"github.com/odvcencio/geogot/pkg/object"
	"github.com/odvcencio/geogot/pkg/revtree"
	"github.com/odvcencio/geogot/pkg/store"
)

// Well-known ref names.
const (
	HeadRef      = "HEAD"
	WorkHeadRef  = "WORK_HEAD"  // unstaged working tree
	StageHeadRef = "STAGE_HEAD" // staged tree
	OrigHeadRef  = "ORIG_HEAD"  // head before the last merge, rebase or reset

	BranchPrefix = "refs/heads/"
	TagPrefix    = "refs/tags/"
	RemotePrefix = "refs/remotes/"

	DefaultBranch = "main"
)

// Repo represents an opened repository.
type Repo struct {
	Root    string // directory holding .geogot; empty for in-memory repos
	Dir     string // .geogot directory
	Objects store.Database
	Refs    store.RefDatabase
	Codec   *object.Codec
	Config  *Config

	log *zap.SugaredLogger
	now func() time.Time

	traversalOnce sync.Once
	traversal     *traversalState
}

// Option configures a Repo.
type Option func(*Repo)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Repo) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock replaces time.Now for commit and reflog timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repo) {
		if now != nil {
			r.now = now
		}
	}
}

func newRepo(objects store.Database, refs store.RefDatabase, cfg *Config, opts []Option) *Repo {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	r := &Repo{
		Objects: objects,
		Refs:    refs,
		Codec:   object.NewCodec(feature.Codec{}),
		Config:  cfg,
		log:     zap.NewNop().Sugar(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewMemory returns a repository held entirely in memory with HEAD on the
// default branch.
func NewMemory(opts ...Option) (*Repo, error) {
	r := newRepo(store.NewMemory(), nil, nil, opts)
	r.Refs = store.NewMemoryRefs(func() int64 { return r.now().UnixMilli() })
	if err := r.Refs.SetRef(HeadRef, store.SymbolicPrefix+BranchPrefix+DefaultBranch, "init"); err != nil {
		return nil, err
	}
	return r, nil
}

// Source returns the tree source reading and writing the repository's
// object database.
func (r *Repo) Source() revtree.Source {
	return revtree.Source{DB: r.Objects, Codec: r.Codec}
}

// Update runs fn with a tree source bound to one write transaction when the
// object database supports them. All objects fn writes become visible
// together, or not at all if fn fails.
func (r *Repo) Update(fn func(src revtree.Source) error) error {
	return store.Update(r.Objects, func(objs store.Objects) error {
		return fn(revtree.Source{DB: objs, Codec: r.Codec})
	})
}

// Close releases storage handles. A SQLite database serving both objects
// and refs is closed once.
func (r *Repo) Close() error {
	if r.Objects == nil {
		return nil
	}
	return r.Objects.Close()
}

func (r *Repo) getTraversalState() *traversalState {
	r.traversalOnce.Do(func() {
		r.traversal = newTraversalState()
	})
	return r.traversal
}
