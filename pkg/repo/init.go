package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/geogot/pkg/store"
)

// DirName is the repository metadata directory.
const DirName = ".geogot"

// sqliteFile holds objects, refs and the ref log for the sqlite backend.
const sqliteFile = "objects.db"

// InitOptions choose the storage layout of a new repository.
type InitOptions struct {
	Storage  string // StorageLoose (default) or StorageSQLite
	Compress bool   // zstd-compress loose objects
	Branch   string // initial branch, DefaultBranch when empty
}

// Init creates a new repository at path. It creates the .geogot/ directory
// with config.toml and a HEAD pointing at the initial branch. Returns an
// error if a .geogot/ directory already exists.
func Init(path string, o InitOptions, opts ...Option) (*Repo, error) {
	dir := filepath.Join(path, DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, "refs", "heads"), 0o755); err != nil {
		return nil, fmt.Errorf("init: mkdir: %w", err)
	}

	cfg := DefaultConfig()
	if o.Storage != "" {
		cfg.Core.Storage = o.Storage
	}
	cfg.Core.Compress = o.Compress
	switch cfg.Core.Storage {
	case StorageLoose, StorageSQLite:
	default:
		return nil, fmt.Errorf("init: unknown storage %q", cfg.Core.Storage)
	}
	if err := WriteConfig(dir, cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	r, err := openDir(path, dir, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	branch := o.Branch
	if branch == "" {
		branch = DefaultBranch
	}
	if err := r.Refs.SetRef(HeadRef, store.SymbolicPrefix+BranchPrefix+branch, "init"); err != nil {
		r.Close()
		return nil, fmt.Errorf("init: write HEAD: %w", err)
	}
	r.log.Infow("initialized repository", "dir", dir, "storage", cfg.Core.Storage)
	return r, nil
}

// Open searches upward from path for a .geogot/ directory and opens the
// repository. Returns an error if no .geogot/ directory is found.
func Open(path string, opts ...Option) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		dir := filepath.Join(cur, DirName)
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			cfg, err := ReadConfig(dir)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			r, err := openDir(cur, dir, cfg, opts)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			return r, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("open: %w", err)
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, fmt.Errorf("open: not a geogot repository (or any parent up to /)")
		}
		cur = parent
	}
}

func openDir(root, dir string, cfg *Config, opts []Option) (*Repo, error) {
	switch cfg.Core.Storage {
	case StorageSQLite:
		db, err := store.NewSQLite(filepath.Join(dir, sqliteFile))
		if err != nil {
			return nil, err
		}
		r := newRepo(db, db, cfg, opts)
		r.Root, r.Dir = root, dir
		return r, nil
	default:
		db, err := store.NewLoose(dir, store.WithCompression(cfg.Core.Compress))
		if err != nil {
			return nil, err
		}
		r := newRepo(db, store.NewFileRefs(dir), cfg, opts)
		r.Root, r.Dir = root, dir
		return r, nil
	}
}
