package store

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/klauspost/compress/zstd"

	"github.com/odvcencio/geogot/pkg/object"
)

// zstdMagic starts every zstd frame. Uncompressed objects start with an
// object type tag (0x01-0x04), so the two never collide.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Loose is a content-addressed object store with a 2-character fan-out
// directory layout: objects/ab/cdef0123...
//
// Objects are immutable once written, so a crash mid-write can at worst
// leave a stray temp file; an existing object is never rewritten unless the
// caller asks for overwrite.
type Loose struct {
	root     string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

// LooseOption configures a Loose store.
type LooseOption func(*Loose)

// WithCompression toggles zstd compression of newly written objects.
// Reads accept both forms regardless.
func WithCompression(on bool) LooseOption {
	return func(l *Loose) { l.compress = on }
}

// NewLoose creates a Loose store rooted at the given directory. The
// objects/ subdirectory is created lazily on first write.
func NewLoose(root string, opts ...LooseOption) (*Loose, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("loose store: zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("loose store: zstd reader: %w", err)
	}
	l := &Loose{root: root, compress: true, enc: enc, dec: dec}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// objectPath returns the filesystem path for a given id.
func (l *Loose) objectPath(id object.ID) string {
	h := id.String()
	return filepath.Join(l.root, "objects", h[:2], h[2:])
}

func (l *Loose) Exists(id object.ID) (bool, error) {
	_, err := os.Stat(l.objectPath(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("object stat %s: %w", id, err)
}

// Put writes atomically: data lands in a temp file that is renamed into
// place, so readers never observe a partial object.
func (l *Loose) Put(id object.ID, data []byte, overwrite bool) (bool, error) {
	if !overwrite {
		exists, err := l.Exists(id)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}

	dest := l.objectPath(id)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, fmt.Errorf("object write mkdir: %w", err)
	}

	payload := data
	if l.compress {
		payload = l.enc.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	if err := renameio.WriteFile(dest, payload, 0o644); err != nil {
		return false, fmt.Errorf("object write %s: %w", id, err)
	}
	return true, nil
}

func (l *Loose) Get(id object.ID) ([]byte, error) {
	raw, err := os.ReadFile(l.objectPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("object read %s: %w", id, err)
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		return raw, nil
	}
	data, err := l.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("object read %s: decompress: %w", id, err)
	}
	return data, nil
}

func (l *Loose) Delete(id object.ID) (bool, error) {
	err := os.Remove(l.objectPath(id))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("object delete %s: %w", id, err)
}

// LookupPrefix scans the single fan-out directory named by the first prefix
// byte.
func (l *Loose) LookupPrefix(prefix []byte) ([]object.ID, error) {
	if len(prefix) == 0 {
		return nil, fmt.Errorf("lookup prefix: empty prefix")
	}
	hexPrefix := hex.EncodeToString(prefix)
	dir := filepath.Join(l.root, "objects", hexPrefix[:2])
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup prefix %s: %w", hexPrefix, err)
	}
	var out []object.ID
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), hexPrefix[2:]) {
			continue
		}
		id, err := object.ParseID(hexPrefix[:2] + e.Name())
		if err != nil {
			continue // temp files and strays
		}
		out = append(out, id)
	}
	sortIDs(out)
	return out, nil
}

func (l *Loose) Walk(fn func(id object.ID) error) error {
	objectsDir := filepath.Join(l.root, "objects")
	fanout, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("walk objects: %w", err)
	}
	for _, d := range fanout {
		if !d.IsDir() || len(d.Name()) != 2 {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(objectsDir, d.Name()))
		if err != nil {
			return fmt.Errorf("walk objects %s: %w", d.Name(), err)
		}
		for _, e := range entries {
			id, err := object.ParseID(d.Name() + e.Name())
			if err != nil {
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Loose) Close() error {
	l.dec.Close()
	return l.enc.Close()
}
