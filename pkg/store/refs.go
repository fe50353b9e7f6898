package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRefCASMismatch is returned when a compare-and-swap finds a value
	// other than the expected one.
	ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")
	// ErrRefNotFound is returned for reads of refs that do not exist.
	ErrRefNotFound = errors.New("ref not found")
)

// SymbolicPrefix marks a ref whose value names another ref.
const SymbolicPrefix = "ref: "

// ReflogEntry records one ref update. Old and New are raw ref values; a
// missing value is written as the null id.
type ReflogEntry struct {
	Ref       string
	Old       string
	New       string
	Timestamp int64
	Reason    string
}

// RefDatabase stores mutable named pointers (branch heads, HEAD, staging
// trees), separately from immutable content. Values are either a hex object
// id or a symbolic "ref: <name>" indirection.
type RefDatabase interface {
	// ReadRef returns ErrRefNotFound when name is absent.
	ReadRef(name string) (string, error)
	// SetRef writes unconditionally.
	SetRef(name, value, reason string) error
	// CompareAndSwapRef writes only when the current value equals old. An
	// empty old requires the ref to be absent.
	CompareAndSwapRef(name, old, value, reason string) error
	DeleteRef(name string) (bool, error)
	// ListRefs returns refs whose names start with prefix.
	ListRefs(prefix string) (map[string]string, error)
	// ReadReflog returns entries newest first, at most limit when limit > 0.
	ReadReflog(name string, limit int) ([]ReflogEntry, error)
}

// nullValue fills reflog columns for refs that did not exist.
const nullValue = "0000000000000000000000000000000000000000"

func reflogValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return nullValue
	}
	return v
}

func casMismatch(name, want, found string) error {
	if want == "" {
		want = "<absent>"
	}
	if found == "" {
		found = "<absent>"
	}
	return fmt.Errorf("update ref %q: %w (expected %s, found %s)", name, ErrRefCASMismatch, want, found)
}

func validRefName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("ref name is empty")
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") ||
		strings.HasSuffix(name, ".lock") || strings.ContainsAny(name, " \t\n:,\\") {
		return fmt.Errorf("invalid ref name %q", name)
	}
	return nil
}

// MemoryRefs is an in-process RefDatabase.
type MemoryRefs struct {
	refs   map[string]string
	reflog map[string][]ReflogEntry
	now    func() int64
}

// NewMemoryRefs returns an empty ref database. now supplies reflog
// timestamps and may be nil.
func NewMemoryRefs(now func() int64) *MemoryRefs {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &MemoryRefs{refs: make(map[string]string), reflog: make(map[string][]ReflogEntry), now: now}
}

func (m *MemoryRefs) ReadRef(name string) (string, error) {
	v, ok := m.refs[name]
	if !ok {
		return "", fmt.Errorf("read ref %q: %w", name, ErrRefNotFound)
	}
	return v, nil
}

func (m *MemoryRefs) SetRef(name, value, reason string) error {
	if err := validRefName(name); err != nil {
		return err
	}
	old := m.refs[name]
	m.refs[name] = value
	m.reflog[name] = append(m.reflog[name], ReflogEntry{Ref: name, Old: reflogValue(old), New: reflogValue(value), Timestamp: m.now(), Reason: reason})
	return nil
}

func (m *MemoryRefs) CompareAndSwapRef(name, old, value, reason string) error {
	if cur := m.refs[name]; cur != old {
		return casMismatch(name, old, cur)
	}
	return m.SetRef(name, value, reason)
}

func (m *MemoryRefs) DeleteRef(name string) (bool, error) {
	if _, ok := m.refs[name]; !ok {
		return false, nil
	}
	delete(m.refs, name)
	return true, nil
}

func (m *MemoryRefs) ListRefs(prefix string) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range m.refs {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryRefs) ReadReflog(name string, limit int) ([]ReflogEntry, error) {
	src := m.reflog[name]
	out := make([]ReflogEntry, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
