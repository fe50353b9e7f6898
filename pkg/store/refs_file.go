package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// FileRefs keeps each ref in its own file under dir (HEAD, refs/heads/main,
// ...) and appends every update to logs/<name>.
type FileRefs struct {
	dir string
}

// NewFileRefs returns a ref database rooted at dir.
func NewFileRefs(dir string) *FileRefs {
	return &FileRefs{dir: dir}
}

func (f *FileRefs) refPath(name string) string {
	return filepath.Join(f.dir, filepath.FromSlash(name))
}

func (f *FileRefs) ReadRef(name string) (string, error) {
	v, ok, err := readRefFile(f.refPath(name))
	if err != nil {
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}
	if !ok {
		return "", fmt.Errorf("read ref %q: %w", name, ErrRefNotFound)
	}
	return v, nil
}

func (f *FileRefs) SetRef(name, value, reason string) error {
	return f.update(name, value, reason, false, "")
}

func (f *FileRefs) CompareAndSwapRef(name, old, value, reason string) error {
	return f.update(name, value, reason, true, old)
}

// update writes a ref using lockfile + rename atomic semantics. When cas is
// set the update only succeeds if the current value matches expectedOld.
//
// The reflog append happens after the rename; if it fails the ref update
// stays committed and the error says so.
func (f *FileRefs) update(name, value, reason string, cas bool, expectedOld string) error {
	if err := validRefName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	refPath := f.refPath(name)
	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	old, _, err := readRefFile(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old value: %w", name, err)
	}
	if cas && old != expectedOld {
		return casMismatch(name, expectedOld, old)
	}

	if _, err := lockFile.WriteString(value + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := f.appendReflog(name, old, value, reason); err != nil {
		return fmt.Errorf("update ref %q: ref updated but reflog append failed: %w", name, err)
	}
	return nil
}

func (f *FileRefs) DeleteRef(name string) (bool, error) {
	err := os.Remove(f.refPath(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("delete ref %q: %w", name, err)
}

// ListRefs walks the ref directory. Names are slash-separated and relative
// to the root, e.g. "refs/heads/main".
func (f *FileRefs) ListRefs(prefix string) (map[string]string, error) {
	refs := make(map[string]string)
	err := filepath.WalkDir(f.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(f.dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if d.IsDir() {
			if name == "logs" || name == "objects" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isRefFileName(name) || !strings.HasPrefix(name, prefix) {
			return nil
		}
		v, ok, err := readRefFile(path)
		if err != nil {
			return err
		}
		if ok {
			refs[name] = v
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return refs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// isRefFileName accepts refs/... and the upper-case pseudo refs at the top
// level (HEAD, WORK_HEAD, ...), skipping config, databases and lock files.
func isRefFileName(name string) bool {
	if strings.HasSuffix(name, ".lock") {
		return false
	}
	if strings.HasPrefix(name, "refs/") {
		return true
	}
	if strings.Contains(name, "/") || name == "" {
		return false
	}
	return strings.ToUpper(name) == name && !strings.Contains(name, ".")
}

func (f *FileRefs) appendReflog(name, old, value, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "update"
	}
	logPath := filepath.Join(f.dir, "logs", filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("reflog mkdir: %w", err)
	}
	line := fmt.Sprintf("%s\t%s\t%d\t%s\n", reflogValue(old), reflogValue(value), time.Now().UnixMilli(), reason)

	lf, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reflog open: %w", err)
	}
	defer lf.Close()
	if _, err := lf.WriteString(line); err != nil {
		return fmt.Errorf("reflog write: %w", err)
	}
	return nil
}

func (f *FileRefs) ReadReflog(name string, limit int) ([]ReflogEntry, error) {
	lf, err := os.Open(filepath.Join(f.dir, "logs", filepath.FromSlash(name)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer lf.Close()

	var entries []ReflogEntry
	scanner := bufio.NewScanner(lf)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "\t", 4)
		if len(parts) < 4 {
			continue
		}
		ts, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, ReflogEntry{Ref: name, Old: parts[0], New: parts[1], Timestamp: ts, Reason: parts[3]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}

	// Return newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefFile(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return strings.TrimRight(string(data), "\n"), true, nil
}
