package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const (
	refA = "1111111111111111111111111111111111111111"
	refB = "2222222222222222222222222222222222222222"
)

func exerciseRefs(t *testing.T, refs RefDatabase) {
	t.Helper()

	if _, err := refs.ReadRef("refs/heads/main"); !errors.Is(err, ErrRefNotFound) {
		t.Fatalf("ReadRef missing: %v, want ErrRefNotFound", err)
	}

	if err := refs.CompareAndSwapRef("refs/heads/main", "", refA, "create"); err != nil {
		t.Fatalf("CAS create: %v", err)
	}
	if err := refs.CompareAndSwapRef("refs/heads/main", "", refB, "create again"); !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("CAS create over existing: %v, want ErrRefCASMismatch", err)
	}
	if err := refs.CompareAndSwapRef("refs/heads/main", refB, refA, "stale"); !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("CAS stale: %v, want ErrRefCASMismatch", err)
	}
	if err := refs.CompareAndSwapRef("refs/heads/main", refA, refB, "advance"); err != nil {
		t.Fatalf("CAS advance: %v", err)
	}
	got, err := refs.ReadRef("refs/heads/main")
	if err != nil || got != refB {
		t.Fatalf("ReadRef = %q, %v; want %q", got, err, refB)
	}

	if err := refs.SetRef("HEAD", SymbolicPrefix+"refs/heads/main", "init"); err != nil {
		t.Fatalf("SetRef HEAD: %v", err)
	}
	if err := refs.SetRef("refs/heads/dev", refA, "branch"); err != nil {
		t.Fatalf("SetRef dev: %v", err)
	}
	if err := refs.SetRef("bad ref", refA, ""); err == nil {
		t.Fatal("SetRef accepted a name with a space")
	}
	if err := refs.SetRef("refs/heads/a,b", refA, ""); err == nil {
		t.Fatal("SetRef accepted a name with a comma")
	}

	heads, err := refs.ListRefs("refs/heads/")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(heads) != 2 || heads["refs/heads/main"] != refB || heads["refs/heads/dev"] != refA {
		t.Fatalf("ListRefs(refs/heads/) = %v", heads)
	}
	all, err := refs.ListRefs("")
	if err != nil {
		t.Fatalf("ListRefs all: %v", err)
	}
	if all["HEAD"] != SymbolicPrefix+"refs/heads/main" {
		t.Fatalf("ListRefs all missing HEAD: %v", all)
	}

	log, err := refs.ReadReflog("refs/heads/main", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("reflog length = %d, want 2: %+v", len(log), log)
	}
	if log[0].Old != refA || log[0].New != refB || log[0].Reason != "advance" {
		t.Fatalf("newest reflog entry = %+v", log[0])
	}
	if log[1].Old != nullValue || log[1].New != refA {
		t.Fatalf("oldest reflog entry = %+v", log[1])
	}
	limited, err := refs.ReadReflog("refs/heads/main", 1)
	if err != nil || len(limited) != 1 || limited[0].Reason != "advance" {
		t.Fatalf("ReadReflog limit 1 = %+v, %v", limited, err)
	}

	deleted, err := refs.DeleteRef("refs/heads/dev")
	if err != nil || !deleted {
		t.Fatalf("DeleteRef = %v, %v", deleted, err)
	}
	deleted, err = refs.DeleteRef("refs/heads/dev")
	if err != nil || deleted {
		t.Fatalf("second DeleteRef = %v, %v", deleted, err)
	}
}

func TestMemoryRefs(t *testing.T) {
	exerciseRefs(t, NewMemoryRefs(nil))
}

func TestFileRefs(t *testing.T) {
	exerciseRefs(t, NewFileRefs(t.TempDir()))
}

func TestFileRefsLockReleasedAfterMismatch(t *testing.T) {
	dir := t.TempDir()
	refs := NewFileRefs(dir)
	if err := refs.SetRef("refs/heads/main", refA, "init"); err != nil {
		t.Fatal(err)
	}
	if err := refs.CompareAndSwapRef("refs/heads/main", refB, refA, "stale"); !errors.Is(err, ErrRefCASMismatch) {
		t.Fatalf("CAS stale: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "refs", "heads", "main.lock")); !os.IsNotExist(err) {
		t.Fatalf("lock file left behind: %v", err)
	}
	if err := refs.CompareAndSwapRef("refs/heads/main", refA, refB, "advance"); err != nil {
		t.Fatalf("CAS after mismatch: %v", err)
	}
}

func TestFileRefsListSkipsNonRefs(t *testing.T) {
	dir := t.TempDir()
	refs := NewFileRefs(dir)
	if err := refs.SetRef("WORK_HEAD", refA, "work"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"config.toml", "objects.db", "HEAD.lock"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "objects", "ab"), 0o755); err != nil {
		t.Fatal(err)
	}

	all, err := refs.ListRefs("")
	if err != nil {
		t.Fatalf("ListRefs: %v", err)
	}
	if len(all) != 1 || all["WORK_HEAD"] != refA {
		t.Fatalf("ListRefs = %v, want only WORK_HEAD", all)
	}
}
