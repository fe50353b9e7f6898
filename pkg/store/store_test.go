package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/geogot/pkg/object"
)

func idWithPrefix(prefix ...byte) object.ID {
	var id object.ID
	copy(id[:], prefix)
	id[object.IDSize-1] = 0x5a
	return id
}

func exerciseObjects(t *testing.T, db Database) {
	t.Helper()

	data := []byte{0x03, 'h', 'e', 'l', 'l', 'o'}
	id, inserted, err := WriteObject(db, data)
	if err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	if !inserted {
		t.Fatal("first write reported reuse")
	}
	if id != object.HashBytes(data) {
		t.Fatalf("id = %s, want hash of data", id)
	}

	_, inserted, err = WriteObject(db, data)
	if err != nil {
		t.Fatalf("WriteObject again: %v", err)
	}
	if inserted {
		t.Fatal("second write of identical bytes reported insertion")
	}

	got, err := db.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("Get = %x, want %x", got, data)
	}

	ok, err := db.Exists(id)
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v; want true", ok, err)
	}

	replacement := []byte{0x03, 'x'}
	inserted, err = db.Put(id, replacement, true)
	if err != nil || !inserted {
		t.Fatalf("Put overwrite = %v, %v; want true", inserted, err)
	}
	got, _ = db.Get(id)
	if !bytes.Equal(got, replacement) {
		t.Fatalf("after overwrite Get = %x", got)
	}

	deleted, err := db.Delete(id)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v; want true", deleted, err)
	}
	deleted, err = db.Delete(id)
	if err != nil || deleted {
		t.Fatalf("second Delete = %v, %v; want false", deleted, err)
	}

	_, err = db.Get(id)
	if !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("Get after delete: %v, want ErrObjectNotFound", err)
	}
	var nf *object.NotFoundError
	if !errors.As(err, &nf) || nf.ID != id {
		t.Fatalf("Get after delete: %v, want *NotFoundError for %s", err, id)
	}
}

func exercisePrefixLookup(t *testing.T, db Database) {
	t.Helper()

	a := idWithPrefix(0xab, 0xcd, 0x01)
	b := idWithPrefix(0xab, 0xcd, 0x02)
	c := idWithPrefix(0xab, 0xee)
	for _, id := range []object.ID{a, b, c} {
		if _, err := db.Put(id, []byte{0x03, id[2]}, false); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	got, err := ResolvePrefix(db, "abcd01")
	if err != nil {
		t.Fatalf("ResolvePrefix(abcd01): %v", err)
	}
	if got != a {
		t.Fatalf("ResolvePrefix(abcd01) = %s, want %s", got, a)
	}

	got, err = ResolvePrefix(db, "abee0")
	if err != nil {
		t.Fatalf("ResolvePrefix(abee0): %v", err)
	}
	if got != c {
		t.Fatalf("ResolvePrefix(abee0) = %s, want %s", got, c)
	}

	if _, err := ResolvePrefix(db, "abc"); err == nil {
		t.Fatal("ResolvePrefix accepted a 3-character prefix")
	}

	_, err = ResolvePrefix(db, "abcd")
	if !errors.Is(err, object.ErrAmbiguousID) {
		t.Fatalf("ResolvePrefix(abcd): %v, want ErrAmbiguousID", err)
	}
	var amb *object.AmbiguousIDError
	if !errors.As(err, &amb) {
		t.Fatalf("ResolvePrefix(abcd): %T, want *AmbiguousIDError", err)
	}
	if len(amb.Matches) != 2 || amb.Matches[0] != a || amb.Matches[1] != b {
		t.Fatalf("ambiguous matches = %v, want [%s %s]", amb.Matches, a, b)
	}

	_, err = ResolvePrefix(db, "0123")
	if !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("ResolvePrefix(0123): %v, want ErrObjectNotFound", err)
	}
}

func TestMemoryObjects(t *testing.T) {
	exerciseObjects(t, NewMemory())
}

func TestMemoryPrefixLookup(t *testing.T) {
	exercisePrefixLookup(t, NewMemory())
}

func TestLooseObjects(t *testing.T) {
	l, err := NewLoose(t.TempDir())
	if err != nil {
		t.Fatalf("NewLoose: %v", err)
	}
	defer l.Close()
	exerciseObjects(t, l)
}

func TestLoosePrefixLookup(t *testing.T) {
	l, err := NewLoose(t.TempDir(), WithCompression(false))
	if err != nil {
		t.Fatalf("NewLoose: %v", err)
	}
	defer l.Close()
	exercisePrefixLookup(t, l)
}

func TestLooseCompressionOnDisk(t *testing.T) {
	root := t.TempDir()
	l, err := NewLoose(root)
	if err != nil {
		t.Fatalf("NewLoose: %v", err)
	}
	defer l.Close()

	data := bytes.Repeat([]byte{0x03, 'a', 'b'}, 200)
	id, _, err := WriteObject(l, data)
	if err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	h := id.String()
	raw, err := os.ReadFile(filepath.Join(root, "objects", h[:2], h[2:]))
	if err != nil {
		t.Fatalf("read object file: %v", err)
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		t.Fatalf("object file is not zstd framed: %x", raw[:4])
	}
	if len(raw) >= len(data) {
		t.Fatalf("compressed size %d not smaller than %d", len(raw), len(data))
	}

	// A store opened without compression still reads compressed objects.
	plain, err := NewLoose(root, WithCompression(false))
	if err != nil {
		t.Fatalf("NewLoose plain: %v", err)
	}
	defer plain.Close()
	got, err := plain.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("decompressed payload mismatch")
	}
}

func TestLooseWalkSkipsStrays(t *testing.T) {
	root := t.TempDir()
	l, err := NewLoose(root)
	if err != nil {
		t.Fatalf("NewLoose: %v", err)
	}
	defer l.Close()

	want := map[object.ID]bool{}
	for _, s := range []string{"a", "b", "c"} {
		id, _, err := WriteObject(l, []byte{0x03, s[0]})
		if err != nil {
			t.Fatalf("WriteObject: %v", err)
		}
		want[id] = true
	}
	if err := os.WriteFile(filepath.Join(root, "objects", "README"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	seen := map[object.ID]bool{}
	if err := l.Walk(func(id object.ID) error {
		seen[id] = true
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(seen) != len(want) {
		t.Fatalf("Walk saw %d ids, want %d", len(seen), len(want))
	}
	for id := range want {
		if !seen[id] {
			t.Fatalf("Walk missed %s", id)
		}
	}
}

func TestUpdateCommitsAndRollsBack(t *testing.T) {
	db := NewMemory()

	var kept object.ID
	err := Update(db, func(objs Objects) error {
		id, _, err := WriteObject(objs, []byte{0x03, 'k'})
		kept = id
		return err
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ok, _ := db.Exists(kept); !ok {
		t.Fatal("committed object missing")
	}

	boom := errors.New("boom")
	var dropped object.ID
	err = Update(db, func(objs Objects) error {
		id, _, err := WriteObject(objs, []byte{0x03, 'd'})
		if err != nil {
			return err
		}
		dropped = id
		if ok, _ := objs.Exists(id); !ok {
			t.Fatal("object not visible inside its transaction")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}
	if ok, _ := db.Exists(dropped); ok {
		t.Fatal("rolled back object is visible")
	}
	if db.Len() != 1 {
		t.Fatalf("Len = %d, want 1", db.Len())
	}
}

func TestMemoryTxDeleteHidesBaseObject(t *testing.T) {
	db := NewMemory()
	id, _, _ := WriteObject(db, []byte{0x03, 'z'})

	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := tx.Delete(id); err != nil || !ok {
		t.Fatalf("tx Delete = %v, %v", ok, err)
	}
	if _, err := tx.Get(id); !errors.Is(err, object.ErrObjectNotFound) {
		t.Fatalf("tx Get after delete: %v", err)
	}
	if ok, _ := db.Exists(id); !ok {
		t.Fatal("delete leaked before commit")
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.Exists(id); ok {
		t.Fatal("delete not applied on commit")
	}
	if err := tx.Rollback(); err == nil {
		t.Fatal("Rollback after Commit succeeded")
	}
}
