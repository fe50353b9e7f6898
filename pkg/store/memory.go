package store

import (
	"fmt"
	"sync"

	"github.com/odvcencio/geogot/pkg/object"
)

// Memory is an in-process object database. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	objects map[object.ID][]byte
}

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{objects: make(map[object.ID][]byte)}
}

func (m *Memory) Put(id object.ID, data []byte, overwrite bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; ok && !overwrite {
		return false, nil
	}
	m.objects[id] = append([]byte(nil), data...)
	return true, nil
}

func (m *Memory) Get(id object.ID) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.objects[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}
	return data, nil
}

func (m *Memory) Exists(id object.ID) (bool, error) {
	m.mu.RLock()
	_, ok := m.objects[id]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) Delete(id object.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; !ok {
		return false, nil
	}
	delete(m.objects, id)
	return true, nil
}

func (m *Memory) LookupPrefix(prefix []byte) ([]object.ID, error) {
	if len(prefix) == 0 {
		return nil, fmt.Errorf("lookup prefix: empty prefix")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []object.ID
	for id := range m.objects {
		if id.HasPrefix(prefix) {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out, nil
}

func (m *Memory) Walk(fn func(id object.ID) error) error {
	m.mu.RLock()
	ids := make([]object.ID, 0, len(m.objects))
	for id := range m.objects {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *Memory) Close() error { return nil }

// Begin starts a buffered transaction. Writes become visible to the
// database only on Commit.
func (m *Memory) Begin() (Tx, error) {
	return &memoryTx{db: m, puts: make(map[object.ID][]byte), deletes: make(map[object.ID]struct{})}, nil
}

type memoryTx struct {
	db      *Memory
	puts    map[object.ID][]byte
	deletes map[object.ID]struct{}
	done    bool
}

func (tx *memoryTx) check() error {
	if tx.done {
		return fmt.Errorf("memory transaction already finished")
	}
	return nil
}

func (tx *memoryTx) Put(id object.ID, data []byte, overwrite bool) (bool, error) {
	if err := tx.check(); err != nil {
		return false, err
	}
	exists, _ := tx.Exists(id)
	if exists && !overwrite {
		return false, nil
	}
	delete(tx.deletes, id)
	tx.puts[id] = append([]byte(nil), data...)
	return true, nil
}

func (tx *memoryTx) Get(id object.ID) ([]byte, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	if data, ok := tx.puts[id]; ok {
		return data, nil
	}
	if _, ok := tx.deletes[id]; ok {
		return nil, notFound(id)
	}
	return tx.db.Get(id)
}

func (tx *memoryTx) Exists(id object.ID) (bool, error) {
	if err := tx.check(); err != nil {
		return false, err
	}
	if _, ok := tx.puts[id]; ok {
		return true, nil
	}
	if _, ok := tx.deletes[id]; ok {
		return false, nil
	}
	return tx.db.Exists(id)
}

func (tx *memoryTx) Delete(id object.ID) (bool, error) {
	exists, err := tx.Exists(id)
	if err != nil || !exists {
		return false, err
	}
	delete(tx.puts, id)
	tx.deletes[id] = struct{}{}
	return true, nil
}

func (tx *memoryTx) LookupPrefix(prefix []byte) ([]object.ID, error) {
	if err := tx.check(); err != nil {
		return nil, err
	}
	base, err := tx.db.LookupPrefix(prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[object.ID]struct{}, len(base))
	var out []object.ID
	for _, id := range base {
		if _, gone := tx.deletes[id]; gone {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for id := range tx.puts {
		if _, ok := seen[id]; !ok && id.HasPrefix(prefix) {
			out = append(out, id)
		}
	}
	sortIDs(out)
	return out, nil
}

func (tx *memoryTx) Commit() error {
	if err := tx.check(); err != nil {
		return err
	}
	tx.done = true
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for id := range tx.deletes {
		delete(tx.db.objects, id)
	}
	for id, data := range tx.puts {
		tx.db.objects[id] = data
	}
	return nil
}

func (tx *memoryTx) Rollback() error {
	if err := tx.check(); err != nil {
		return err
	}
	tx.done = true
	tx.puts, tx.deletes = nil, nil
	return nil
}
