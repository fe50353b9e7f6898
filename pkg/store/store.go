// Package store holds the content-addressed object databases and the mutable
// ref databases that back a repository.
package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/geogot/pkg/object"
)

// Objects is the key→bytes contract every object database satisfies, inside
// or outside a transaction.
//
// Callers must never hand Put different bytes for an id that already exists;
// the id is trusted to equal the hash of its bytes and is not re-verified.
type Objects interface {
	// Put writes data under id when id is absent or overwrite is set and
	// reports whether a value was written. false means the id already held
	// content, which callers may treat as "reused".
	Put(id object.ID, data []byte, overwrite bool) (bool, error)
	// Get fails with object.ErrObjectNotFound when id is absent.
	Get(id object.ID) ([]byte, error)
	Exists(id object.ID) (bool, error)
	Delete(id object.ID) (bool, error)
	// LookupPrefix returns every id whose raw bytes start with prefix.
	LookupPrefix(prefix []byte) ([]object.ID, error)
}

// Database is an object database owning storage handles.
type Database interface {
	Objects
	// Walk calls fn for every stored id. Order is unspecified.
	Walk(fn func(id object.ID) error) error
	Close() error
}

// Tx is a write transaction. Exactly one of Commit or Rollback ends it.
type Tx interface {
	Objects
	Commit() error
	Rollback() error
}

// Transactional databases group writes into explicit transactions.
type Transactional interface {
	Begin() (Tx, error)
}

// Update runs fn inside a transaction when db supports them, committing on
// success and rolling back on error. Other databases run fn directly.
func Update(db Database, fn func(objs Objects) error) (err error) {
	txdb, ok := db.(Transactional)
	if !ok {
		return fn(db)
	}
	tx, err := txdb.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// WriteObject stores canonical bytes under their hash.
func WriteObject(objs Objects, data []byte) (object.ID, bool, error) {
	id := object.HashBytes(data)
	inserted, err := objs.Put(id, data, false)
	if err != nil {
		return object.NullID, false, fmt.Errorf("write object %s: %w", id, err)
	}
	return id, inserted, nil
}

// MinPrefixLength is the shortest abbreviated id ResolvePrefix accepts.
const MinPrefixLength = 4

// ResolvePrefix resolves an abbreviated hex id to exactly one stored id.
// Zero matches is ErrObjectNotFound, several is an *object.AmbiguousIDError.
func ResolvePrefix(objs Objects, hexPrefix string) (object.ID, error) {
	if len(hexPrefix) < MinPrefixLength {
		return object.NullID, fmt.Errorf("resolve %q: prefix shorter than %d characters", hexPrefix, MinPrefixLength)
	}
	prefix, _, err := object.DecodeHexPrefix(hexPrefix)
	if err != nil {
		return object.NullID, err
	}
	candidates, err := objs.LookupPrefix(prefix)
	if err != nil {
		return object.NullID, fmt.Errorf("resolve %q: %w", hexPrefix, err)
	}
	var matches []object.ID
	for _, id := range candidates {
		if id.MatchesHexPrefix(hexPrefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return object.NullID, fmt.Errorf("resolve %q: %w", hexPrefix, object.ErrObjectNotFound)
	case 1:
		return matches[0], nil
	default:
		sortIDs(matches)
		return object.NullID, &object.AmbiguousIDError{Prefix: hexPrefix, Matches: matches}
	}
}

func notFound(id object.ID) error {
	return &object.NotFoundError{ID: id}
}

func sortIDs(ids []object.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}
