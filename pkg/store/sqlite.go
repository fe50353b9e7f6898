package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/odvcencio/geogot/pkg/object"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS objects (
		id   BLOB PRIMARY KEY,
		data BLOB NOT NULL
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS refs (
		name  TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reflog (
		seq    INTEGER PRIMARY KEY AUTOINCREMENT,
		name   TEXT NOT NULL,
		old    TEXT NOT NULL,
		new    TEXT NOT NULL,
		ts     INTEGER NOT NULL,
		reason TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS reflog_name ON reflog(name, seq)`,
}

// runner is the subset of *sql.DB and *sql.Tx the queries need.
type runner interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SQLite stores objects and refs in a single database file. Writes can be
// grouped with Begin; outside a transaction each call commits on its own.
type SQLite struct {
	path  string
	sqlDB *sql.DB
}

// NewSQLite opens (creating if needed) the database at path. ":memory:"
// gives a private in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection: writers serialize and ":memory:" stays one database.
	sqlDB.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range append(pragmas, sqliteSchema...) {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
	}
	return &SQLite{path: path, sqlDB: sqlDB}, nil
}

func (d *SQLite) Put(id object.ID, data []byte, overwrite bool) (bool, error) {
	return sqlitePut(d.sqlDB, id, data, overwrite)
}

func (d *SQLite) Get(id object.ID) ([]byte, error) {
	return sqliteGet(d.sqlDB, id)
}

func (d *SQLite) Exists(id object.ID) (bool, error) {
	return sqliteExists(d.sqlDB, id)
}

func (d *SQLite) Delete(id object.ID) (bool, error) {
	return sqliteDelete(d.sqlDB, id)
}

func (d *SQLite) LookupPrefix(prefix []byte) ([]object.ID, error) {
	return sqliteLookupPrefix(d.sqlDB, prefix)
}

func (d *SQLite) Walk(fn func(id object.ID) error) error {
	query, args, err := sq.Select("id").From("objects").ToSql()
	if err != nil {
		return err
	}
	rows, err := d.sqlDB.Query(query, args...)
	if err != nil {
		return fmt.Errorf("walk objects: %w", err)
	}
	var ids []object.ID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return fmt.Errorf("walk objects: %w", err)
		}
		id, err := object.IDFromBytes(raw)
		if err != nil {
			rows.Close()
			return fmt.Errorf("walk objects: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return err
	}
	// The single connection is released before fn runs so fn may query.
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (d *SQLite) Close() error {
	return d.sqlDB.Close()
}

// Begin starts a write transaction.
func (d *SQLite) Begin() (Tx, error) {
	tx, err := d.sqlDB.Begin()
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Put(id object.ID, data []byte, overwrite bool) (bool, error) {
	return sqlitePut(t.tx, id, data, overwrite)
}

func (t *sqliteTx) Get(id object.ID) ([]byte, error) { return sqliteGet(t.tx, id) }

func (t *sqliteTx) Exists(id object.ID) (bool, error) { return sqliteExists(t.tx, id) }

func (t *sqliteTx) Delete(id object.ID) (bool, error) { return sqliteDelete(t.tx, id) }

func (t *sqliteTx) LookupPrefix(prefix []byte) ([]object.ID, error) {
	return sqliteLookupPrefix(t.tx, prefix)
}

func (t *sqliteTx) Commit() error { return t.tx.Commit() }

func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

// ============== OBJECT QUERIES ==============

func sqlitePut(r runner, id object.ID, data []byte, overwrite bool) (bool, error) {
	conflict := "ON CONFLICT(id) DO NOTHING"
	if overwrite {
		conflict = "ON CONFLICT(id) DO UPDATE SET data = excluded.data"
	}
	query, args, err := sq.Insert("objects").
		Columns("id", "data").
		Values(id[:], data).
		Suffix(conflict).
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("object write %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("object write %s: %w", id, err)
	}
	return n > 0, nil
}

func sqliteGet(r runner, id object.ID) ([]byte, error) {
	query, args, err := sq.Select("data").From("objects").Where(sq.Eq{"id": id[:]}).ToSql()
	if err != nil {
		return nil, err
	}
	var data []byte
	if err := r.QueryRow(query, args...).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("object read %s: %w", id, err)
	}
	return data, nil
}

func sqliteExists(r runner, id object.ID) (bool, error) {
	query, args, err := sq.Select("1").From("objects").Where(sq.Eq{"id": id[:]}).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	if err := r.QueryRow(query, args...).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("object exists %s: %w", id, err)
	}
	return true, nil
}

func sqliteDelete(r runner, id object.ID) (bool, error) {
	query, args, err := sq.Delete("objects").Where(sq.Eq{"id": id[:]}).ToSql()
	if err != nil {
		return false, err
	}
	res, err := r.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("object delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// sqliteLookupPrefix turns the prefix into a half-open key range so the
// primary key index answers it: [prefix, prefix+1).
func sqliteLookupPrefix(r runner, prefix []byte) ([]object.ID, error) {
	if len(prefix) == 0 {
		return nil, fmt.Errorf("lookup prefix: empty prefix")
	}
	where := sq.And{sq.GtOrEq{"id": prefix}}
	if upper, ok := prefixUpperBound(prefix); ok {
		where = append(where, sq.Lt{"id": upper})
	}
	query, args, err := sq.Select("id").From("objects").Where(where).OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup prefix %x: %w", prefix, err)
	}
	defer rows.Close()

	var out []object.ID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("lookup prefix %x: %w", prefix, err)
		}
		if !bytes.HasPrefix(raw, prefix) {
			continue
		}
		id, err := object.IDFromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("lookup prefix %x: %w", prefix, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// prefixUpperBound returns the smallest byte string greater than every
// string starting with prefix. An all-0xff prefix has none.
func prefixUpperBound(prefix []byte) ([]byte, bool) {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1], true
		}
	}
	return nil, false
}

// ============== REF METHODS ==============

func (d *SQLite) ReadRef(name string) (string, error) {
	query, args, err := sq.Select("value").From("refs").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return "", err
	}
	var value string
	if err := d.sqlDB.QueryRow(query, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("read ref %q: %w", name, ErrRefNotFound)
		}
		return "", fmt.Errorf("read ref %q: %w", name, err)
	}
	return value, nil
}

func (d *SQLite) SetRef(name, value, reason string) error {
	return d.updateRef(name, value, reason, false, "")
}

func (d *SQLite) CompareAndSwapRef(name, old, value, reason string) error {
	return d.updateRef(name, value, reason, true, old)
}

func (d *SQLite) updateRef(name, value, reason string, cas bool, expectedOld string) (err error) {
	if err := validRefName(name); err != nil {
		return fmt.Errorf("update ref: %w", err)
	}
	tx, err := d.sqlDB.Begin()
	if err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := sq.Select("value").From("refs").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return err
	}
	var old string
	if scanErr := tx.QueryRow(query, args...).Scan(&old); scanErr != nil && !errors.Is(scanErr, sql.ErrNoRows) {
		return fmt.Errorf("update ref %q: read old value: %w", name, scanErr)
	}
	if cas && old != expectedOld {
		return casMismatch(name, expectedOld, old)
	}

	query, args, err = sq.Insert("refs").
		Columns("name", "value").
		Values(name, value).
		Suffix("ON CONFLICT(name) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return err
	}
	if _, err = tx.Exec(query, args...); err != nil {
		return fmt.Errorf("update ref %q: %w", name, err)
	}

	if strings.TrimSpace(reason) == "" {
		reason = "update"
	}
	query, args, err = sq.Insert("reflog").
		Columns("name", "old", "new", "ts", "reason").
		Values(name, reflogValue(old), reflogValue(value), time.Now().UnixMilli(), reason).
		ToSql()
	if err != nil {
		return err
	}
	if _, err = tx.Exec(query, args...); err != nil {
		return fmt.Errorf("update ref %q: reflog: %w", name, err)
	}
	return tx.Commit()
}

func (d *SQLite) DeleteRef(name string) (bool, error) {
	query, args, err := sq.Delete("refs").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return false, err
	}
	res, err := d.sqlDB.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("delete ref %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (d *SQLite) ListRefs(prefix string) (map[string]string, error) {
	query, args, err := sq.Select("name", "value").From("refs").
		Where(sq.Like{"name": escapeLike(prefix) + "%"}).
		Suffix(`ESCAPE '\'`).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.sqlDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	defer rows.Close()
	refs := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("list refs: %w", err)
		}
		if strings.HasPrefix(name, prefix) {
			refs[name] = value
		}
	}
	return refs, rows.Err()
}

func (d *SQLite) ReadReflog(name string, limit int) ([]ReflogEntry, error) {
	b := sq.Select("old", "new", "ts", "reason").From("reflog").
		Where(sq.Eq{"name": name}).
		OrderBy("seq DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.sqlDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	defer rows.Close()
	var entries []ReflogEntry
	for rows.Next() {
		e := ReflogEntry{Ref: name}
		if err := rows.Scan(&e.Old, &e.New, &e.Timestamp, &e.Reason); err != nil {
			return nil, fmt.Errorf("read reflog: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var (
	_ Database      = (*SQLite)(nil)
	_ Transactional = (*SQLite)(nil)
	_ RefDatabase   = (*SQLite)(nil)
)
