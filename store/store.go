// Package store implements the content-addressed code store: a hash->blob
// table and a name->hash table, persisted to a SQLite database file via
// modernc.org/sqlite (the store is the only package in this module that
// touches disk beyond the assembler's input file).
package store

import (
	"database/sql"
	"regexp"

	_ "modernc.org/sqlite"

	"github.com/mattnappo/efa/code"
	"github.com/pkg/errors"
)

// MainName is the distinguished name that, if bound, is the program's entry
// point.
const MainName = "main"

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidName reports whether name may be bound in the store: non-empty,
// starting with a letter or underscore, and containing only letters,
// digits, and underscores thereafter.
func ValidName(name string) bool {
	return nameRE.MatchString(name)
}

// Store is a handle to a code store backed by a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists. An empty path opens a private, temporary
// in-memory database, giving callers a disposable store with no explicit
// cleanup required.
func Open(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "store: open %q", path)
	}
	if path == "" {
		// Each connection to ":memory:" gets its own database, destroyed
		// when that connection closes; a single open connection keeps one
		// database alive, private to this Store, for its lifetime.
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS code_objs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hash BLOB UNIQUE NOT NULL,
			blob BLOB UNIQUE NOT NULL,
			is_main BOOLEAN NOT NULL DEFAULT 0,
			time DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS code_objs_hash_idx ON code_objs(hash)`,
		`CREATE TABLE IF NOT EXISTS names (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL,
			hash BLOB NOT NULL,
			time DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS names_name_idx ON names(name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(err, "store: migrate")
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "store: close")
}

// Insert computes obj's content hash and stores its serialized bytes,
// returning the hash. Inserting byte-identical content twice is a no-op
// that returns the same hash both times.
func (s *Store) Insert(obj *code.CodeObject) (code.Hash, error) {
	h := obj.Hash()
	blob := code.Encode(obj)
	_, err := s.db.Exec(
		`INSERT INTO code_objs (hash, blob) VALUES (?, ?)
		 ON CONFLICT(hash) DO NOTHING`,
		h[:], blob,
	)
	if err != nil {
		return code.Hash{}, errors.Wrapf(err, "store: insert object %s", h)
	}
	return h, nil
}

// Bind associates name with hash. It fails if name is not a valid
// identifier (ValidName) or is already bound to a different hash.
func (s *Store) Bind(name string, h code.Hash) error {
	if !ValidName(name) {
		return errors.Errorf("store: invalid name %q", name)
	}
	existing, hash, err := s.lookupName(name)
	if err != nil {
		return err
	}
	if existing {
		if hash == h {
			return nil
		}
		return errors.Errorf("store: name %q is already bound to %s", name, hash)
	}
	_, err = s.db.Exec(`INSERT INTO names (name, hash) VALUES (?, ?)`, name, h[:])
	if err != nil {
		return errors.Wrapf(err, "store: bind %q", name)
	}
	if name == MainName {
		_, err = s.db.Exec(`UPDATE code_objs SET is_main = 1 WHERE hash = ?`, h[:])
		err = errors.Wrapf(err, "store: mark %s as main", h)
	}
	return err
}

// InsertNamed inserts obj and binds name to its hash in one step, mirroring
// the assembler/linker output path: every resolved (name, object) pair is
// inserted this way before execution begins.
func (s *Store) InsertNamed(name string, obj *code.CodeObject) (code.Hash, error) {
	h, err := s.Insert(obj)
	if err != nil {
		return code.Hash{}, err
	}
	if err := s.Bind(name, h); err != nil {
		return code.Hash{}, err
	}
	return h, nil
}

func (s *Store) lookupName(name string) (found bool, h code.Hash, err error) {
	var raw []byte
	row := s.db.QueryRow(`SELECT hash FROM names WHERE name = ?`, name)
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return false, code.Hash{}, nil
		}
		return false, code.Hash{}, errors.Wrapf(err, "store: lookup name %q", name)
	}
	copy(h[:], raw)
	return true, h, nil
}

// GetByHash fetches the code object stored under h.
func (s *Store) GetByHash(h code.Hash) (*code.CodeObject, error) {
	var blob []byte
	row := s.db.QueryRow(`SELECT blob FROM code_objs WHERE hash = ?`, h[:])
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Errorf("store: no code object with hash %s", h)
		}
		return nil, errors.Wrapf(err, "store: get object %s", h)
	}
	return code.Decode(blob)
}

// GetByName resolves name through the names table and returns both the
// hash it is bound to and the code object stored there.
func (s *Store) GetByName(name string) (code.Hash, *code.CodeObject, error) {
	found, h, err := s.lookupName(name)
	if err != nil {
		return code.Hash{}, nil, err
	}
	if !found {
		return code.Hash{}, nil, errors.Errorf("store: no object bound to name %q", name)
	}
	obj, err := s.GetByHash(h)
	return h, obj, err
}

// GetMain resolves the MainName binding, the program's entry point.
func (s *Store) GetMain() (code.Hash, *code.CodeObject, error) {
	h, obj, err := s.GetByName(MainName)
	if err != nil {
		return code.Hash{}, nil, errors.Wrap(err, "store: no main function bound")
	}
	return h, obj, nil
}

// NameOf returns the name bound to h, if any.
func (s *Store) NameOf(h code.Hash) (name string, ok bool, err error) {
	row := s.db.QueryRow(`SELECT name FROM names WHERE hash = ? LIMIT 1`, h[:])
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "store: name of %s", h)
	}
	return name, true, nil
}

// Names returns every bound name in the store, in no particular order.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM names`)
	if err != nil {
		return nil, errors.Wrap(err, "store: list names")
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, errors.Wrap(err, "store: list names")
		}
		names = append(names, n)
	}
	return names, errors.Wrap(rows.Err(), "store: list names")
}
