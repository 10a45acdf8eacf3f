// CLAUDE:SUMMARY SQLite database handle for contextmemo notes — opens DB with WAL pragmas and applies schema.
// Package store provides the SQLite persistence layer for notes.
package store

import (
	"database/sql"
	"net/url"
	"strings"

	"github.com/hazyhaar/contextmemo/dbopen"
)

// Store is the notes database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the notes database at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// NormalizeURL drops the fragment: a note belongs to the page, not to an
// anchor inside it.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
