// CLAUDE:SUMMARY Insert/get/list/delete/count operations for the notes table.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/contextmemo/dbopen"
)

// Note is a persisted note. DOMLocator holds the serialised locator, or an
// empty string when the note was saved without one.
type Note struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Content    string `json:"content"`
	DOMLocator string `json:"dom_locator"`
	CreatedAt  int64  `json:"created_at"` // unix millis
}

// Created returns CreatedAt as a time.
func (n *Note) Created() time.Time {
	return time.UnixMilli(n.CreatedAt)
}

// ListOptions filters ListNotes.
type ListOptions struct {
	URL   string // exact match after fragment stripping; empty = all pages
	Query string // case-insensitive substring of the content
	Limit int    // 0 = no limit
}

const noteColumns = `id, url, content, dom_locator, created_at`

// InsertNote stores a new note. The URL is normalised and CreatedAt set to
// now when zero.
func (s *Store) InsertNote(ctx context.Context, n *Note) error {
	n.URL = NormalizeURL(n.URL)
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().UnixMilli()
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO notes (`+noteColumns+`) VALUES (?,?,?,?,?)`,
		n.ID, n.URL, n.Content, n.DOMLocator, n.CreatedAt,
	)
	return err
}

// GetNote retrieves a note by ID. It returns nil, nil when absent.
func (s *Store) GetNote(ctx context.Context, id string) (*Note, error) {
	n := &Note{}
	err := s.DB.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id).
		Scan(&n.ID, &n.URL, &n.Content, &n.DOMLocator, &n.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns matching notes, oldest first.
func (s *Store) ListNotes(ctx context.Context, opts ListOptions) ([]*Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE 1=1`
	var args []any
	if opts.URL != "" {
		query += ` AND url = ?`
		args = append(args, NormalizeURL(opts.URL))
	}
	if opts.Query != "" {
		query += ` AND instr(lower(content), lower(?)) > 0`
		args = append(args, opts.Query)
	}
	query += ` ORDER BY created_at, id`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n := &Note{}
		if err := rows.Scan(&n.ID, &n.URL, &n.Content, &n.DOMLocator, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// DeleteNote removes a note and returns it, or nil when it did not exist.
func (s *Store) DeleteNote(ctx context.Context, id string) (*Note, error) {
	var deleted *Note
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		n := &Note{}
		err := tx.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id).
			Scan(&n.ID, &n.URL, &n.Content, &n.DOMLocator, &n.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id); err != nil {
			return err
		}
		deleted = n
		return nil
	})
	return deleted, err
}

// CountNotes counts the notes of a page, or of every page when url is empty.
func (s *Store) CountNotes(ctx context.Context, url string) (int, error) {
	var n int
	var err error
	if url == "" {
		err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes`).Scan(&n)
	} else {
		err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE url = ?`, NormalizeURL(url)).Scan(&n)
	}
	return n, err
}
