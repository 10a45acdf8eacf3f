package store

// Schema contains the DDL for the notes table. Notes are never updated; a
// note is inserted once and deleted as a whole.
const Schema = `
CREATE TABLE IF NOT EXISTS notes (
    id          TEXT PRIMARY KEY,
    url         TEXT NOT NULL,
    content     TEXT NOT NULL DEFAULT '',
    dom_locator TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_url ON notes(url, created_at);
`
