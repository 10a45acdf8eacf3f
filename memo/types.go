package memo

import (
	"errors"

	"github.com/hazyhaar/contextmemo/memo/internal/store"
)

// Note is a persisted note.
type Note = store.Note

// ListOptions filters ListNotes.
type ListOptions = store.ListOptions

var (
	ErrNoteNotFound   = errors.New("memo: note not found")
	ErrEmptyURL       = errors.New("memo: page url is required")
	ErrEmptyContent   = errors.New("memo: note content is empty")
	ErrContentTooLong = errors.New("memo: note content too long")
	ErrInvalidContent = errors.New("memo: note content is not valid utf-8")
	ErrNoEditor       = errors.New("memo: no editor open")
	ErrTabClosed      = errors.New("memo: tab closed")
	ErrNoSuchTab      = errors.New("memo: no such tab")
)

// NoteInput is a note as submitted by a caller. When Text is set and
// DOMLocator is empty, the locator is built from the Occurrence-th match of
// Text in the loaded page.
type NoteInput struct {
	URL        string `json:"url"`
	Content    string `json:"content"`
	DOMLocator string `json:"dom_locator,omitempty"`
	Text       string `json:"text,omitempty"`
	Occurrence int    `json:"occurrence,omitempty"`
}
