package memo

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/contextmemo/anchor"
)

// Restore statuses.
const (
	StatusAnchored     = "anchored"
	StatusMalformed    = "malformed"
	StatusUnanchorable = "unanchorable"
	StatusElementMiss  = "element_miss"
	StatusTextMiss     = "text_miss"
	StatusFailed       = "failed"
)

// Report is the outcome of restoring one note.
type Report struct {
	NoteID  string `json:"note_id"`
	Status  string `json:"status"`
	Markers int    `json:"markers"`
	Via     string `json:"via,omitempty"` // "path" or "context" when anchored
	Error   string `json:"error,omitempty"`
}

// restorePass highlights notes on page one after the other. Every note is
// independent: a failure, even a panic, only affects its own report.
// Notes already highlighted on the page are left alone.
func restorePass(page *anchor.Page, notes []*Note, logger *slog.Logger) []Report {
	reports := make([]Report, 0, len(notes))
	anchored := 0
	for _, n := range notes {
		r := restoreOne(page, n)
		switch r.Status {
		case StatusAnchored:
			anchored++
		case StatusMalformed:
			logger.Warn("memo: locator skipped", "note_id", r.NoteID, "error", r.Error)
		default:
			logger.Info("memo: note not restored", "note_id", r.NoteID, "status", r.Status, "error", r.Error)
		}
		reports = append(reports, r)
	}
	logger.Debug("memo: restore pass", "notes", len(notes), "anchored", anchored)
	return reports
}

func restoreOne(page *anchor.Page, n *Note) (r Report) {
	defer func() {
		if p := recover(); p != nil {
			r.Status = StatusFailed
			r.Markers = 0
			r.Error = fmt.Sprintf("panic: %v", p)
		}
	}()
	r.NoteID = n.ID

	if existing := len(page.Markers(n.ID)); existing > 0 {
		r.Status, r.Markers = StatusAnchored, existing
		return r
	}
	if n.DOMLocator == "" {
		r.Status = StatusUnanchorable
		r.Error = "no locator"
		return r
	}
	loc, err := anchor.ParseLocator([]byte(n.DOMLocator))
	if err != nil {
		r.Status, r.Error = StatusMalformed, err.Error()
		return r
	}
	h, err := page.Highlight(loc, n.ID, n.Content)
	if err != nil {
		r.Status, r.Error = statusOf(err), err.Error()
		return r
	}
	r.Status, r.Markers, r.Via = StatusAnchored, len(h.Markers), h.Match.Via
	return r
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, anchor.ErrUnanchorable):
		return StatusUnanchorable
	case errors.Is(err, anchor.ErrElementNotFound):
		return StatusElementMiss
	case errors.Is(err, anchor.ErrTextNotFound):
		return StatusTextMiss
	case errors.Is(err, anchor.ErrMalformedLocator):
		return StatusMalformed
	}
	return StatusFailed
}
