// CLAUDE:SUMMARY Tab — one loaded page owned by a goroutine: bus message handling, selection, note editor, scheduled restore pass.
package memo

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/contextmemo/anchor"
	"github.com/hazyhaar/contextmemo/idgen"
	"github.com/hazyhaar/contextmemo/kit"
	"github.com/hazyhaar/contextmemo/memo/internal/bus"
)

const tabQueue = 64

// Tab is one loaded page. A single goroutine owns the document: every read
// or change of the DOM is posted to it and runs in order.
type Tab struct {
	id     string
	url    string
	svc    *Service
	page   *anchor.Page
	logger *slog.Logger

	tasks  chan func()
	done   chan struct{}
	once   sync.Once
	detach func()

	mu       sync.Mutex
	timer    *time.Timer
	restored chan []Report

	// owned by the loop goroutine
	selection *anchor.Range
	editor    *Note
}

func newTab(s *Service, id, url string, page *anchor.Page) *Tab {
	t := &Tab{
		id:     id,
		url:    url,
		svc:    s,
		page:   page,
		logger: s.logger.With("tab", id),
		tasks:  make(chan func(), tabQueue),
		done:   make(chan struct{}),
	}
	t.detach = s.bus.Attach(id, t.receive)
	go t.loop()
	return t
}

// ID returns the tab id.
func (t *Tab) ID() string { return t.id }

// URL returns the page URL, without fragment.
func (t *Tab) URL() string { return t.url }

// Done is closed when the tab is closed.
func (t *Tab) Done() <-chan struct{} { return t.done }

func (t *Tab) loop() {
	for {
		select {
		case fn := <-t.tasks:
			t.run(fn)
		case <-t.done:
			return
		}
	}
}

func (t *Tab) run(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("memo: tab task panicked", "panic", p)
		}
	}()
	fn()
}

// post queues fn on the loop. It blocks while the queue is full and
// reports false once the tab is closed.
func (t *Tab) post(fn func()) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.tasks <- fn:
		return true
	case <-t.done:
		return false
	}
}

// offer queues fn without waiting. Bus handlers use it: a full queue drops
// the message instead of stalling the sender.
func (t *Tab) offer(kind bus.Type, fn func()) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.tasks <- fn:
		return true
	default:
		t.logger.Warn("memo: tab queue full, message dropped", "type", kind)
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (t *Tab) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	ok := t.post(func() {
		defer func() {
			if p := recover(); p != nil {
				errc <- fmt.Errorf("memo: tab task panicked: %v", p)
			}
		}()
		errc <- fn()
	})
	if !ok {
		return ErrTabClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrTabClosed
		}
	}
}

// receive is the bus handler of the tab.
func (t *Tab) receive(m bus.Message) {
	switch m.Type {
	case bus.RequestSelectionContext:
		t.offer(m.Type, func() {
			reply := t.selectionContext(m.SelectedText)
			reply.CorrelationID = m.CorrelationID
			if err := t.svc.bus.Reply(t.id, reply); err != nil {
				t.logger.Warn("memo: selection reply rejected", "error", err)
			}
		})
	case bus.OpenEditorAtSelection:
		t.offer(m.Type, func() { t.openEditor(m.DOMLocator) })
	case bus.RemoveHighlight:
		t.offer(m.Type, func() {
			n := t.page.Remove(m.NoteID)
			t.selection = nil
			t.logger.Debug("memo: highlight removed", "note_id", m.NoteID, "markers", n)
		})
	default:
		t.logger.Warn("memo: unexpected message", "type", m.Type)
	}
}

// selectionContext builds the locator of the current selection. Without a
// selection it looks for the first occurrence of text. A reply with an
// empty locator carries the reason in Error.
func (t *Tab) selectionContext(text string) bus.Message {
	msg := bus.Message{Type: bus.SelectionContextResult, SelectedText: text}
	var r anchor.Range
	switch {
	case t.selection != nil:
		r = *t.selection
	case text != "":
		found, err := anchor.FindText(t.page.Document(), text, 1)
		if err != nil {
			msg.Error = err.Error()
			return msg
		}
		r = found
	default:
		msg.Error = "no selection"
		return msg
	}

	loc := anchor.Build(r)
	if !loc.Anchorable() {
		msg.Error = anchor.ErrUnanchorable.Error()
		return msg
	}
	raw, err := loc.Encode()
	if err != nil {
		msg.Error = err.Error()
		return msg
	}
	msg.DOMLocator = raw
	msg.SelectedText = loc.Snippet.Selected
	return msg
}

func (t *Tab) openEditor(locator string) {
	t.editor = &Note{
		ID:         idgen.New(),
		URL:        t.url,
		DOMLocator: locator,
		CreatedAt:  time.Now().UnixMilli(),
	}
	t.logger.Debug("memo: editor opened", "note_id", t.editor.ID, "anchored", locator != "")
}

// highlight runs on the loop.
func (t *Tab) highlight(n *Note) {
	r := restoreOne(t.page, n)
	t.selection = nil
	if r.Status != StatusAnchored {
		t.logger.Info("memo: note not highlighted", "note_id", n.ID, "status", r.Status, "error", r.Error)
	}
}

func (t *Tab) highlightAsync(n *Note) {
	cp := *n
	t.post(func() { t.highlight(&cp) })
}

// Select sets the current selection.
func (t *Tab) Select(ctx context.Context, r anchor.Range) error {
	return t.do(ctx, func() error {
		t.selection = &r
		return nil
	})
}

// SelectText selects the occurrence-th (1-based) match of text.
func (t *Tab) SelectText(ctx context.Context, text string, occurrence int) error {
	return t.do(ctx, func() error {
		r, err := anchor.FindText(t.page.Document(), text, occurrence)
		if err != nil {
			return err
		}
		t.selection = &r
		return nil
	})
}

// Editor returns the open editor draft, or nil.
func (t *Tab) Editor(ctx context.Context) (*Note, error) {
	var draft *Note
	err := t.do(ctx, func() error {
		if t.editor != nil {
			cp := *t.editor
			draft = &cp
		}
		return nil
	})
	return draft, err
}

// SubmitEditor saves the draft with content and highlights it right away.
// On a validation error the editor stays open.
func (t *Tab) SubmitEditor(ctx context.Context, content string) (*Note, error) {
	var saved *Note
	ctx = kit.WithTabID(ctx, t.id)
	err := t.do(ctx, func() error {
		if t.editor == nil {
			return ErrNoEditor
		}
		n := *t.editor
		n.Content = content
		if err := t.svc.save(ctx, &n); err != nil {
			return err
		}
		t.editor = nil
		if n.DOMLocator != "" {
			t.highlight(&n)
		}
		saved = &n
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.svc.broadcastHighlight(saved, t.id)
	return saved, nil
}

// CancelEditor drops the draft.
func (t *Tab) CancelEditor(ctx context.Context) error {
	return t.do(ctx, func() error {
		if t.editor == nil {
			return ErrNoEditor
		}
		t.logger.Debug("memo: editor cancelled", "note_id", t.editor.ID)
		t.editor = nil
		return nil
	})
}

// Do runs fn against the page on the tab goroutine.
func (t *Tab) Do(ctx context.Context, fn func(*anchor.Page) error) error {
	return t.do(ctx, func() error { return fn(t.page) })
}

// HTML renders the current document.
func (t *Tab) HTML(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	err := t.do(ctx, func() error { return html.Render(&buf, t.page.Document()) })
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Restore runs a restore pass now. Once the pass has started on the tab
// goroutine it runs to the end, even if ctx is cancelled.
func (t *Tab) Restore(ctx context.Context) ([]Report, error) {
	ctx = kit.WithTabID(ctx, t.id)
	notes, err := t.svc.store.ListNotes(ctx, ListOptions{URL: t.url})
	if err != nil {
		return nil, fmt.Errorf("memo: restore: %w", err)
	}
	var reports []Report
	err = t.do(ctx, func() error {
		reports = restorePass(t.page, notes, t.logger)
		t.selection = nil
		return nil
	})
	return reports, err
}

// ScheduleRestore runs a restore pass after delay, replacing any pass
// still pending. The channel receives the reports and is closed; it is
// closed without a value when the pass is cancelled or fails.
func (t *Tab) ScheduleRestore(delay time.Duration) <-chan []Report {
	ch := make(chan []Report, 1)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
	t.restored = ch
	t.timer = time.AfterFunc(delay, func() {
		defer close(ch)
		reports, err := t.Restore(context.Background())
		if err != nil {
			t.logger.Warn("memo: restore pass failed", "error", err)
			return
		}
		ch <- reports
	})
	return ch
}

// Restored returns the channel of the last scheduled restore pass.
func (t *Tab) Restored() <-chan []Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.restored
}

// CancelRestore stops a pending pass. It reports false when no pass was
// pending or the pass already started.
func (t *Tab) CancelRestore() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopTimerLocked()
}

func (t *Tab) stopTimerLocked() bool {
	if t.timer == nil {
		return false
	}
	stopped := t.timer.Stop()
	if stopped {
		close(t.restored)
	}
	t.timer = nil
	return stopped
}

// Close cancels a pending restore, detaches the tab from the bus and stops
// its goroutine. Requests waiting on the tab fail.
func (t *Tab) Close() {
	t.once.Do(func() {
		t.CancelRestore()
		t.detach()
		close(t.done)
		t.svc.forget(t.id)
		t.logger.Info("memo: tab closed")
	})
}
