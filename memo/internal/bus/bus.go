// CLAUDE:SUMMARY In-process message bus between the service and its tabs — typed messages, correlation ids, request/reply with tab checks.
// Package bus carries messages between the service (the background side)
// and loaded tabs. Requests carry a correlation id; a reply is delivered
// only when it carries a pending id and comes from the tab the request was
// sent to.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hazyhaar/contextmemo/idgen"
)

// Type identifies a message.
type Type string

const (
	RequestSelectionContext Type = "REQUEST_SELECTION_CONTEXT"
	SelectionContextResult  Type = "SELECTION_CONTEXT_RESULT"
	OpenEditorAtSelection   Type = "OPEN_EDITOR_AT_SELECTION"
	RemoveHighlight         Type = "REMOVE_HIGHLIGHT"
)

var (
	ErrNoTab              = errors.New("bus: no such tab")
	ErrUnknownCorrelation = errors.New("bus: unknown correlation id")
	ErrTabMismatch        = errors.New("bus: reply from another tab")
)

// Message is the envelope exchanged on the bus. Fields not used by a type
// stay empty.
type Message struct {
	Type          Type   `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
	TabID         string `json:"tab_id,omitempty"`
	SelectedText  string `json:"selected_text,omitempty"`
	DOMLocator    string `json:"dom_locator,omitempty"`
	NoteID        string `json:"note_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Handler receives messages for one tab. Send calls it on the sender's
// goroutine, so it must not block.
type Handler func(Message)

type pending struct {
	tabID string
	reply chan Message
	fail  chan error
}

// Bus routes messages to attached tabs.
type Bus struct {
	mu      sync.Mutex
	tabs    map[string]Handler
	pending map[string]*pending
	newID   idgen.Generator
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(b *Bus) { b.logger = l } }

// WithTimeout bounds Request when the context has no deadline. Default 5s.
func WithTimeout(d time.Duration) Option { return func(b *Bus) { b.timeout = d } }

// WithIDGenerator sets the correlation id generator.
func WithIDGenerator(g idgen.Generator) Option { return func(b *Bus) { b.newID = g } }

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		tabs:    make(map[string]Handler),
		pending: make(map[string]*pending),
		newID:   idgen.Correlation,
		timeout: 5 * time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Attach registers the handler of a tab. The returned function detaches it
// and fails every request still waiting on that tab.
func (b *Bus) Attach(tabID string, h Handler) (detach func()) {
	b.mu.Lock()
	b.tabs[tabID] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.tabs, tabID)
		for id, p := range b.pending {
			if p.tabID == tabID {
				delete(b.pending, id)
				p.fail <- fmt.Errorf("%w: %s detached", ErrNoTab, tabID)
			}
		}
	}
}

// Tabs returns the attached tab ids, sorted.
func (b *Bus) Tabs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.tabs))
	for id := range b.tabs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Send delivers m to a tab without waiting for a reply.
func (b *Bus) Send(tabID string, m Message) error {
	b.mu.Lock()
	h, ok := b.tabs[tabID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoTab, tabID)
	}
	m.TabID = tabID
	h(m)
	return nil
}

// Request sends m with a fresh correlation id and waits for the matching
// reply from the same tab.
func (b *Bus) Request(ctx context.Context, tabID string, m Message) (Message, error) {
	if _, ok := ctx.Deadline(); !ok && b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	m.CorrelationID = b.newID()
	p := &pending{tabID: tabID, reply: make(chan Message, 1), fail: make(chan error, 1)}
	b.mu.Lock()
	b.pending[m.CorrelationID] = p
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, m.CorrelationID)
		b.mu.Unlock()
	}()

	if err := b.Send(tabID, m); err != nil {
		return Message{}, err
	}
	b.logger.Debug("bus: request", "type", m.Type, "tab", tabID, "correlation_id", m.CorrelationID)

	select {
	case r := <-p.reply:
		return r, nil
	case err := <-p.fail:
		return Message{}, err
	case <-ctx.Done():
		return Message{}, fmt.Errorf("bus: %s to %s: %w", m.Type, tabID, ctx.Err())
	}
}

// Reply delivers a tab's answer to the pending request it names. Replies
// with an unknown id or from another tab are rejected and dropped.
func (b *Bus) Reply(fromTab string, m Message) error {
	b.mu.Lock()
	p, ok := b.pending[m.CorrelationID]
	if ok && p.tabID == fromTab {
		delete(b.pending, m.CorrelationID)
	}
	b.mu.Unlock()

	switch {
	case !ok:
		b.logger.Warn("bus: reply dropped", "reason", "unknown correlation id", "tab", fromTab, "correlation_id", m.CorrelationID)
		return fmt.Errorf("%w: %q", ErrUnknownCorrelation, m.CorrelationID)
	case p.tabID != fromTab:
		b.logger.Warn("bus: reply dropped", "reason", "tab mismatch", "tab", fromTab, "want", p.tabID)
		return fmt.Errorf("%w: %s answered a request sent to %s", ErrTabMismatch, fromTab, p.tabID)
	}
	m.TabID = fromTab
	p.reply <- m
	return nil
}
