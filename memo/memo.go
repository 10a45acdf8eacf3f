// CLAUDE:SUMMARY Main contextmemo service — wires the notes store, the tab bus and the page loader; owns note validation and tab lifecycle.
// Package memo is the contextmemo service: notes attached to a text span
// of a web page and restored as highlights when the page is loaded again.
//
// The pipeline:
//
//	snapshot.Loader → Tab (anchor.Page) → restore pass → markers
//	selection → bus → locator → editor → store
//
// Usage:
//
//	svc, err := memo.New(cfg, logger)
//	defer svc.Close()
//	tab, err := svc.LoadTab(ctx, "https://example.com/article")
//	reports := <-tab.Restored()
//	svc.RegisterMCP(mcpServer)
//	http.ListenAndServe(cfg.Addr, svc.Handler())
package memo

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"

	"github.com/hazyhaar/contextmemo/anchor"
	"github.com/hazyhaar/contextmemo/dbopen"
	"github.com/hazyhaar/contextmemo/idgen"
	"github.com/hazyhaar/contextmemo/memo/internal/bus"
	"github.com/hazyhaar/contextmemo/memo/internal/store"
	"github.com/hazyhaar/contextmemo/snapshot"
	"github.com/hazyhaar/contextmemo/trace"
)

// Service is the contextmemo orchestrator.
type Service struct {
	config  *Config
	store   *store.Store
	bus     *bus.Bus
	loader  snapshot.Loader
	browser *snapshot.Browser
	logger  *slog.Logger

	span    anchor.SpanMode
	styling anchor.Styling

	view *bluemonday.Policy // served snapshots
	md   *converter.Converter

	mu   sync.Mutex
	tabs map[string]*Tab
}

// Option configures a Service.
type Option func(*Service)

// WithLoader replaces the page loader built from the config.
func WithLoader(l snapshot.Loader) Option {
	return func(s *Service) { s.loader = l }
}

// New creates a Service. It opens the notes database and builds the page
// loader described by cfg.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	span, err := anchor.ParseSpanMode(cfg.Restore.Span)
	if err != nil {
		return nil, err
	}
	styling, err := anchor.ParseStyling(cfg.Restore.Styling)
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:  cfg,
		logger:  logger,
		span:    span,
		styling: styling,
		bus:     bus.New(bus.WithLogger(logger), bus.WithTimeout(cfg.Bus.RequestTimeout)),
		view:    viewPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
		tabs: make(map[string]*Tab),
	}
	for _, o := range opts {
		o(s)
	}
	if s.loader == nil {
		s.loader = s.defaultLoader()
	}

	dbOpts := []dbopen.Option{
		dbopen.WithBusyTimeout(cfg.DB.BusyTimeout),
		dbopen.WithSynchronous(cfg.DB.Synchronous),
	}
	if cfg.TraceSQL {
		trace.SetLogger(logger)
		dbOpts = append(dbOpts, dbopen.WithDriver(trace.DriverName))
	}
	st, err := store.Open(cfg.DBPath, dbOpts...)
	if err != nil {
		return nil, fmt.Errorf("memo: open store: %w", err)
	}
	s.store = st
	return s, nil
}

func (s *Service) defaultLoader() snapshot.Loader {
	fetchOpts := []snapshot.FetcherOption{
		snapshot.WithMaxBytes(s.config.Fetch.MaxBytes),
		snapshot.AllowPrivate(s.config.Fetch.AllowPrivate),
		snapshot.WithLogger(s.logger),
		snapshot.WithClient(&http.Client{Timeout: s.config.Fetch.Timeout}),
	}
	if s.config.Fetch.UserAgent != "" {
		fetchOpts = append(fetchOpts, snapshot.WithUserAgent(s.config.Fetch.UserAgent))
	}
	auto := &snapshot.Auto{Fetcher: snapshot.NewFetcher(fetchOpts...), Logger: s.logger}
	if s.config.Browser.Enabled {
		s.browser = snapshot.NewBrowser(snapshot.BrowserConfig{
			RemoteURL:    s.config.Browser.RemoteURL,
			NoStealth:    s.config.Browser.NoStealth,
			Settle:       s.config.Browser.Settle,
			NavTimeout:   s.config.Fetch.Timeout,
			AllowPrivate: s.config.Fetch.AllowPrivate,
			Logger:       s.logger,
		})
		auto.Browser = s.browser
	}
	return auto
}

func viewPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowStyling()
	p.AllowAttrs("id").Matching(bluemonday.Paragraph).Globally()
	p.AllowElements("main", "header", "footer", "nav", "section", "article", "aside", "figure", "figcaption")
	return p
}

// Close closes every tab, the browser if one was started and the database.
func (s *Service) Close() error {
	s.mu.Lock()
	tabs := make([]*Tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		tabs = append(tabs, t)
	}
	s.mu.Unlock()
	for _, t := range tabs {
		t.Close()
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("memo: browser close", "error", err)
		}
	}
	return s.store.Close()
}

// Config returns the effective configuration.
func (s *Service) Config() *Config { return s.config }

// --- notes ---

// cleanContent trims content and checks its length. The text is otherwise
// stored as typed; it only reaches pages as escaped text and attributes.
func (s *Service) cleanContent(content string) (string, error) {
	if !utf8.ValidString(content) {
		return "", ErrInvalidContent
	}
	text := strings.TrimSpace(content)
	if text == "" {
		return "", ErrEmptyContent
	}
	if n := utf8.RuneCountInString(text); n > s.config.Notes.MaxContentLen {
		return "", fmt.Errorf("%w: %d characters, at most %d", ErrContentTooLong, n, s.config.Notes.MaxContentLen)
	}
	return text, nil
}

// save validates and stores n. An unparsable locator is kept as is: the
// note is saved and simply never highlighted.
func (s *Service) save(ctx context.Context, n *Note) error {
	if strings.TrimSpace(n.URL) == "" {
		return ErrEmptyURL
	}
	content, err := s.cleanContent(n.Content)
	if err != nil {
		return err
	}
	n.Content = content
	if n.ID == "" {
		n.ID = idgen.New()
	}
	if n.DOMLocator != "" {
		if _, err := anchor.ParseLocator([]byte(n.DOMLocator)); err != nil {
			s.logger.Warn("memo: saving note with unusable locator", "note_id", n.ID, "error", err)
		}
	}
	if err := s.store.InsertNote(ctx, n); err != nil {
		return fmt.Errorf("memo: insert note: %w", err)
	}
	s.logger.Info("memo: note saved", "note_id", n.ID, "url", n.URL, "anchored", n.DOMLocator != "")
	return nil
}

// SaveNote stores a note and highlights it in every open tab of its page.
// When in.Text is set and no locator is given, the page is loaded and the
// locator built around that text.
func (s *Service) SaveNote(ctx context.Context, in NoteInput) (*Note, error) {
	n := &Note{URL: in.URL, Content: in.Content, DOMLocator: in.DOMLocator}
	if n.DOMLocator == "" && in.Text != "" {
		loc, err := s.locateText(ctx, in.URL, in.Text, in.Occurrence)
		if err != nil {
			return nil, err
		}
		n.DOMLocator = loc
	}
	if err := s.save(ctx, n); err != nil {
		return nil, err
	}
	s.broadcastHighlight(n, "")
	return n, nil
}

// locateText loads a page and serialises a locator around the given
// occurrence of text.
func (s *Service) locateText(ctx context.Context, pageURL, text string, occurrence int) (string, error) {
	if strings.TrimSpace(pageURL) == "" {
		return "", ErrEmptyURL
	}
	doc, err := s.loader.Load(ctx, pageURL)
	if err != nil {
		return "", err
	}
	root, err := nethtml.Parse(bytes.NewReader(doc.HTML))
	if err != nil {
		return "", fmt.Errorf("memo: parse %s: %w", pageURL, err)
	}
	r, err := anchor.FindText(root, text, occurrence)
	if err != nil {
		return "", err
	}
	return anchor.Build(r).Encode()
}

// GetNote returns a note by id.
func (s *Service) GetNote(ctx context.Context, id string) (*Note, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	return n, nil
}

// ListNotes returns notes oldest first.
func (s *Service) ListNotes(ctx context.Context, opts ListOptions) ([]*Note, error) {
	notes, err := s.store.ListNotes(ctx, opts)
	if err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []*Note{}
	}
	return notes, nil
}

// CountNotes counts the notes of a page, or all notes when pageURL is empty.
func (s *Service) CountNotes(ctx context.Context, pageURL string) (int, error) {
	return s.store.CountNotes(ctx, pageURL)
}

// DeleteNote removes a note and tells every open tab of its page to drop
// the highlight.
func (s *Service) DeleteNote(ctx context.Context, id string) (*Note, error) {
	n, err := s.store.DeleteNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	}
	for _, t := range s.tabsFor(n.URL) {
		if err := s.bus.Send(t.id, bus.Message{Type: bus.RemoveHighlight, NoteID: n.ID}); err != nil {
			s.logger.Debug("memo: remove highlight not delivered", "tab", t.id, "error", err)
		}
	}
	s.logger.Info("memo: note deleted", "note_id", n.ID, "url", n.URL)
	return n, nil
}

// --- tabs ---

// OpenTab attaches a loaded document as a tab and schedules the restore
// pass after the configured delay.
func (s *Service) OpenTab(doc *snapshot.Document) (*Tab, error) {
	root, err := nethtml.Parse(bytes.NewReader(doc.HTML))
	if err != nil {
		return nil, fmt.Errorf("memo: parse %s: %w", doc.URL, err)
	}
	id := idgen.Tab()
	page := anchor.NewPage(root, anchor.Options{
		Styling: s.styling,
		Span:    s.span,
		Prober:  doc.Prober(),
		Logger:  s.logger.With("tab", id),
	})
	t := newTab(s, id, store.NormalizeURL(doc.URL), page)

	s.mu.Lock()
	s.tabs[id] = t
	s.mu.Unlock()

	t.ScheduleRestore(s.config.Restore.Delay)
	s.logger.Info("memo: tab opened", "tab", id, "url", t.url)
	return t, nil
}

// LoadTab loads a page and opens it as a tab.
func (s *Service) LoadTab(ctx context.Context, pageURL string) (*Tab, error) {
	doc, err := s.loader.Load(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return s.OpenTab(doc)
}

// Tab returns an open tab.
func (s *Service) Tab(id string) (*Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[id]
	return t, ok
}

// Tabs returns the open tabs ordered by id.
func (s *Service) Tabs() []*Tab {
	s.mu.Lock()
	tabs := make([]*Tab, 0, len(s.tabs))
	for _, t := range s.tabs {
		tabs = append(tabs, t)
	}
	s.mu.Unlock()
	sort.Slice(tabs, func(i, j int) bool { return tabs[i].id < tabs[j].id })
	return tabs
}

// CloseTab closes an open tab.
func (s *Service) CloseTab(id string) error {
	t, ok := s.Tab(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTab, id)
	}
	t.Close()
	return nil
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	delete(s.tabs, id)
	s.mu.Unlock()
}

func (s *Service) tabsFor(pageURL string) []*Tab {
	pageURL = store.NormalizeURL(pageURL)
	var out []*Tab
	for _, t := range s.Tabs() {
		if t.url == pageURL {
			out = append(out, t)
		}
	}
	return out
}

func (s *Service) broadcastHighlight(n *Note, except string) {
	for _, t := range s.tabsFor(n.URL) {
		if t.id != except {
			t.highlightAsync(n)
		}
	}
}

// AddNoteAtSelection is the context-menu flow: it asks the tab for the
// locator of its current selection, then tells it to open the editor there.
// A tab with no usable selection answers with an empty locator; the editor
// still opens and the note is saved without a highlight.
func (s *Service) AddNoteAtSelection(ctx context.Context, tabID, selectedText string) error {
	if _, ok := s.Tab(tabID); !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTab, tabID)
	}
	resp, err := s.bus.Request(ctx, tabID, bus.Message{
		Type:         bus.RequestSelectionContext,
		SelectedText: selectedText,
	})
	if err != nil {
		return fmt.Errorf("memo: selection context: %w", err)
	}
	if resp.Error != "" {
		s.logger.Info("memo: selection not anchorable", "tab", tabID, "reason", resp.Error)
	}
	return s.bus.Send(tabID, bus.Message{
		Type:         bus.OpenEditorAtSelection,
		SelectedText: resp.SelectedText,
		DOMLocator:   resp.DOMLocator,
	})
}

// --- whole-page operations ---

// loadPage loads and parses a page outside any tab. sanitize passes the
// HTML through the view policy first and forces inline marker styles,
// since stylesheets do not survive sanitising.
func (s *Service) loadPage(ctx context.Context, pageURL string, sanitize bool) (*anchor.Page, error) {
	doc, err := s.loader.Load(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	src := doc.HTML
	opts := anchor.Options{Styling: s.styling, Span: s.span, Prober: doc.Prober(), Logger: s.logger}
	if sanitize {
		src = s.view.SanitizeBytes(src)
		opts.Styling = anchor.StylingInline
	}
	root, err := nethtml.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("memo: parse %s: %w", pageURL, err)
	}
	return anchor.NewPage(root, opts), nil
}

// CheckAnchors loads a page and reports, per note, whether it can still be
// highlighted.
func (s *Service) CheckAnchors(ctx context.Context, pageURL string) ([]Report, error) {
	notes, err := s.store.ListNotes(ctx, ListOptions{URL: pageURL})
	if err != nil {
		return nil, err
	}
	page, err := s.loadPage(ctx, pageURL, false)
	if err != nil {
		return nil, err
	}
	return restorePass(page, notes, s.logger.With("url", pageURL)), nil
}

// AnnotateOptions controls Annotate.
type AnnotateOptions struct {
	OpenNote string // note whose popup is shown
	Sanitize bool
}

// Annotate loads a page, highlights its notes and renders the result.
func (s *Service) Annotate(ctx context.Context, pageURL string, opts AnnotateOptions) ([]byte, []Report, error) {
	notes, err := s.store.ListNotes(ctx, ListOptions{URL: pageURL})
	if err != nil {
		return nil, nil, err
	}
	page, err := s.loadPage(ctx, pageURL, opts.Sanitize)
	if err != nil {
		return nil, nil, err
	}
	reports := restorePass(page, notes, s.logger.With("url", pageURL))
	if opts.OpenNote != "" {
		for _, n := range notes {
			if n.ID == opts.OpenNote {
				page.ShowPopup(n.ID, n.Content)
				break
			}
		}
	}
	var buf bytes.Buffer
	if err := nethtml.Render(&buf, page.Document()); err != nil {
		return nil, nil, fmt.Errorf("memo: render: %w", err)
	}
	return buf.Bytes(), reports, nil
}

// exportDate is the note date format of the export. Go layouts have no
// unpadded 24-hour field.
const exportDate = "02-Jan-2006 15:04"

// Export renders the notes of a page, or of every page when pageURL is
// empty, as markdown: one section per page, each note quoting its text.
func (s *Service) Export(ctx context.Context, pageURL string) (string, error) {
	notes, err := s.store.ListNotes(ctx, ListOptions{URL: pageURL})
	if err != nil {
		return "", err
	}
	var order []string
	byURL := make(map[string][]*Note)
	for _, n := range notes {
		if _, ok := byURL[n.URL]; !ok {
			order = append(order, n.URL)
		}
		byURL[n.URL] = append(byURL[n.URL], n)
	}

	var b strings.Builder
	for _, u := range order {
		fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(u))
		for _, n := range byURL[u] {
			fmt.Fprintf(&b, "<h3>%s</h3>", n.Created().Format(exportDate))
			if loc, err := anchor.ParseLocator([]byte(n.DOMLocator)); err == nil && loc.Snippet.Selected != "" {
				fmt.Fprintf(&b, "<blockquote><p>%s</p></blockquote>", html.EscapeString(loc.Snippet.Selected))
			}
			fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(n.Content))
		}
	}
	if b.Len() == 0 {
		return "", nil
	}
	md, err := s.md.ConvertString(b.String())
	if err != nil {
		return "", fmt.Errorf("memo: export: %w", err)
	}
	return md, nil
}
