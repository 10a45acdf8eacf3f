// CLAUDE:SUMMARY Highlight resolver — locates a stored locator in a document (path, context fallback, text strategies) and splices marker spans in place.
package anchor

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SpanMode controls how a match crossing several text nodes is wrapped.
type SpanMode string

const (
	// SpanAll wraps every overlapping text node, one marker per node.
	SpanAll SpanMode = "all"
	// SpanFirst wraps only the first overlapping text node.
	SpanFirst SpanMode = "first"
)

// ParseSpanMode parses a config value. Empty means SpanAll.
func ParseSpanMode(s string) (SpanMode, error) {
	switch SpanMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", SpanAll:
		return SpanAll, nil
	case SpanFirst:
		return SpanFirst, nil
	}
	return "", fmt.Errorf("anchor: unknown span mode %q", s)
}

// Options configures a Page.
type Options struct {
	Styling Styling     // default StylingAuto
	Span    SpanMode    // default SpanAll
	Prober  StyleProber // used when Styling is auto; default CSSProber{}
	Logger  *slog.Logger
}

func (o *Options) defaults() {
	if o.Styling == "" {
		o.Styling = StylingAuto
	}
	if o.Span == "" {
		o.Span = SpanAll
	}
	if o.Prober == nil {
		o.Prober = CSSProber{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Page is the resolver state for one loaded document: the markers it
// created, the popup it shows and the styling decided for this load.
type Page struct {
	doc     *html.Node
	opts    Options
	probed  bool
	classes bool
	markers map[string][]*html.Node // note id → markers
	owner   map[*html.Node]string   // marker → note id
	popup   *popup
}

// NewPage wraps a parsed document.
func NewPage(doc *html.Node, opts Options) *Page {
	opts.defaults()
	return &Page{
		doc:     doc,
		opts:    opts,
		markers: make(map[string][]*html.Node),
		owner:   make(map[*html.Node]string),
	}
}

// Document returns the underlying tree.
func (p *Page) Document() *html.Node { return p.doc }

// ClassStyling reports whether markers use utility classes. In auto mode
// the probe runs once, on first use.
func (p *Page) ClassStyling() bool {
	switch p.opts.Styling {
	case StylingClass:
		return true
	case StylingInline:
		return false
	}
	if !p.probed {
		p.classes = p.opts.Prober.ClassStylingActive(p.doc)
		p.probed = true
		p.opts.Logger.Debug("anchor: style probe", "class_styling", p.classes)
	}
	return p.classes
}

// Match is a located target span.
type Match struct {
	Root    *html.Node // element searched
	Start   int        // byte offset of the target in Root's text content
	End     int        // exclusive
	Via     string     // "path" or "context"
	TextVia string     // "context", "selected" or "trimmed"
}

// Locate finds the target of loc without modifying the document.
func (p *Page) Locate(loc Locator) (Match, error) {
	if !loc.Anchorable() {
		return Match{}, ErrUnanchorable
	}
	sn := loc.Snippet

	m := Match{Via: "path", Root: p.queryPath(loc.Path)}
	if m.Root == nil {
		m.Via = "context"
		m.Root = p.findByContext(sn.Context())
	}
	if m.Root == nil {
		return Match{}, ErrElementNotFound
	}

	full := textContent(m.Root)
	m.Start = -1
	if i := strings.Index(full, sn.Context()); i >= 0 {
		m.Start, m.TextVia = i+len(sn.Before), "context"
	} else if i := strings.Index(full, sn.Selected); i >= 0 {
		m.Start, m.TextVia = i, "selected"
	} else if t := strings.TrimSpace(sn.Selected); t != "" {
		if i := strings.Index(full, t); i >= 0 {
			m.Start, m.TextVia = i, "trimmed"
		}
	}
	if m.Start < 0 {
		return Match{}, ErrTextNotFound
	}

	// The untrimmed length is kept even for a trimmed match.
	m.End = min(m.Start+len(sn.Selected), len(full))
	for m.End < len(full) && !utf8.RuneStart(full[m.End]) {
		m.End++
	}
	return m, nil
}

// queryPath returns the element the path selects, if it selects exactly one.
// The first segment may match anywhere, the following ones must be children
// of the previous match. cascadia lowercases type selectors, so tags are
// compared here to keep camelCase foreign elements such as foreignObject
// reachable.
func (p *Page) queryPath(path Path) *html.Node {
	var cur []*html.Node
	for i, seg := range path {
		sel, err := cascadia.Compile(Segment{Tag: "*", ID: seg.ID, Nth: seg.Nth}.String())
		if err != nil {
			p.opts.Logger.Debug("anchor: path does not compile", "path", path.Selector(), "error", err)
			return nil
		}
		match := func(n *html.Node) bool {
			return n.Type == html.ElementNode && strings.EqualFold(n.Data, seg.Tag) && sel.Match(n)
		}
		var next []*html.Node
		if i == 0 {
			next = cascadia.Selector(match).MatchAll(p.doc)
		} else {
			for _, parent := range cur {
				for c := parent.FirstChild; c != nil; c = c.NextSibling {
					if match(c) {
						next = append(next, c)
					}
				}
			}
		}
		if len(next) == 0 {
			return nil
		}
		cur = next
	}
	if len(cur) != 1 {
		return nil
	}
	return cur[0]
}

// fallbackTags are the text-bearing elements scanned by the context fallback.
var fallbackTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Span: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Td: true, atom.Th: true, atom.A: true,
	atom.Strong: true, atom.Em: true, atom.Code: true, atom.Pre: true,
}

// findByContext returns the first allow-listed element, in document order,
// whose text contains ctx.
func (p *Page) findByContext(ctx string) *html.Node {
	var found *html.Node
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && fallbackTags[n.DataAtom] &&
			strings.Contains(textContent(n), ctx) {
			found = n
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(p.doc)
	return found
}

// Highlight is the result of a successful restore.
type Highlight struct {
	NoteID  string
	Match   Match
	Markers []*html.Node
}

// hit is the slice [from, to) of one text node covered by a match.
type hit struct {
	node     *html.Node
	from, to int
}

// Highlight locates loc and wraps the matched characters in markers
// carrying the note id and content.
func (p *Page) Highlight(loc Locator, noteID, content string) (*Highlight, error) {
	m, err := p.Locate(loc)
	if err != nil {
		return nil, err
	}

	var hits []hit
	offset := 0
	for _, tn := range textNodes(m.Root) {
		start, end := offset, offset+len(tn.Data)
		offset = end
		if end <= m.Start || start >= m.End || isRawText(tn.Parent) {
			continue
		}
		hits = append(hits, hit{
			node: tn,
			from: max(0, m.Start-start),
			to:   min(len(tn.Data), m.End-start),
		})
		if p.opts.Span == SpanFirst {
			break
		}
	}
	if len(hits) == 0 {
		return nil, ErrTextNotFound
	}

	classes := p.ClassStyling()
	h := &Highlight{NoteID: noteID, Match: m}
	for _, ht := range hits {
		marker := p.splice(ht, noteID, content, classes)
		h.Markers = append(h.Markers, marker)
		p.markers[noteID] = append(p.markers[noteID], marker)
		p.owner[marker] = noteID
	}
	return h, nil
}

// Restore highlights loc and reports whether anything was wrapped.
func (p *Page) Restore(loc Locator, noteID, content string) bool {
	_, err := p.Highlight(loc, noteID, content)
	return err == nil
}

// splice replaces the text node with before / marker / after.
func (p *Page) splice(h hit, noteID, content string, classes bool) *html.Node {
	parent := h.node.Parent
	text := h.node.Data

	marker := newElement(atom.Span)
	marker.Attr = []html.Attribute{
		styleAttr(classes, markerClass, markerStyle),
		{Key: "data-note-id", Val: noteID},
		{Key: "data-note-content", Val: content},
	}
	marker.AppendChild(newText(text[h.from:h.to]))

	if h.from > 0 {
		parent.InsertBefore(newText(text[:h.from]), h.node)
	}
	parent.InsertBefore(marker, h.node)
	if h.to < len(text) {
		parent.InsertBefore(newText(text[h.to:]), h.node)
	}
	parent.RemoveChild(h.node)
	return marker
}

// Markers returns the markers currently shown for a note.
func (p *Page) Markers(noteID string) []*html.Node {
	return p.markers[noteID]
}

// Remove unwraps every marker of a note, merging the text back into its
// neighbours. It returns the number of markers removed.
func (p *Page) Remove(noteID string) int {
	removed := 0
	for _, m := range p.markers[noteID] {
		delete(p.owner, m)
		parent := m.Parent
		if parent == nil {
			continue
		}
		for c := m.FirstChild; c != nil; {
			next := c.NextSibling
			m.RemoveChild(c)
			parent.InsertBefore(c, m)
			c = next
		}
		parent.RemoveChild(m)
		normalize(parent)
		removed++
	}
	delete(p.markers, noteID)
	if p.popup != nil && p.popup.noteID == noteID {
		p.ClosePopup()
	}
	return removed
}
