package anchor

import (
	"errors"
	"strings"
	"testing"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

func parseDoc(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func render(t *testing.T, n *html.Node) string {
	t.Helper()
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		t.Fatalf("render: %v", err)
	}
	return sb.String()
}

func query(t *testing.T, doc *html.Node, sel string) *html.Node {
	t.Helper()
	n := cascadia.MustCompile(sel).MatchFirst(doc)
	if n == nil {
		t.Fatalf("no element for %q", sel)
	}
	return n
}

func buildFor(t *testing.T, doc *html.Node, text string) Locator {
	t.Helper()
	r, err := FindText(doc, text, 1)
	if err != nil {
		t.Fatal(err)
	}
	return Build(r)
}

func TestBuild_IDParagraph(t *testing.T) {
	doc := parseDoc(t, `<p id="a">say hello world today</p>`)
	loc := buildFor(t, doc, "hello world")

	if got := loc.Path.Selector(); got != "p#a" {
		t.Fatalf("path: got %q", got)
	}
	want := Snippet{Before: "say ", Selected: "hello world", After: " today"}
	if loc.Snippet != want {
		t.Fatalf("snippet: got %+v, want %+v", loc.Snippet, want)
	}

	raw, err := loc.Encode()
	if err != nil {
		t.Fatal(err)
	}
	const wantJSON = `{"structuralPath":["p#a"],"textSnippet":{"before":"say ","selected":"hello world","after":" today"}}`
	if raw != wantJSON {
		t.Fatalf("json: got %s", raw)
	}
}

func TestBuild_SnippetWindow(t *testing.T) {
	long := strings.Repeat("x", 40) + "TARGET" + strings.Repeat("y", 40)
	doc := parseDoc(t, `<div><p>`+long+`</p></div>`)
	loc := buildFor(t, doc, "TARGET")

	if n := len(loc.Snippet.Before); n != SnippetWindow {
		t.Fatalf("before length: got %d", n)
	}
	if n := len(loc.Snippet.After); n != SnippetWindow {
		t.Fatalf("after length: got %d", n)
	}
}

func TestBuild_CollapsedSelection(t *testing.T) {
	doc := parseDoc(t, `<p id="a">abc</p>`)
	tn := query(t, doc, "p").FirstChild
	loc := Build(Range{StartContainer: tn, StartOffset: 2, EndContainer: tn, EndOffset: 1})

	if loc.Snippet.Selected != "" {
		t.Fatalf("selected: got %q", loc.Snippet.Selected)
	}
	if loc.Snippet.Before != "ab" || loc.Snippet.After != "c" {
		t.Fatalf("snippet: got %+v", loc.Snippet)
	}
	if loc.Anchorable() {
		t.Fatal("collapsed selection must not be anchorable")
	}
}

func TestBuild_ElementContainerCountsCharacters(t *testing.T) {
	doc := parseDoc(t, `<p id="a">say <b>hello</b> world</p>`)
	p := query(t, doc, "p")
	loc := Build(Range{StartContainer: p, StartOffset: 4, EndContainer: p, EndOffset: 9})

	want := Snippet{Before: "say ", Selected: "hello", After: " world"}
	if loc.Snippet != want {
		t.Fatalf("snippet: got %+v, want %+v", loc.Snippet, want)
	}
	if got := loc.Path.Selector(); got != "p#a" {
		t.Fatalf("path: got %q", got)
	}
}

func TestBuild_DetachedContainer(t *testing.T) {
	loc := Build(Range{StartContainer: &html.Node{Type: html.DocumentNode}})
	if loc.Path == nil || len(loc.Path) != 0 {
		t.Fatalf("path: got %#v", loc.Path)
	}
	raw, err := loc.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(raw, `"structuralPath":[]`) {
		t.Fatalf("json: got %s", raw)
	}
}

func TestPathOf_StopsAtID(t *testing.T) {
	doc := parseDoc(t, `<body><div id="root"><section><p>one</p><p>two</p></section></div></body>`)
	loc := buildFor(t, doc, "two")

	if got := loc.Path.Selector(); got != "div#root > section > p:nth-of-type(2)" {
		t.Fatalf("path: got %q", got)
	}
}

func TestPathOf_OmitsUniqueIndex(t *testing.T) {
	doc := parseDoc(t, `<body><div><span>x</span></div></body>`)
	got := PathOf(query(t, doc, "span")).Selector()
	if got != "html > body > div > span" {
		t.Fatalf("path: got %q", got)
	}
}

func TestPathOf_SelectsOriginal(t *testing.T) {
	doc := parseDoc(t, `<ul><li>a</li><li>b</li><li><em>c</em><em>d</em></li></ul>`)
	for _, sel := range []string{"li:nth-of-type(2)", "em:nth-of-type(2)"} {
		el := query(t, doc, sel)
		path := PathOf(el)
		nodes := cascadia.MustCompile(path.Selector()).MatchAll(doc)
		if len(nodes) != 1 || nodes[0] != el {
			t.Fatalf("%s: path %q selects %d nodes", sel, path, len(nodes))
		}
	}
}

func TestFindText_Occurrence(t *testing.T) {
	doc := parseDoc(t, `<p>ab ab</p><script>ab</script><p>ab</p>`)

	r, err := FindText(doc, "ab", 3)
	if err != nil {
		t.Fatal(err)
	}
	if r.StartContainer.Parent.Data != "p" || r.StartOffset != 0 {
		t.Fatalf("third occurrence: got parent %s offset %d", r.StartContainer.Parent.Data, r.StartOffset)
	}

	if _, err := FindText(doc, "ab", 4); !errors.Is(err, ErrTextNotFound) {
		t.Fatalf("fourth occurrence: got %v", err)
	}
}

func TestSegment_EscapeRoundTrip(t *testing.T) {
	for _, id := range []string{"a", "1a.b", "-2x", "with space", "x:y", "émoji-é"} {
		seg := Segment{Tag: "div", ID: id}
		back, err := ParseSegment(seg.String())
		if err != nil {
			t.Fatalf("%q: %v", id, err)
		}
		if back != seg {
			t.Fatalf("%q: got %+v from %q", id, back, seg.String())
		}
	}
}

func TestParseLocator(t *testing.T) {
	loc := Locator{
		Path:    Path{{Tag: "div", ID: "main"}, {Tag: "p", Nth: 3}},
		Snippet: Snippet{Before: "b", Selected: "s", After: "a"},
	}
	raw, err := loc.Encode()
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseLocator([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if back.Path.Selector() != loc.Path.Selector() || back.Snippet != loc.Snippet {
		t.Fatalf("round trip: got %+v", back)
	}
}

func TestParseLocator_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{{`,
		"missing field":  `{"structuralPath":["p"]}`,
		"path not array": `{"structuralPath":"p","textSnippet":{"before":"","selected":"x","after":""}}`,
		"bad segment":    `{"structuralPath":["p:hover"],"textSnippet":{"before":"","selected":"x","after":""}}`,
	}
	for name, raw := range cases {
		if _, err := ParseLocator([]byte(raw)); !errors.Is(err, ErrMalformedLocator) {
			t.Fatalf("%s: got %v", name, err)
		}
	}
}
