package anchor

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

type fixedProber struct {
	active bool
	calls  int
}

func (f *fixedProber) ClassStylingActive(*html.Node) bool {
	f.calls++
	return f.active
}

func TestDetectStyleCapability(t *testing.T) {
	cases := []struct {
		name   string
		doc    string
		sheets []string
		want   bool
	}{
		{"no stylesheet", `<p>x</p>`, nil, false},
		{"inline sheet", `<style>.bg-yellow-300 { background-color: rgb(253, 224, 71) }</style><p>x</p>`, nil, true},
		{"space syntax", `<style>.bg-yellow-300 { background-color: rgb(253 224 71 / 1) }</style>`, nil, true},
		{"linked sheet", `<p>x</p>`, []string{".bg-yellow-300 { background-color: #fef08a }"}, true},
		{"other colour", `<style>.bg-yellow-300 { background-color: red; background: #123456 }</style>`, nil, false},
		{"important wins", `<style>div { background-color: #fde047 !important } .bg-yellow-300 { background-color: #000 }</style>`, nil, true},
		{"media query", `<style>@media screen { .bg-yellow-300 { background-color: #fde047 } }</style>`, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := parseDoc(t, tc.doc)
			before := render(t, doc)
			if got := DetectStyleCapability(doc, tc.sheets...); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			if after := render(t, doc); after != before {
				t.Fatalf("probe left in document:\n%s", after)
			}
		})
	}
}

func TestPage_ProbesOnce(t *testing.T) {
	doc := parseDoc(t, `<p id="a">one two</p>`)
	prober := &fixedProber{active: true}
	page := NewPage(doc, Options{Prober: prober})

	for _, w := range []string{"one", "two"} {
		loc := Locator{Path: Path{{Tag: "p", ID: "a"}}, Snippet: Snippet{Selected: w}}
		h, err := page.Highlight(loc, w, "")
		if err != nil {
			t.Fatal(err)
		}
		if getAttr(h.Markers[0], "class") != markerClass {
			t.Fatalf("%s: expected class styling", w)
		}
	}
	if prober.calls != 1 {
		t.Fatalf("probe calls: got %d", prober.calls)
	}
}

func TestPage_ForcedStylingSkipsProbe(t *testing.T) {
	prober := &fixedProber{active: true}
	page := NewPage(parseDoc(t, `<p>x</p>`), Options{Styling: StylingInline, Prober: prober})
	if page.ClassStyling() || prober.calls != 0 {
		t.Fatalf("classes %v, calls %d", page.ClassStyling(), prober.calls)
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string][3]uint8{
		"#fde047":                 {253, 224, 71},
		"#FFF":                    {255, 255, 255},
		"rgba(254,240,138,0.5)":   {254, 240, 138},
		"rgb(100% 0% 50%)":        {255, 0, 128},
		"url(x.png) #000000 none": {0, 0, 0},
	}
	for in, want := range cases {
		got, ok := parseColor(in)
		if !ok || got != want {
			t.Fatalf("%q: got %v %v", in, got, ok)
		}
	}
	if _, ok := parseColor("transparent"); ok {
		t.Fatal("named colour must not parse")
	}
}

func TestResolveVars(t *testing.T) {
	c := cascade{vars: map[string]string{"--tw-bg-opacity": " 1"}}
	got := c.resolveVars("rgb(253 224 71 / var(--tw-bg-opacity))")
	if got != "rgb(253 224 71 / 1)" {
		t.Fatalf("got %q", got)
	}
	if got := c.resolveVars("var(--missing, #fff)"); !strings.EqualFold(got, "#fff") {
		t.Fatalf("fallback: got %q", got)
	}
}
