// CLAUDE:SUMMARY Highlight styling modes and the style capability probe (hidden probe element + cascade over the page's stylesheets).
package anchor

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Styling selects how markers and the popup are styled.
type Styling string

const (
	StylingAuto   Styling = "auto"   // probe the page
	StylingClass  Styling = "class"  // utility classes
	StylingInline Styling = "inline" // inline style attributes
)

// ParseStyling parses a config value. Empty means auto.
func ParseStyling(s string) (Styling, error) {
	switch Styling(strings.ToLower(strings.TrimSpace(s))) {
	case "", StylingAuto:
		return StylingAuto, nil
	case StylingClass:
		return StylingClass, nil
	case StylingInline:
		return StylingInline, nil
	}
	return "", fmt.Errorf("anchor: unknown styling %q", s)
}

// Utility classes and their inline equivalents. Both render the same marker.
const (
	markerClass = "bg-yellow-300 text-black underline decoration-2 decoration-yellow-500 rounded-sm px-0.5 cursor-pointer"
	markerStyle = "background-color: #fde047; color: #000000; text-decoration: underline; " +
		"text-decoration-color: #eab308; text-decoration-thickness: 2px; border-radius: 0.125rem; " +
		"padding: 0 2px; cursor: pointer"

	overlayClass = "fixed inset-0 bg-black bg-opacity-50 flex items-center justify-center z-[9999]"
	overlayStyle = "position: fixed; top: 0; left: 0; right: 0; bottom: 0; background-color: rgba(0, 0, 0, 0.5); " +
		"display: flex; align-items: center; justify-content: center; z-index: 9999"
	cardClass = "bg-white rounded-lg shadow-xl p-6 max-w-md w-full mx-4"
	cardStyle = "background-color: #ffffff; border-radius: 8px; " +
		"box-shadow: 0 20px 25px -5px rgba(0, 0, 0, 0.1), 0 10px 10px -5px rgba(0, 0, 0, 0.04); " +
		"padding: 24px; max-width: 28rem; width: 100%; margin: 0 16px"
	titleClass = "text-lg font-semibold mb-4 text-gray-900"
	titleStyle = "font-size: 1.125rem; font-weight: 600; margin-bottom: 16px; color: #111827"
	closeClass = "bg-blue-500 hover:bg-blue-600 text-white font-medium py-2 px-4 rounded transition-colors"
	closeStyle = "background-color: #3b82f6; color: #ffffff; font-weight: 500; padding: 8px 16px; " +
		"border-radius: 4px; border: none; cursor: pointer; transition: background-color 0.2s"
)

// styleAttr returns the attribute that applies a class list or an inline style.
func styleAttr(classes bool, class, style string) html.Attribute {
	if classes {
		return html.Attribute{Key: "class", Val: class}
	}
	return html.Attribute{Key: "style", Val: style}
}

// StyleProber decides whether utility classes render on a page.
type StyleProber interface {
	ClassStylingActive(doc *html.Node) bool
}

// CSSProber probes the document's own <style> sheets plus Sheets (typically
// the text of linked stylesheets fetched by the caller).
type CSSProber struct {
	Sheets []string
}

// ClassStylingActive implements StyleProber.
func (c CSSProber) ClassStylingActive(doc *html.Node) bool {
	return DetectStyleCapability(doc, c.Sheets...)
}

const probeClass = "bg-yellow-300"

// Colours the probe class resolves to across utility framework releases.
var probeColors = [][3]uint8{
	{253, 224, 71},
	{254, 240, 138},
}

// DetectStyleCapability appends a hidden probe element carrying a known
// utility class, computes its background colour from the cascade and
// removes it again. The probe never stays in the document.
func DetectStyleCapability(doc *html.Node, sheets ...string) bool {
	host := findBody(doc)
	if host == nil {
		return false
	}
	probe := newElement(atom.Div, "class", probeClass, "style", "display: none")
	host.AppendChild(probe)
	defer host.RemoveChild(probe)

	rgb, ok := parseColor(computedBackground(doc, probe, sheets))
	if !ok {
		return false
	}
	for _, want := range probeColors {
		if rgb == want {
			return true
		}
	}
	return false
}

// computedBackground resolves the background colour of el from every
// stylesheet in source order. Specificity is ignored; !important wins.
func computedBackground(doc, el *html.Node, extra []string) string {
	var sources []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Style {
			sources = append(sources, textContent(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	sources = append(sources, extra...)

	c := cascade{el: el, vars: map[string]string{}}
	for _, src := range sources {
		sheet, err := parser.Parse(src)
		if err != nil {
			continue
		}
		c.apply(sheet.Rules)
	}
	return c.resolveVars(c.background)
}

type cascade struct {
	el         *html.Node
	vars       map[string]string
	background string
	important  bool
}

func (c *cascade) apply(rules []*css.Rule) {
	for _, r := range rules {
		if r.Kind == css.AtRule {
			c.apply(r.Rules)
			continue
		}
		self, inherited := c.matches(r.Selectors)
		if !self && !inherited {
			continue
		}
		for _, d := range r.Declarations {
			prop := strings.ToLower(d.Property)
			switch {
			case strings.HasPrefix(prop, "--"):
				c.vars[prop] = d.Value
			case self && (prop == "background-color" || prop == "background"):
				if c.important && !d.Important {
					continue
				}
				c.background = d.Value
				c.important = d.Important
			}
		}
	}
}

// matches reports whether any selector matches the element itself or one
// of its ancestors (custom properties inherit).
func (c *cascade) matches(selectors []string) (self, ancestor bool) {
	for _, s := range selectors {
		m, err := cascadia.Compile(s)
		if err != nil {
			continue
		}
		if m.Match(c.el) {
			self = true
		}
		for p := c.el.Parent; p != nil && !ancestor; p = p.Parent {
			if p.Type == html.ElementNode && m.Match(p) {
				ancestor = true
			}
		}
	}
	return self, ancestor
}

var varRe = regexp.MustCompile(`var\(\s*(--[\w-]+)\s*(?:,\s*([^()]*))?\)`)

func (c *cascade) resolveVars(v string) string {
	for range 4 {
		if !strings.Contains(v, "var(") {
			break
		}
		v = varRe.ReplaceAllStringFunc(v, func(m string) string {
			sub := varRe.FindStringSubmatch(m)
			if val, ok := c.vars[strings.ToLower(sub[1])]; ok {
				return strings.TrimSpace(val)
			}
			return strings.TrimSpace(sub[2])
		})
	}
	return v
}

var colorTokenRe = regexp.MustCompile(`(?i)#[0-9a-f]{3,8}\b|rgba?\([^)]*\)`)

// parseColor extracts the first hex or rgb()/rgba() colour from a value.
func parseColor(v string) ([3]uint8, bool) {
	tok := colorTokenRe.FindString(v)
	if tok == "" {
		return [3]uint8{}, false
	}
	if tok[0] == '#' {
		return parseHex(tok[1:])
	}
	open := strings.IndexByte(tok, '(')
	args := strings.NewReplacer(",", " ", "/", " ").Replace(tok[open+1 : len(tok)-1])
	fields := strings.Fields(args)
	if len(fields) < 3 {
		return [3]uint8{}, false
	}
	var out [3]uint8
	for i := range 3 {
		ch, ok := parseChannel(fields[i])
		if !ok {
			return [3]uint8{}, false
		}
		out[i] = ch
	}
	return out, true
}

func parseHex(h string) ([3]uint8, bool) {
	switch len(h) {
	case 3, 4:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6, 8:
		h = h[:6]
	default:
		return [3]uint8{}, false
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return [3]uint8{}, false
	}
	return [3]uint8{uint8(n >> 16), uint8(n >> 8), uint8(n)}, true
}

func parseChannel(s string) (uint8, bool) {
	pct := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false
	}
	if pct {
		f = f * 255 / 100
	}
	return uint8(math.Round(math.Max(0, math.Min(255, f)))), true
}
