package anchor

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Range is a selection in a parsed document. Offsets count characters
// (runes) into the start container's text content, whether the container
// is a text node or an element.
type Range struct {
	StartContainer *html.Node
	StartOffset    int
	EndContainer   *html.Node
	EndOffset      int
}

// Build captures a locator for r. It never fails: when no element can be
// derived from the start container the path is empty and callers must treat
// the locator as unanchorable.
func Build(r Range) Locator {
	loc := Locator{Path: PathOf(anchorElement(r.StartContainer))}
	if loc.Path == nil {
		loc.Path = Path{}
	}

	text := []rune(textContent(r.StartContainer))
	start := clamp(r.StartOffset, 0, len(text))
	end := clamp(r.EndOffset, 0, len(text))

	loc.Snippet.Before = string(text[max(0, start-SnippetWindow):start])
	if end > start {
		loc.Snippet.Selected = string(text[start:end])
	}
	if end < start {
		end = start
	}
	loc.Snippet.After = string(text[end:min(len(text), end+SnippetWindow)])
	return loc
}

// anchorElement maps a range container to the element that holds it.
func anchorElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	switch n.Type {
	case html.ElementNode:
		return n
	case html.TextNode:
		if p := n.Parent; p != nil && p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// PathOf derives the structural path of el. The walk stops at the first
// element carrying an id; sibling indexes only appear when the tag is
// ambiguous among the parent's children.
func PathOf(el *html.Node) Path {
	if el == nil || el.Type != html.ElementNode {
		return nil
	}
	var rev Path
	for n := el; n != nil && n.Type == html.ElementNode; n = n.Parent {
		seg := Segment{Tag: n.Data}
		if id := getAttr(n, "id"); id != "" {
			seg.ID = id
			rev = append(rev, seg)
			break
		}
		if p := n.Parent; p != nil && p.Type == html.ElementNode {
			idx, total := 0, 0
			for s := p.FirstChild; s != nil; s = s.NextSibling {
				if s.Type == html.ElementNode && s.Data == n.Data {
					total++
					if s == n {
						idx = total
					}
				}
			}
			if total > 1 {
				seg.Nth = idx
			}
		}
		rev = append(rev, seg)
	}

	path := make(Path, len(rev))
	for i, s := range rev {
		path[len(rev)-1-i] = s
	}
	return path
}

// FindText returns a Range over the n-th (1-based) occurrence of text that
// lies entirely inside one rendered text node.
func FindText(doc *html.Node, text string, occurrence int) (Range, error) {
	if text == "" {
		return Range{}, fmt.Errorf("%w: empty selection", ErrTextNotFound)
	}
	if occurrence < 1 {
		occurrence = 1
	}
	seen := 0
	for _, tn := range textNodes(doc) {
		if isRawText(tn.Parent) {
			continue
		}
		data := tn.Data
		from := 0
		for {
			i := strings.Index(data[from:], text)
			if i < 0 {
				break
			}
			seen++
			pos := from + i
			if seen == occurrence {
				start := len([]rune(data[:pos]))
				return Range{
					StartContainer: tn,
					StartOffset:    start,
					EndContainer:   tn,
					EndOffset:      start + len([]rune(text)),
				}, nil
			}
			from = pos + len(text)
		}
	}
	return Range{}, fmt.Errorf("%w: %q (occurrence %d of %d)", ErrTextNotFound, text, occurrence, seen)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
