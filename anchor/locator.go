// CLAUDE:SUMMARY Hybrid locator model (structural path + text snippet), CSS segment codec and JSON (de)serialisation with schema validation.
// Package anchor builds and resolves hybrid DOM locators.
//
// A locator combines two independent ways of finding a passage again:
//   - a structural path: tag segments from the root (or from the nearest
//     element carrying an id) down to the element holding the selection
//   - a text snippet: up to 30 characters before the selection, the
//     selection itself, and up to 30 characters after it
//
// Build produces a locator from a Range. A Page resolves locators against a
// parsed document and wraps the matched characters in marker spans:
//
//	loc := anchor.Build(r)
//	raw, _ := loc.Encode()          // store it
//	loc, err := anchor.ParseLocator(raw)
//	page := anchor.NewPage(doc, anchor.Options{})
//	ok := page.Restore(loc, noteID, content)
//
// All functions operate on golang.org/x/net/html trees and are not safe for
// concurrent use on the same document.
package anchor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SnippetWindow is the number of characters kept on each side of a selection.
const SnippetWindow = 30

var (
	// ErrMalformedLocator is returned when a stored locator cannot be decoded.
	ErrMalformedLocator = errors.New("anchor: malformed locator")
	// ErrUnanchorable is returned for locators with no structural path or no selected text.
	ErrUnanchorable = errors.New("anchor: locator is not anchorable")
	// ErrElementNotFound is returned when neither the path nor the context fallback finds an element.
	ErrElementNotFound = errors.New("anchor: element not found")
	// ErrTextNotFound is returned when the element is found but the text is not.
	ErrTextNotFound = errors.New("anchor: text not found in element")
)

// Segment is one step of a structural path.
type Segment struct {
	Tag string // tag name as parsed; foreign elements keep their case
	ID  string // element id; when set the path starts here
	Nth int    // 1-based position among same-tag siblings, 0 when the tag is unique
}

// String renders the segment as a CSS compound selector.
func (s Segment) String() string {
	switch {
	case s.ID != "":
		return s.Tag + "#" + escapeIdent(s.ID)
	case s.Nth > 0:
		return s.Tag + ":nth-of-type(" + strconv.Itoa(s.Nth) + ")"
	default:
		return s.Tag
	}
}

// ParseSegment parses the output of Segment.String.
func ParseSegment(raw string) (Segment, error) {
	end := strings.IndexAny(raw, "#:")
	if end < 0 {
		end = len(raw)
	}
	seg := Segment{Tag: raw[:end]}
	if !validTag(seg.Tag) {
		return Segment{}, fmt.Errorf("%w: bad tag in segment %q", ErrMalformedLocator, raw)
	}
	rest := raw[end:]
	switch {
	case rest == "":
	case rest[0] == '#':
		id, err := unescapeIdent(rest[1:])
		if err != nil || id == "" {
			return Segment{}, fmt.Errorf("%w: bad id in segment %q", ErrMalformedLocator, raw)
		}
		seg.ID = id
	case strings.HasPrefix(rest, ":nth-of-type(") && strings.HasSuffix(rest, ")"):
		n, err := strconv.Atoi(rest[len(":nth-of-type(") : len(rest)-1])
		if err != nil || n < 1 {
			return Segment{}, fmt.Errorf("%w: bad index in segment %q", ErrMalformedLocator, raw)
		}
		seg.Nth = n
	default:
		return Segment{}, fmt.Errorf("%w: unexpected suffix in segment %q", ErrMalformedLocator, raw)
	}
	return seg, nil
}

func validTag(tag string) bool {
	if tag == "" {
		return false
	}
	for _, r := range tag {
		if r <= ' ' || r == '>' || r == '#' || r == ':' || r == '.' || r == '[' {
			return false
		}
	}
	return true
}

// Path is a root-to-leaf list of segments.
type Path []Segment

// Selector joins the segments with the child combinator.
func (p Path) Selector() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, " > ")
}

func (p Path) String() string { return p.Selector() }

// MarshalJSON encodes the path as an array of segment strings.
func (p Path) MarshalJSON() ([]byte, error) {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return json.Marshal(parts)
}

// UnmarshalJSON decodes an array of segment strings.
func (p *Path) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	out := make(Path, 0, len(parts))
	for _, raw := range parts {
		seg, err := ParseSegment(raw)
		if err != nil {
			return err
		}
		out = append(out, seg)
	}
	*p = out
	return nil
}

// Snippet is the text captured around a selection.
type Snippet struct {
	Before   string `json:"before"`
	Selected string `json:"selected"`
	After    string `json:"after"`
}

// Context returns before+selected+after.
func (s Snippet) Context() string {
	return s.Before + s.Selected + s.After
}

// Locator is the serialisable anchor of a note. It is never modified after Build.
type Locator struct {
	Path    Path    `json:"structuralPath"`
	Snippet Snippet `json:"textSnippet"`
}

// Anchorable reports whether the locator carries enough to be resolved.
func (l Locator) Anchorable() bool {
	return len(l.Path) > 0 && l.Snippet.Selected != ""
}

// Encode serialises the locator to its stored JSON form.
func (l Locator) Encode() (string, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("anchor: encode locator: %w", err)
	}
	return string(data), nil
}

const locatorSchema = `{
  "type": "object",
  "required": ["structuralPath", "textSnippet"],
  "properties": {
    "structuralPath": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "textSnippet": {
      "type": "object",
      "required": ["before", "selected", "after"],
      "properties": {
        "before":   {"type": "string"},
        "selected": {"type": "string"},
        "after":    {"type": "string"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
)

func schema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		compiledSchema = jsonschema.MustCompileString("contextmemo://locator.schema.json", locatorSchema)
	})
	return compiledSchema
}

// ParseLocator validates and decodes a stored locator.
func ParseLocator(data []byte) (Locator, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrMalformedLocator, err)
	}
	if err := schema().Validate(raw); err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrMalformedLocator, err)
	}
	var loc Locator
	if err := json.Unmarshal(data, &loc); err != nil {
		if errors.Is(err, ErrMalformedLocator) {
			return Locator{}, err
		}
		return Locator{}, fmt.Errorf("%w: %v", ErrMalformedLocator, err)
	}
	return loc, nil
}

// escapeIdent serialises an identifier the way CSS.escape does.
func escapeIdent(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == 0:
			sb.WriteRune('\uFFFD')
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f,
			i == 0 && r >= '0' && r <= '9',
			i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&sb, "\\%x ", r)
		case i == 0 && r == '-' && len(runes) == 1:
			sb.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			sb.WriteRune(r)
		default:
			sb.WriteByte('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// unescapeIdent reverses escapeIdent.
func unescapeIdent(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("dangling escape")
		}
		j := i
		for j < len(s) && j-i < 6 && isHex(s[j]) {
			j++
		}
		if j == i {
			sb.WriteByte(s[i])
			continue
		}
		cp, err := strconv.ParseUint(s[i:j], 16, 32)
		if err != nil {
			return "", err
		}
		sb.WriteRune(rune(cp))
		if j < len(s) && s[j] == ' ' {
			j++
		}
		i = j - 1
	}
	return sb.String(), nil
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
