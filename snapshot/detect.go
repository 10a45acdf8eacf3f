package snapshot

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// spaShells are markers of a client-rendered page that has not run yet.
var spaShells = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	"<noscript>you need to enable javascript",
	"<noscript>enable javascript",
}

// IsSufficient reports whether fetched HTML carries enough visible text to
// be used without a browser: at least 200 non-space text bytes making up
// at least 10% of the document, and no empty SPA mount point.
func IsSufficient(body []byte) bool {
	if len(body) < 256 {
		return false
	}
	text, markup := textMarkupRatio(body)
	total := text + markup
	if total == 0 || text < 200 || float64(text)/float64(total) < 0.10 {
		return false
	}
	lower := bytes.ToLower(body)
	for _, ind := range spaShells {
		if bytes.Contains(lower, []byte(ind)) {
			return false
		}
	}
	return true
}

// textMarkupRatio counts non-space text bytes outside script and style
// against every other byte of the document.
func textMarkupRatio(body []byte) (text, markup int) {
	z := html.NewTokenizer(bytes.NewReader(body))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := len(z.Raw())
		switch tt {
		case html.StartTagToken, html.EndTagToken:
			name, _ := z.TagName()
			if n := string(name); n == "script" || n == "style" {
				if tt == html.StartTagToken {
					skip++
				} else if skip > 0 {
					skip--
				}
			}
			markup += raw
		case html.TextToken:
			if skip > 0 {
				markup += raw
				continue
			}
			visible := len(strings.Join(strings.Fields(string(z.Text())), ""))
			text += visible
			markup += raw - min(raw, visible)
		default:
			markup += raw
		}
	}
	return text, markup
}
