// CLAUDE:SUMMARY Page acquisition — Document model, Loader interface and the HTTP-first loader that escalates to a headless browser for script-rendered pages.
// Package snapshot acquires the HTML of a page so notes can be restored
// against it: a plain HTTP fetch for static pages, a headless Chrome for
// pages whose content only exists after scripts run.
package snapshot

import (
	"context"
	"log/slog"

	"golang.org/x/net/html"

	"github.com/hazyhaar/contextmemo/anchor"
)

// Document is a loaded page.
type Document struct {
	URL    string   // final URL
	HTML   []byte   // serialised document
	Sheets []string // text of linked stylesheets, in document order

	// ClassStyling is set when the style capability was probed in a live
	// browser while the page was loaded.
	ClassStyling *bool
}

// Prober returns the style prober that fits how the document was loaded.
func (d *Document) Prober() anchor.StyleProber {
	if d.ClassStyling != nil {
		return probed(*d.ClassStyling)
	}
	return anchor.CSSProber{Sheets: d.Sheets}
}

type probed bool

func (p probed) ClassStylingActive(*html.Node) bool { return bool(p) }

// Loader loads a page by URL.
type Loader interface {
	Load(ctx context.Context, pageURL string) (*Document, error)
}

// Auto fetches over HTTP first and renders with the browser only when the
// fetched HTML looks like an unrendered script shell.
type Auto struct {
	Fetcher *Fetcher
	Browser *Browser // nil disables escalation
	Logger  *slog.Logger
}

// Load implements Loader.
func (a *Auto) Load(ctx context.Context, pageURL string) (*Document, error) {
	doc, err := a.Fetcher.Load(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if a.Browser == nil || IsSufficient(doc.HTML) {
		return doc, nil
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("snapshot: escalating to browser", "url", pageURL, "size", len(doc.HTML))
	rendered, err := a.Browser.Load(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		logger.Warn("snapshot: browser failed, keeping fetched page", "url", pageURL, "error", err)
		return doc, nil
	}
	return rendered, nil
}
