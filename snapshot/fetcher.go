// CLAUDE:SUMMARY HTTP acquisition path — guarded GET with size cap, plus the page's linked stylesheets for the style probe.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// ErrTooLarge is returned when a response exceeds the size cap.
var ErrTooLarge = errors.New("snapshot: response too large")

// Result is the outcome of one HTTP fetch.
type Result struct {
	URL         string // after redirects
	StatusCode  int
	ContentType string
	Body        []byte
}

// Fetcher performs guarded HTTP GETs.
type Fetcher struct {
	client       *http.Client
	ua           string
	maxBytes     int64
	maxSheets    int
	allowPrivate bool
	logger       *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithClient sets a custom HTTP client. Its redirect policy is replaced by
// the URL guard.
func WithClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) { f.ua = ua }
}

// WithMaxBytes caps every response body. Default 10 MiB.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) { f.maxBytes = n }
}

// WithMaxSheets bounds how many linked stylesheets Load fetches. Default 8.
func WithMaxSheets(n int) FetcherOption {
	return func(f *Fetcher) { f.maxSheets = n }
}

// AllowPrivate disables the private address guard, for local use.
func AllowPrivate(allow bool) FetcherOption {
	return func(f *Fetcher) { f.allowPrivate = allow }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher with sensible defaults.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		ua:        "Mozilla/5.0 (compatible; ContextMemo/1.0)",
		maxBytes:  10 << 20,
		maxSheets: 8,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	c := *f.client
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return errors.New("snapshot: too many redirects")
		}
		return ValidateURL(req.URL.String(), f.allowPrivate)
	}
	f.client = &c
	return f
}

// Fetch GETs a URL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if err := ValidateURL(rawURL, f.allowPrivate); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/css;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot: get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("snapshot: read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, rawURL, f.maxBytes)
	}

	f.logger.Debug("snapshot: fetched", "url", rawURL, "status", resp.StatusCode, "size", len(body))
	return &Result{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

var sheetLinks = cascadia.MustCompile(`link[rel~=stylesheet][href]`)

// Load implements Loader: it fetches the page and then its linked
// stylesheets. A stylesheet that cannot be fetched is skipped.
func (f *Fetcher) Load(ctx context.Context, pageURL string) (*Document, error) {
	res, err := f.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("snapshot: get %s: status %d", pageURL, res.StatusCode)
	}
	doc := &Document{URL: res.URL, HTML: res.Body}

	root, err := html.Parse(bytes.NewReader(res.Body))
	if err != nil {
		return doc, nil
	}
	base, err := url.Parse(res.URL)
	if err != nil {
		return doc, nil
	}
	for i, link := range sheetLinks.MatchAll(root) {
		if i >= f.maxSheets {
			break
		}
		href := attr(link, "href")
		ref, err := base.Parse(href)
		if err != nil {
			continue
		}
		sheet, err := f.Fetch(ctx, ref.String())
		if err != nil || sheet.StatusCode >= 400 {
			f.logger.Debug("snapshot: stylesheet skipped", "href", href, "error", err)
			continue
		}
		doc.Sheets = append(doc.Sheets, string(sheet.Body))
	}
	return doc, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
