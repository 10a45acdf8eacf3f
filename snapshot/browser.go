// CLAUDE:SUMMARY Headless Chrome acquisition path (go-rod + stealth) — lazy launch, navigation, settle delay, DOM + stylesheet capture, live style probe.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local headless Chrome on first use.
	RemoteURL string

	// NoStealth disables the stealth page setup.
	NoStealth bool

	// Settle is waited after the load event so late scripts can render.
	// Default 500ms.
	Settle time.Duration

	// NavTimeout bounds navigation and load. Default 30s.
	NavTimeout time.Duration

	// Block lists resource types not to download: images, fonts, media.
	// Stylesheets are always loaded; the style probe needs them.
	Block []string

	AllowPrivate bool
	Logger       *slog.Logger
}

func (c *BrowserConfig) defaults() {
	if c.Settle <= 0 {
		c.Settle = 500 * time.Millisecond
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Block == nil {
		c.Block = []string{"images", "fonts", "media"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser renders pages in Chrome. It is safe for concurrent use; each
// Load opens its own page.
type Browser struct {
	cfg  BrowserConfig
	mu   sync.Mutex
	rod  *rod.Browser
	lnch *launcher.Launcher
}

// NewBrowser creates a Browser. Chrome starts on the first Load.
func NewBrowser(cfg BrowserConfig) *Browser {
	cfg.defaults()
	return &Browser{cfg: cfg}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rod != nil {
		return b.rod, nil
	}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("snapshot: launch chrome: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.cfg.Logger.Info("snapshot: launched local chrome", "url", wsURL)
	} else {
		b.cfg.Logger.Info("snapshot: connecting to remote chrome", "url", wsURL)
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("snapshot: connect chrome: %w", err)
	}
	b.rod = rb
	return rb, nil
}

// Load implements Loader: navigate, wait for load plus the settle delay,
// then capture the DOM, the stylesheet texts and the style capability.
func (b *Browser) Load(ctx context.Context, pageURL string) (*Document, error) {
	if err := ValidateURL(pageURL, b.cfg.AllowPrivate); err != nil {
		return nil, err
	}
	rb, err := b.connect()
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if b.cfg.NoStealth {
		page, err = rb.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(rb)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: create page: %w", err)
	}
	defer page.Close()

	if len(b.cfg.Block) > 0 {
		router := blockResources(page, b.cfg.Block)
		defer router.Stop()
	}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("snapshot: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.cfg.Logger.Warn("snapshot: wait load", "url", pageURL, "error", err)
	}

	settle := time.NewTimer(b.cfg.Settle)
	select {
	case <-ctx.Done():
		settle.Stop()
		return nil, ctx.Err()
	case <-settle.C:
	}

	p := page.Context(ctx)
	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: get DOM: %w", err)
	}
	doc := &Document{URL: pageURL, HTML: []byte(res.Value.Str())}

	if info, err := p.Info(); err == nil && info.URL != "" {
		doc.URL = info.URL
	}
	if sheets, err := p.Eval(sheetsJS); err == nil {
		for _, s := range sheets.Value.Arr() {
			if txt := s.Str(); txt != "" {
				doc.Sheets = append(doc.Sheets, txt)
			}
		}
	}
	classes := RodProber{Page: p, Logger: b.cfg.Logger}.ClassStylingActive(nil)
	doc.ClassStyling = &classes

	b.cfg.Logger.Debug("snapshot: rendered", "url", doc.URL, "size", len(doc.HTML),
		"sheets", len(doc.Sheets), "class_styling", classes)
	return doc, nil
}

// Close shuts Chrome down.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.rod != nil {
		err = b.rod.Close()
		b.rod = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}

// Cross-origin sheets without CORS headers throw on cssRules and are skipped.
const sheetsJS = `() => Array.from(document.styleSheets).map(s => {
	try { return Array.from(s.cssRules).map(r => r.cssText).join("\n") } catch (e) { return "" }
})`

func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	block := make(map[proto.NetworkResourceType]bool, len(types))
	for _, t := range types {
		switch strings.ToLower(t) {
		case "images":
			block[proto.NetworkResourceTypeImage] = true
		case "fonts":
			block[proto.NetworkResourceTypeFont] = true
		case "media":
			block[proto.NetworkResourceTypeMedia] = true
		}
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if block[h.Request.Type()] {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}
