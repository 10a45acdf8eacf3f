package snapshot

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"
)

// The probe element is removed in finally so it never outlives the check.
const probeJS = `() => {
	const host = document.body || document.documentElement;
	const el = document.createElement("div");
	el.className = "bg-yellow-300";
	el.style.display = "none";
	host.appendChild(el);
	try {
		const bg = getComputedStyle(el).backgroundColor;
		return bg === "rgb(253, 224, 71)" || bg === "rgb(254, 240, 138)";
	} finally {
		el.remove();
	}
}`

// RodProber runs the style capability probe in a live page, where the
// browser computes the cascade. The parsed document argument is ignored.
type RodProber struct {
	Page   *rod.Page
	Logger *slog.Logger
}

// ClassStylingActive implements anchor.StyleProber. Any evaluation error
// means inline styling.
func (r RodProber) ClassStylingActive(*html.Node) bool {
	res, err := r.Page.Timeout(5 * time.Second).Eval(probeJS)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("snapshot: style probe failed", "error", err)
		}
		return false
	}
	return res.Value.Bool()
}
