package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
}

// DefaultHeaders returns the header set used by the daemon. Annotated pages
// carry inline marker styles and remote images, scripts never run.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'none'; style-src 'unsafe-inline'; img-src https: data:; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
	}
}

// SecurityHeaders returns middleware that sets the configured headers on
// every response. Empty fields are skipped.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	set := func(h http.Header, k, v string) {
		if v != "" {
			h.Set(k, v)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			set(h, "X-Content-Type-Options", cfg.XContentTypeOptions)
			set(h, "X-Frame-Options", cfg.XFrameOptions)
			set(h, "Referrer-Policy", cfg.ReferrerPolicy)
			set(h, "Content-Security-Policy", cfg.CSP)
			next.ServeHTTP(w, r)
		})
	}
}
