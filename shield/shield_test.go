package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/contextmemo/kit"
)

func chain(h http.Handler) http.Handler {
	stack := DefaultStack(nil)
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}
	return h
}

func TestDefaultStack_HeadersAndTrace(t *testing.T) {
	var traceID string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		if r.Method != http.MethodGet {
			t.Errorf("method: got %s", r.Method)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/health", nil))

	if traceID == "" || rec.Header().Get("X-Trace-ID") != traceID {
		t.Fatalf("trace id: ctx %q header %q", traceID, rec.Header().Get("X-Trace-ID"))
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("security headers missing")
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "default-src 'none'") {
		t.Fatalf("csp: %s", rec.Header().Get("Content-Security-Policy"))
	}
}

func TestTrace_ReusesIncomingID(t *testing.T) {
	h := Trace(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := kit.GetTraceID(r.Context()); got != "abc123" {
			t.Errorf("trace id: got %q", got)
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "abc123")
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestMaxBody(t *testing.T) {
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":"too long"}`)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("post: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", strings.NewReader(`{"content":"too long"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d", rec.Code)
	}
}
