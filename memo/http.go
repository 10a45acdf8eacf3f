// CLAUDE:SUMMARY HTTP surface — chi router with the shield stack: notes API, markdown export, annotated page view and the MCP endpoint.
package memo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/contextmemo/anchor"
	"github.com/hazyhaar/contextmemo/kit"
	"github.com/hazyhaar/contextmemo/shield"
	"github.com/hazyhaar/contextmemo/snapshot"
)

// Handler returns the HTTP API of the service.
func (s *Service) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack(s.logger) {
		r.Use(mw)
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api/notes", func(r chi.Router) {
		r.Get("/", s.handleListNotes)
		r.Post("/", s.handleCreateNote)
		r.Get("/export", s.handleExport)
		r.Get("/{id}", s.handleGetNote)
		r.Delete("/{id}", s.handleDeleteNote)
	})
	r.Get("/view", s.handleView)

	srv := s.MCPServer()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.CountNotes(r.Context(), "")
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "notes": n, "tabs": len(s.Tabs())})
}

func (s *Service) handleListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	notes, err := s.ListNotes(r.Context(), ListOptions{
		URL:   q.Get("url"),
		Query: q.Get("q"),
		Limit: queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Service) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var in NoteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx := kit.WithTransport(r.Context(), "http")
	n, err := s.SaveNote(ctx, in)
	if err != nil {
		shield.GetLogger(ctx).Info("memo: note rejected", "error", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Service) handleGetNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Service) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.DeleteNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": n.ID, "status": "deleted"})
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	md, err := s.Export(r.Context(), r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(md))
}

func (s *Service) handleView(w http.ResponseWriter, r *http.Request) {
	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		writeError(w, http.StatusBadRequest, ErrEmptyURL)
		return
	}
	out, reports, err := s.Annotate(r.Context(), pageURL, AnnotateOptions{
		OpenNote: r.URL.Query().Get("open"),
		Sanitize: true,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	anchored := 0
	for _, rep := range reports {
		if rep.Status == StatusAnchored {
			anchored++
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Notes-Anchored", strconv.Itoa(anchored)+"/"+strconv.Itoa(len(reports)))
	w.Write(out)
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, ErrNoteNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyURL),
		errors.Is(err, ErrEmptyContent),
		errors.Is(err, ErrContentTooLong),
		errors.Is(err, ErrInvalidContent),
		errors.Is(err, anchor.ErrTextNotFound),
		errors.Is(err, snapshot.ErrUnsafeScheme),
		errors.Is(err, snapshot.ErrPrivateAddress):
		return http.StatusBadRequest
	case errors.As(err, &maxErr), errors.Is(err, snapshot.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
