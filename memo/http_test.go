package memo

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/contextmemo/anchor"
)

func testServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	s, _ := testService(t, time.Hour)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func doJSON(t *testing.T, method, u, body string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, u, err)
		}
	}
	return resp
}

func TestHTTP_NotesLifecycle(t *testing.T) {
	_, srv := testServer(t)
	q := url.QueryEscape(pageURL)

	var created Note
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/notes",
		`{"url":"`+pageURL+`","content":"greeting","text":"hello world"}`, &created)
	if resp.StatusCode != http.StatusCreated || created.ID == "" {
		t.Fatalf("create: %d %+v", resp.StatusCode, created)
	}
	if resp.Header.Get("X-Trace-ID") == "" {
		t.Fatal("trace header missing")
	}

	var list []Note
	doJSON(t, http.MethodGet, srv.URL+"/api/notes?url="+q, "", &list)
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list: %+v", list)
	}

	var got Note
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/notes/"+created.ID, "", &got)
	if resp.StatusCode != http.StatusOK || got.Content != "greeting" {
		t.Fatalf("get: %d %+v", resp.StatusCode, got)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/notes/"+created.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/notes/"+created.ID, "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted: %d", resp.StatusCode)
	}
}

func TestHTTP_CreateRejects(t *testing.T) {
	_, srv := testServer(t)

	cases := map[string]string{
		"bad json":  `{`,
		"empty":     `{"url":"` + pageURL + `","content":""}`,
		"too long":  `{"url":"` + pageURL + `","content":"` + strings.Repeat("x", 17) + `"}`,
		"no url":    `{"content":"x"}`,
		"text miss": `{"url":"` + pageURL + `","content":"x","text":"absent"}`,
	}
	for name, body := range cases {
		var e map[string]string
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/notes", body, &e)
		if resp.StatusCode != http.StatusBadRequest || e["error"] == "" {
			t.Errorf("%s: %d %v", name, resp.StatusCode, e)
		}
	}
}

func TestHTTP_ViewAndExport(t *testing.T) {
	s, srv := testServer(t)
	n, err := s.SaveNote(t.Context(), NoteInput{URL: pageURL, Content: "greeting", Text: "hello world"})
	if err != nil {
		t.Fatal(err)
	}
	q := url.QueryEscape(pageURL)

	resp, err := http.Get(srv.URL + "/view?url=" + q + "&open=" + n.ID)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Notes-Anchored") != "1/1" {
		t.Fatalf("view: %d %s", resp.StatusCode, resp.Header.Get("X-Notes-Anchored"))
	}
	if !strings.Contains(string(body), anchor.PopupID) || !strings.Contains(string(body), `data-note-id="`+n.ID+`"`) {
		t.Fatalf("view body:\n%s", body)
	}
	if !strings.Contains(resp.Header.Get("Content-Security-Policy"), "default-src 'none'") {
		t.Fatal("view served without CSP")
	}

	resp, err = http.Get(srv.URL + "/api/notes/export?url=" + q)
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/markdown") || !strings.Contains(string(body), "> hello world") {
		t.Fatalf("export: %s\n%s", resp.Header.Get("Content-Type"), body)
	}

	resp, err = http.Get(srv.URL + "/view")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("view without url: %d", resp.StatusCode)
	}
}

func TestHTTP_Health(t *testing.T) {
	_, srv := testServer(t)
	var h map[string]any
	resp := doJSON(t, http.MethodGet, srv.URL+"/health", "", &h)
	if resp.StatusCode != http.StatusOK || h["status"] != "ok" {
		t.Fatalf("health: %d %v", resp.StatusCode, h)
	}
}
