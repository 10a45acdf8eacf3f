package store

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/contextmemo/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Store{DB: db}
}

func TestNoteCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	n := &Note{
		ID:         "note-1",
		URL:        "https://example.com/a#section",
		Content:    "remember",
		DOMLocator: `{"structuralPath":["p#a"],"textSnippet":{"before":"","selected":"x","after":""}}`,
	}
	if err := s.InsertNote(ctx, n); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n.URL != "https://example.com/a" {
		t.Errorf("URL not normalised: %q", n.URL)
	}
	if n.CreatedAt == 0 {
		t.Error("CreatedAt not set")
	}

	got, err := s.GetNote(ctx, "note-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("get: got nil")
	}
	if *got != *n {
		t.Errorf("get: got %+v, want %+v", got, n)
	}

	deleted, err := s.DeleteNote(ctx, "note-1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted == nil || deleted.URL != n.URL {
		t.Fatalf("delete: got %+v", deleted)
	}

	got, err = s.GetNote(ctx, "note-1")
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}

	deleted, err = s.DeleteNote(ctx, "note-1")
	if err != nil || deleted != nil {
		t.Fatalf("second delete: got %+v, %v", deleted, err)
	}
}

func TestListNotes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i, n := range []*Note{
		{ID: "b", URL: "https://example.com/a", Content: "Second Thought", CreatedAt: 2000},
		{ID: "a", URL: "https://example.com/a#top", Content: "first", CreatedAt: 1000},
		{ID: "c", URL: "https://example.com/other", Content: "second page", CreatedAt: 1500},
	} {
		if err := s.InsertNote(ctx, n); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	cases := []struct {
		name string
		opts ListOptions
		want []string
	}{
		{"all oldest first", ListOptions{}, []string{"a", "c", "b"}},
		{"by url", ListOptions{URL: "https://example.com/a#anything"}, []string{"a", "b"}},
		{"query ignores case", ListOptions{Query: "SECOND"}, []string{"c", "b"}},
		{"url and query", ListOptions{URL: "https://example.com/a", Query: "thought"}, []string{"b"}},
		{"limit", ListOptions{Limit: 1}, []string{"a"}},
		{"no match", ListOptions{URL: "https://example.com/none"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notes, err := s.ListNotes(ctx, tc.opts)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, n := range notes {
				ids = append(ids, n.ID)
			}
			if len(ids) != len(tc.want) {
				t.Fatalf("got %v, want %v", ids, tc.want)
			}
			for i := range ids {
				if ids[i] != tc.want[i] {
					t.Fatalf("got %v, want %v", ids, tc.want)
				}
			}
		})
	}

	count, err := s.CountNotes(ctx, "https://example.com/a")
	if err != nil || count != 2 {
		t.Fatalf("count: got %d, %v", count, err)
	}
	total, err := s.CountNotes(ctx, "")
	if err != nil || total != 3 {
		t.Fatalf("total: got %d, %v", total, err)
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/a#frag":  "https://example.com/a",
		" https://example.com/a?q=1 ": "https://example.com/a?q=1",
		"https://example.com/":        "https://example.com/",
		"file:///tmp/page.html#x":     "file:///tmp/page.html",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}
