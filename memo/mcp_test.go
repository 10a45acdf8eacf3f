package memo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "contextmemo-test", Version: "0.1.0"}

// mcpSession registers the tools on a fresh service and returns a
// connected client session.
func mcpSession(t *testing.T) (*Service, *mcp.ClientSession) {
	t.Helper()
	s, _ := testService(t, time.Hour)

	srv := mcp.NewServer(testImpl, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return s, session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	text := resultText(t, name, result)
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %s", name, text)
	}
	return text
}

func resultText(t *testing.T, name string, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func callToolErr(t *testing.T, session *mcp.ClientSession, name string, args any) error {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	// Tool failures arrive as a result flagged IsError with the message as
	// text content; the client side never turns them into a Go error.
	if !result.IsError {
		return nil
	}
	return errors.New(resultText(t, name, result))
}

func TestMCP_AddListDelete(t *testing.T) {
	_, session := mcpSession(t)

	text := callTool(t, session, "contextmemo_add_note", map[string]any{
		"url":     pageURL,
		"content": "greeting",
		"text":    "hello world",
	})
	var note Note
	if err := json.Unmarshal([]byte(text), &note); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if note.ID == "" || !strings.Contains(note.DOMLocator, `"selected":"hello world"`) {
		t.Fatalf("note: %+v", note)
	}

	text = callTool(t, session, "contextmemo_list_notes", map[string]any{"query": "GREET"})
	var notes []Note
	if err := json.Unmarshal([]byte(text), &notes); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != note.ID {
		t.Fatalf("list: %s", text)
	}

	text = callTool(t, session, "contextmemo_delete_note", map[string]any{"id": note.ID})
	if !strings.Contains(text, `"deleted"`) {
		t.Fatalf("delete: %s", text)
	}
	if err := callToolErr(t, session, "contextmemo_delete_note", map[string]any{"id": note.ID}); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("second delete: got %v", err)
	}
}

func TestMCP_AddNoteValidation(t *testing.T) {
	_, session := mcpSession(t)

	err := callToolErr(t, session, "contextmemo_add_note", map[string]any{
		"url":     pageURL,
		"content": strings.Repeat("x", 40),
	})
	if err == nil || !strings.Contains(err.Error(), "too long") {
		t.Fatalf("got %v", err)
	}
}

func TestMCP_CheckAnchors(t *testing.T) {
	s, session := mcpSession(t)
	ctx := context.Background()

	if _, err := s.SaveNote(ctx, NoteInput{URL: pageURL, Content: "a", Text: "hello world"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveNote(ctx, NoteInput{URL: pageURL, Content: "b"}); err != nil {
		t.Fatal(err)
	}

	text := callTool(t, session, "contextmemo_check_anchors", map[string]any{"url": pageURL})
	var reports []Report
	if err := json.Unmarshal([]byte(text), &reports); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(reports) != 2 || reports[0].Status != StatusAnchored || reports[1].Status != StatusUnanchorable {
		t.Fatalf("reports: %s", text)
	}

	if err := callToolErr(t, session, "contextmemo_check_anchors", map[string]any{}); err == nil || !strings.Contains(err.Error(), "url") {
		t.Fatalf("missing url: got %v", err)
	}
}
