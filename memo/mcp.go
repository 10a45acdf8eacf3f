// CLAUDE:SUMMARY Registers the contextmemo MCP tools — add, list and delete notes, check anchors of a page.
package memo

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/contextmemo/kit"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// MCPServer returns an MCP server with every contextmemo tool registered.
func (s *Service) MCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "contextmemo", Version: Version}, nil)
	s.RegisterMCP(srv)
	return srv
}

// RegisterMCP registers contextmemo tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerAddNoteTool(srv)
	s.registerListNotesTool(srv)
	s.registerDeleteNoteTool(srv)
	s.registerCheckAnchorsTool(srv)
}

// endpoint wraps a tool body: the logger sees the error a recovered panic
// turns into.
func (s *Service) endpoint(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(s.logger, name), kit.Recover())(e)
}

// --- add_note ---

func (s *Service) registerAddNoteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "contextmemo_add_note",
		Description: "Attach a short note to a text span of a web page. The span is the given occurrence of text on the page; without text the note is kept unanchored.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":         map[string]any{"type": "string", "description": "Page URL"},
			"content":     map[string]any{"type": "string", "description": "Note text"},
			"text":        map[string]any{"type": "string", "description": "Exact text of the page the note is about"},
			"occurrence":  map[string]any{"type": "integer", "description": "Which occurrence of text, 1-based (default 1)"},
			"dom_locator": map[string]any{"type": "string", "description": "Serialised locator, used instead of text"},
		}, []string{"url", "content"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.SaveNote(ctx, *req.(*NoteInput))
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint("add_note", endpoint), kit.DecodeArgs[NoteInput]())
}

// --- list_notes ---

type listNotesRequest struct {
	URL   string `json:"url,omitempty"`
	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Service) registerListNotesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "contextmemo_list_notes",
		Description: "List notes, oldest first, optionally restricted to a page or to notes containing a query.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":   map[string]any{"type": "string", "description": "Only notes of this page"},
			"query": map[string]any{"type": "string", "description": "Case-insensitive substring of the note text"},
			"limit": map[string]any{"type": "integer", "description": "Max notes"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*listNotesRequest)
		return s.ListNotes(ctx, ListOptions{URL: r.URL, Query: r.Query, Limit: r.Limit})
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint("list_notes", endpoint), kit.DecodeArgs[listNotesRequest]())
}

// --- delete_note ---

type deleteNoteRequest struct {
	ID string `json:"id"`
}

func (s *Service) registerDeleteNoteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "contextmemo_delete_note",
		Description: "Delete a note. Open tabs of its page drop the highlight.",
		InputSchema: kit.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Note ID"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*deleteNoteRequest)
		n, err := s.DeleteNote(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"id": n.ID, "status": "deleted"}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint("delete_note", endpoint), kit.DecodeArgs[deleteNoteRequest]())
}

// --- check_anchors ---

type checkAnchorsRequest struct {
	URL string `json:"url"`
}

func (s *Service) registerCheckAnchorsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "contextmemo_check_anchors",
		Description: "Load a page and report, for each of its notes, whether the highlight can still be restored.",
		InputSchema: kit.InputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*checkAnchorsRequest)
		if r.URL == "" {
			return nil, ErrEmptyURL
		}
		return s.CheckAnchors(ctx, r.URL)
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint("check_anchors", endpoint), kit.DecodeArgs[checkAnchorsRequest]())
}
