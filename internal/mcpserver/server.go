// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes ntoes tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ntoes/internal/noteservice"
	"github.com/starford/ntoes/internal/syncer"
)

const formatURI = "ntoes://note-format"

// Server wraps the MCP server with ntoes tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all ntoes tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"ntoes",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("show_todo",
		mcp.WithDescription("Scan the note tree and return every open TODO item, grouped by note, newest note first."),
	), s.showTodo)

	s.mcp.AddTool(mcp.NewTool("sync_now",
		mcp.WithDescription("Commit local note changes, merge the remote and push. Conflicts are committed with their markers."),
	), s.syncNow)

	s.mcp.AddTool(mcp.NewTool("sync_history",
		mcp.WithDescription("List recent sync attempts, newest first, with their outcome and git output."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
	), s.syncHistory)

	s.mcp.AddTool(mcp.NewTool("note_dir",
		mcp.WithDescription("Return the directory a note with the given title belongs in."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title starting with YYYY-MM")),
	), s.noteDir)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new dated note containing only its heading. "+
			"Read the format via get_note_contract or the "+formatURI+" resource."),
		mcp.WithString("title", mcp.Description("Note title starting with YYYY-MM-DD (default: today)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("toggle_item",
		mcp.WithDescription("Toggle the TODO marker on one line of a note: plain line -> [ ], [ ] -> [X], [X] -> plain."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path, absolute or relative to the notes directory")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("0-based line index")),
	), s.toggleItem)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the ntoes note format. Call this before creating or editing notes."),
	), s.getNoteContract)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Note Format",
			mcp.WithResourceDescription("Layout and TODO markers used by ntoes notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) showTodo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := s.svc.ShowTodo(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if view == "" {
		return mcp.NewToolResultText("no open items"), nil
	}
	return mcp.NewToolResultText(view), nil
}

func (s *Server) syncNow(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Sync(ctx)
	if err != nil {
		if f, ok := syncer.AsFailure(err); ok {
			return mcp.NewToolResultError(fmt.Sprintf("sync failed at %s: %v\n%s", f.Op, f.Err, f.Output)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	var parts []string
	if res.CommittedLocal {
		parts = append(parts, "committed local changes")
	}
	if res.Conflicts {
		parts = append(parts, "merge conflicts in: "+strings.Join(res.ConflictFiles, ", "))
	}
	if res.CommittedMerge {
		parts = append(parts, "committed merge result")
	}
	switch {
	case res.LocalOnly:
		parts = append(parts, "no remote configured")
	case res.Pushed:
		parts = append(parts, "pushed")
	}
	if len(parts) == 0 {
		parts = append(parts, "nothing to do")
	}
	return mcp.NewToolResultText(strings.Join(parts, "; ")), nil
}

func (s *Server) syncHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.svc.SyncHistory(req.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) noteDir(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir, err := s.svc.NoteDir(title)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(dir), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	note, err := s.svc.CreateNote(ctx, req.GetString("title", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.Path)), nil
}

func (s *Server) toggleItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ToggleItem(ctx, path, line)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(res.Text), nil
}

func (s *Server) getNoteContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
