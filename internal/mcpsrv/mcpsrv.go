// Package mcpsrv implements a Model Context Protocol (MCP) server over the
// local Memori state.  It exposes saved memories, context handoffs and the
// cached Granola meetings snapshot through MCP tools that AI agents can call.
//
// The server communicates over the standard MCP stdio transport, which makes
// it suitable for local agent integration (e.g. Claude Desktop, VS Code
// Copilot).
package mcpsrv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	server "github.com/mark3labs/mcp-go/server"

	"github.com/sriramvarun3/Memori/internal/cache"
)

const (
	serverName    = "memori-mcp"
	serverVersion = "1.0.0"
)

const serverInstructions = `You are connected to a Memori MCP server.

It holds the user's saved memories, compressed context handoffs, and a local
snapshot of their Granola meeting notes.

Available tools allow you to:
- List saved memories
- Save a new memory
- List context handoffs
- List meetings from the local snapshot
- Read the notes of a single meeting

Meeting data comes from a locally cached snapshot; run "memori meetings
-refresh" to update it.`

// Server wraps an MCP server over the cache manager.
type Server struct {
	mcp    *server.MCPServer
	mgr    *cache.Manager
	logger *slog.Logger
}

// New creates an MCP server backed by the given cache manager.  The server is
// populated with all tools but does not start listening until Serve is
// called.
func New(mgr *cache.Manager, lg *slog.Logger) *Server {
	if lg == nil {
		lg = slog.Default()
	}
	s := &Server{
		mgr:    mgr,
		logger: lg,
	}

	srv := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithInstructions(serverInstructions),
	)
	for _, t := range s.tools() {
		srv.AddTool(t.Tool, t.Handler)
	}

	s.mcp = srv
	return s
}

// Serve runs the MCP server over stdin/stdout until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := server.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// tools returns all MCP tools that this server exposes.
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		s.toolListMemories(),
		s.toolSaveMemory(),
		s.toolListHandoffs(),
		s.toolListMeetings(),
		s.toolGetMeeting(),
	}
}

// resultText wraps text in a successful CallToolResult.
func resultText(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

// resultErr wraps an error in a CallToolResult with IsError=true.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON serialises v to JSON and returns a CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}

// stringArg extracts a named string argument from a tool call request.
// Returns ("", false) if the argument is absent or not a string.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) {
	args := req.GetArguments()
	if args == nil {
		return "", false
	}
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg extracts a named int argument from a tool call request.  The MCP
// protocol serialises numbers as float64, so we convert accordingly.
func intArg(req mcplib.CallToolRequest, name string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return defaultVal
}
