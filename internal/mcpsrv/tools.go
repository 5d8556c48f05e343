package mcpsrv

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	server "github.com/mark3labs/mcp-go/server"

	"github.com/sriramvarun3/Memori/internal/cache"
)

// errNoSnapshot is returned by meeting tools when no snapshot has been
// cached yet.
var errNoSnapshot = errors.New(`no meetings snapshot is cached; run "memori meetings -refresh" first`)

// ─── list_memories ────────────────────────────────────────────────────────────

func (s *Server) toolListMemories() server.ServerTool {
	tool := mcplib.NewTool("list_memories",
		mcplib.WithDescription("List the user's saved memories, newest first. Returns id, text, type and timestamp for each."),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return server.ServerTool{Tool: tool, Handler: s.handleListMemories}
}

func (s *Server) handleListMemories(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	mm, err := s.mgr.Memories()
	if err != nil {
		return resultErr(fmt.Errorf("list_memories: %w", err)), nil
	}
	if len(mm) == 0 {
		return resultText("No memories saved yet."), nil
	}
	return resultJSON(mm)
}

// ─── save_memory ──────────────────────────────────────────────────────────────

func (s *Server) toolSaveMemory() server.ServerTool {
	tool := mcplib.NewTool("save_memory",
		mcplib.WithDescription("Save a snippet of text as a memory. Memories are retained newest-first with a fixed cap; the oldest are dropped when full."),
		mcplib.WithString("text",
			mcplib.Description("The text to remember."),
			mcplib.Required(),
		),
		mcplib.WithString("type",
			mcplib.Description(`Memory type: "user", "assistant" or "chat_export". Defaults to "user".`),
		),
		mcplib.WithNumber("message_count",
			mcplib.Description("Number of conversation messages this memory summarises, if any."),
		),
	)
	return server.ServerTool{Tool: tool, Handler: s.handleSaveMemory}
}

func (s *Server) handleSaveMemory(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	text, ok := stringArg(req, "text")
	if !ok || strings.TrimSpace(text) == "" {
		return resultErr(errors.New("save_memory: text is required")), nil
	}
	typ, _ := stringArg(req, "type")
	count := intArg(req, "message_count", 0)

	mem, err := s.mgr.SaveMemory(text, typ, count)
	if err != nil {
		return resultErr(fmt.Errorf("save_memory: %w", err)), nil
	}
	s.logger.InfoContext(ctx, "mcp: save_memory: saved", "id", mem.ID, "type", mem.Type)
	return resultText(fmt.Sprintf("Memory %s saved.", mem.ID)), nil
}

// ─── list_handoffs ────────────────────────────────────────────────────────────

func (s *Server) toolListHandoffs() server.ServerTool {
	tool := mcplib.NewTool("list_handoffs",
		mcplib.WithDescription("List stored context handoffs (compressed conversation snapshots), newest first. Each carries a title and the full compressed content."),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return server.ServerTool{Tool: tool, Handler: s.handleListHandoffs}
}

func (s *Server) handleListHandoffs(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	hh, err := s.mgr.Handoffs()
	if err != nil {
		return resultErr(fmt.Errorf("list_handoffs: %w", err)), nil
	}
	if len(hh) == 0 {
		return resultText("No context handoffs stored yet."), nil
	}
	return resultJSON(hh)
}

// ─── list_meetings ────────────────────────────────────────────────────────────

// meetingSummary is a JSON-serialisable summary of a cached meeting.
type meetingSummary struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Date      string   `json:"date,omitempty"`
	Attendees []string `json:"attendees,omitempty"`
}

func (s *Server) toolListMeetings() server.ServerTool {
	tool := mcplib.NewTool("list_meetings",
		mcplib.WithDescription("List meetings from the local Granola snapshot. Returns id, title, date and attendees; use get_meeting to read the notes."),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return server.ServerTool{Tool: tool, Handler: s.handleListMeetings}
}

func (s *Server) handleListMeetings(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	snap, err := s.mgr.Meetings()
	if err != nil {
		if errors.Is(err, cache.ErrNotCached) {
			return resultErr(errNoSnapshot), nil
		}
		return resultErr(fmt.Errorf("list_meetings: %w", err)), nil
	}
	summaries := make([]meetingSummary, 0, len(snap.Meetings))
	for _, m := range snap.Meetings {
		summaries = append(summaries, meetingSummary{
			ID:        m.ID,
			Title:     m.Title,
			Date:      m.Date,
			Attendees: m.Attendees,
		})
	}
	return resultJSON(summaries)
}

// ─── get_meeting ──────────────────────────────────────────────────────────────

func (s *Server) toolGetMeeting() server.ServerTool {
	tool := mcplib.NewTool("get_meeting",
		mcplib.WithDescription("Read the notes of a single meeting from the local Granola snapshot."),
		mcplib.WithString("id",
			mcplib.Description("Meeting ID, as returned by list_meetings."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return server.ServerTool{Tool: tool, Handler: s.handleGetMeeting}
}

func (s *Server) handleGetMeeting(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, ok := stringArg(req, "id")
	if !ok || id == "" {
		return resultErr(errors.New("get_meeting: id is required")), nil
	}
	snap, err := s.mgr.Meetings()
	if err != nil {
		if errors.Is(err, cache.ErrNotCached) {
			return resultErr(errNoSnapshot), nil
		}
		return resultErr(fmt.Errorf("get_meeting: %w", err)), nil
	}
	for _, m := range snap.Meetings {
		if m.ID == id {
			text := m.Notes
			if text == "" {
				text = m.Content
			}
			if text == "" {
				return resultText(fmt.Sprintf("Meeting %q has no notes in the snapshot.", m.Title)), nil
			}
			return resultText(text), nil
		}
	}
	return resultErr(fmt.Errorf("get_meeting: no meeting with id %q in the snapshot", id)), nil
}
