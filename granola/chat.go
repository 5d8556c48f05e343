package granola

import (
	"context"
	"errors"
	"strings"

	"github.com/sriramvarun3/Memori/mcp"
)

// argKeys are the conventional parameter names probed against the chat
// tool's declared input schema, in preference order.
var argKeys = []string{"query", "question", "prompt", "message", "input", "text"}

// Ask obtains grounding context for a free-form query: it discovers the
// remote chat tool, invokes it exactly once, and returns the extracted
// text.  ErrNotAuthenticated and ErrSessionExpired signal that the caller
// should re-authenticate (the caller owns the single re-auth retry policy).
func (s *Session) Ask(ctx context.Context, query string) (string, error) {
	tok, err := s.token(ctx)
	if err != nil {
		return "", err
	}
	if err := s.initialize(ctx, tok); err != nil {
		return "", err
	}

	res, err := s.cl.Call(ctx, "tools/list", struct{}{}, tok)
	if err != nil {
		return "", err
	}
	if res.NeedsAuth() {
		return "", ErrSessionExpired
	}
	// an empty envelope means an empty tool inventory, not a failure.
	var tl mcp.ToolsListResult
	if err := res.Decode(&tl); err != nil && !errors.Is(err, mcp.ErrNoResult) {
		return "", err
	}
	tool, ok := selectChatTool(tl.Tools)
	if !ok {
		return "", ErrNoChatTool
	}
	s.lg.DebugContext(ctx, "granola: chat tool selected", "tool", tool.Name)

	question := strings.Join([]string{
		"Use my Granola meeting context to answer this user request.",
		"User request: " + query,
		"If relevant context is missing, say that explicitly.",
	}, "\n")

	// Exactly one chat tool call.
	callRes, err := s.cl.Call(ctx, "tools/call", toolCallParams(tool.Name, chatToolArgs(tool, question)), tok)
	if err != nil {
		return "", err
	}
	if callRes.NeedsAuth() {
		return "", ErrSessionExpired
	}
	contextText := mcp.ToolText(callRes.Data)
	if contextText == "" {
		return "", ErrNoContext
	}
	return contextText, nil
}

// selectChatTool picks the grounding tool by a priority match: two exact
// known names first, then a fuzzy name carrying both the domain and the
// chat keyword, then anything whose name merely contains "chat".
func selectChatTool(tools []mcp.Tool) (mcp.Tool, bool) {
	type matcher func(name string) bool
	matchers := []matcher{
		func(n string) bool { return n == preferredChatTool },
		func(n string) bool { return n == exactChatTool },
		func(n string) bool {
			l := strings.ToLower(n)
			return strings.Contains(l, "chat") && strings.Contains(l, "granola")
		},
		func(n string) bool { return strings.Contains(strings.ToLower(n), "chat") },
	}
	for _, match := range matchers {
		for _, t := range tools {
			if match(t.Name) {
				return t, true
			}
		}
	}
	return mcp.Tool{}, false
}

// chatToolArgs builds the call arguments, probing the tool's declared input
// schema for the first conventional parameter name.  Tools declaring none
// of them get the query under "query" anyway.
func chatToolArgs(tool mcp.Tool, question string) map[string]any {
	key := argKeys[0]
	for _, k := range argKeys {
		if tool.InputSchema.HasProperty(k) {
			key = k
			break
		}
	}
	return map[string]any{key: question}
}

// ComposeGroundedPrompt wraps the user query and the retrieved context into
// the prompt handed back to the chat page.
func ComposeGroundedPrompt(query, context string) string {
	return strings.Join([]string{
		"You are answering the user by grounding in the provided Granola context.",
		"",
		"## User Original Query",
		query,
		"",
		"## Granola Context",
		context,
		"",
		"## Instructions",
		"- Answer the user query directly.",
		"- Ground your response in the Granola Context above.",
		"- If the context is insufficient or uncertain, say so explicitly.",
		"- Do not fabricate details not supported by the context.",
	}, "\n")
}
