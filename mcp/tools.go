package mcp

import (
	"context"
	"encoding/json"
	"strings"
)

// InitializeParams are the parameters of the initialize call.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// ClientInfo identifies this client to the server.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolCallParams are the parameters of a tools/call request.
type ToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Tool describes one remote tool as returned by tools/list.
type Tool struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	InputSchema ToolSchema `json:"inputSchema,omitempty"`
}

// ToolSchema is the subset of the tool input schema this client cares
// about: the declared parameter names.
type ToolSchema struct {
	Type       string                     `json:"type,omitempty"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
}

// HasProperty reports whether the schema declares the named parameter.
func (s ToolSchema) HasProperty(name string) bool {
	_, ok := s.Properties[name]
	return ok
}

// ToolsListResult is the result of a tools/list call.
type ToolsListResult struct {
	Tools []Tool `json:"tools"`
}

// ToolResult is the result of a tools/call.  Only text content parts are
// of interest; anything else is ignored.
type ToolResult struct {
	Content []ContentPart `json:"content"`
	Text    string        `json:"text,omitempty"`
	IsError bool          `json:"isError,omitempty"`
}

// ContentPart is a single content item of a tool result.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// FirstText returns the text of the first text content part, or an empty
// string if there is none.
func (tr *ToolResult) FirstText() string {
	if tr == nil {
		return ""
	}
	for _, c := range tr.Content {
		if c.Type == "text" {
			return c.Text
		}
	}
	return ""
}

// JoinedText returns all non-empty text parts joined with a blank line.
// If the result has no text parts but carries a bare text field, that is
// returned instead.
func (tr *ToolResult) JoinedText() string {
	if tr == nil {
		return ""
	}
	var parts []string
	for _, c := range tr.Content {
		if c.Type != "text" {
			continue
		}
		if t := strings.TrimSpace(c.Text); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n\n")
	}
	return strings.TrimSpace(tr.Text)
}

// CallTool invokes a single remote tool and decodes the result.  A nil
// ToolResult with a non-nil Result means the server demanded auth.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, token string) (*Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	return c.Call(ctx, "tools/call", ToolCallParams{Name: name, Arguments: args}, token)
}

// ListTools requests the remote tool inventory.
func (c *Client) ListTools(ctx context.Context, token string) (*Result, error) {
	return c.Call(ctx, "tools/list", struct{}{}, token)
}

// ToolText extracts plain text from a raw tools/call result payload.  The
// service has been seen returning a structured content list, a bare object
// with a text field, and a bare JSON string; all three are handled.
func ToolText(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var tr ToolResult
	if err := json.Unmarshal(data, &tr); err == nil {
		return tr.JoinedText()
	}
	return ""
}
