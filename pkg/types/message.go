package types

// Role enumerates the participant that produced a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ContentPartType enumerates the kinds of content a Message can carry.
type ContentPartType string

const (
	ContentText         ContentPartType = "text"
	ContentImage        ContentPartType = "image"
	ContentToolResponse ContentPartType = "tool_response"
)

// ToolResponse carries the result of a tool invocation back to the model.
type ToolResponse struct {
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Content    string `json:"content,omitempty"`
}

// ContentPart is one element of a Message's multi-part content array.
type ContentPart struct {
	Type         ContentPartType `json:"type"`
	Text         string          `json:"text,omitempty"`
	ImageData    []byte          `json:"-"`
	ToolResponse *ToolResponse   `json:"tool_response,omitempty"`
}

// ToolCall describes one tool the assistant asked to invoke.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is the wire shape exchanged with SendMessage/SendMessageAsync.
// Content may be a bare string (plain text) or a []ContentPart; callers
// construct it directly rather than through JSON unmarshal ambiguity —
// the HTTP layer normalizes incoming payloads into this shape explicitly.
type Message struct {
	Role      Role          `json:"role" validate:"required,oneof=user assistant system tool"`
	Text      string        `json:"content,omitempty"`
	Parts     []ContentPart `json:"parts,omitempty"`
	ToolCalls []ToolCall    `json:"tool_calls,omitempty"`
}

// Contents returns the message content as a part list, wrapping a bare
// Text field into a single text part when Parts is empty.
func (m Message) Contents() []ContentPart {
	if len(m.Parts) > 0 {
		return m.Parts
	}
	if m.Text == "" {
		return nil
	}
	return []ContentPart{{Type: ContentText, Text: m.Text}}
}
