package toolllm

import (
	"encoding/json"
	"strings"
)

// Message is a single chat turn. Assistant turns may carry tool calls,
// tool turns echo the call id they answer.
type Message struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	Parts      []ContentPart `json:"-"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// ImageRef points at an image, either a remote URL or a data URI.
type ImageRef struct {
	URL string `json:"url"`
}

// MarshalJSON renders Content as a plain string unless Parts are set,
// in which case the multimodal array form is used.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Parts) == 0 {
		type plain Message
		return json.Marshal(plain(m))
	}
	return json.Marshal(struct {
		Role       string        `json:"role"`
		Content    []ContentPart `json:"content"`
		ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
		ToolCallID string        `json:"tool_call_id,omitempty"`
		Name       string        `json:"name,omitempty"`
	}{
		Role:       m.Role,
		Content:    m.Parts,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	})
}

// SystemMessage builds a system turn.
func SystemMessage(text string) Message {
	return Message{Role: "system", Content: text}
}

// UserMessage builds a plain-text user turn.
func UserMessage(text string) Message {
	return Message{Role: "user", Content: text}
}

// UserImageMessage builds a user turn pairing text with an image reference.
func UserImageMessage(text, imageURL string) Message {
	return Message{
		Role: "user",
		Parts: []ContentPart{
			{Type: "text", Text: text},
			{Type: "image_url", ImageURL: &ImageRef{URL: imageURL}},
		},
	}
}

// AssistantMessage rebuilds an assistant turn for transcript replay.
func AssistantMessage(content string, calls []ToolCall) Message {
	return Message{Role: "assistant", Content: content, ToolCalls: calls}
}

// ToolResultMessage builds a tool turn answering the given call.
func ToolResultMessage(callID, name, content string) Message {
	return Message{Role: "tool", ToolCallID: callID, Name: name, Content: content}
}

// Tool declares a callable function the model may invoke.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction carries the function schema advertised to the model.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// NewTool builds a function tool declaration from a JSON schema literal.
func NewTool(name, description string, parameters string) Tool {
	return Tool{
		Type: "function",
		Function: ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  json.RawMessage(parameters),
		},
	}
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Index    int          `json:"index"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Name returns the trimmed function name of the call.
func (c ToolCall) Name() string {
	return strings.TrimSpace(c.Function.Name)
}

// DecodeArguments unmarshals the call arguments into target.
func (c ToolCall) DecodeArguments(target any) error {
	return DecodeModelJSON(c.Function.Arguments, target)
}
