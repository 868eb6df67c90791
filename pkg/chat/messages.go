package chat

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// MessageType is the agent backend's message discriminator. The stable values
// share langchaingo's vocabulary.
type MessageType string

const (
	TypeHuman   MessageType = MessageType(llms.ChatMessageTypeHuman)
	TypeAI      MessageType = MessageType(llms.ChatMessageTypeAI)
	TypeTool    MessageType = MessageType(llms.ChatMessageTypeTool)
	TypeSystem  MessageType = MessageType(llms.ChatMessageTypeSystem)
	TypeAIChunk MessageType = "AIMessageChunk"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// MessageID identifies a message. History ids are numeric, streamed ids are
// strings; both decode into the same form.
type MessageID string

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = MessageID(n.String())
	return nil
}

// Int returns the numeric form of a history id
func (id MessageID) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// ContentPart is one element of a multi-part content array
type ContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	URL      string          `json:"url,omitempty"`
	ImageURL json.RawMessage `json:"image_url,omitempty"`
}

type Feedback struct {
	ID        MessageID `json:"id,omitempty"`
	Rating    string    `json:"rating"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt string    `json:"created_at,omitempty"`
}

// Message is both a streamed fragment and an assembled or persisted message.
// ToolCallChunks only appear on fragments; ToolCalls and IsLast only matter
// after merging or segmentation.
type Message struct {
	ID               MessageID       `json:"id,omitempty"`
	Type             MessageType     `json:"type,omitempty"`
	Role             string          `json:"role,omitempty"`
	Name             string          `json:"name,omitempty"`
	Content          string          `json:"content"`
	ContentParts     []ContentPart   `json:"-"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	AdditionalKwargs map[string]any  `json:"additional_kwargs,omitempty"`
	ToolCalls        []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallChunks   []ToolCallChunk `json:"tool_call_chunks,omitempty"`
	ToolCallID       string          `json:"tool_call_id,omitempty"`

	CreatedAt     string         `json:"created_at,omitempty"`
	Kind          string         `json:"message_type,omitempty"`
	ImageContent  string         `json:"image_content,omitempty"`
	ErrorType     string         `json:"error_type,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ExtraMetadata map[string]any `json:"extra_metadata,omitempty"`
	Feedback      *Feedback      `json:"feedback,omitempty"`

	IsLast bool `json:"isLast,omitempty"`
}

type messageAlias Message

func (m *Message) UnmarshalJSON(data []byte) error {
	wire := struct {
		*messageAlias
		Content json.RawMessage `json:"content"`
	}{messageAlias: (*messageAlias)(m)}

	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	return m.setContent(wire.Content)
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content any = m.Content
	if m.Content == "" && len(m.ContentParts) > 0 {
		content = m.ContentParts
	}
	return json.Marshal(struct {
		messageAlias
		Content any `json:"content"`
	}{messageAlias(m), content})
}

// setContent accepts a string, an array of parts, null, or any other JSON
// value, which is kept as its compact text.
func (m *Message) setContent(raw json.RawMessage) error {
	m.Content = ""
	m.ContentParts = nil

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	switch raw[0] {
	case '"':
		return json.Unmarshal(raw, &m.Content)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		for _, item := range items {
			var part ContentPart
			if len(item) > 0 && item[0] == '"' {
				part.Type = "text"
				if err := json.Unmarshal(item, &part.Text); err != nil {
					return err
				}
			} else if err := json.Unmarshal(item, &part); err != nil {
				continue
			}
			m.ContentParts = append(m.ContentParts, part)
		}
		return nil
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return err
		}
		m.Content = buf.String()
		return nil
	}
}

// Text returns the displayable content. Multi-part human content reduces to
// its first text part; other messages join all text parts in order.
func (m Message) Text() string {
	if m.Content != "" || len(m.ContentParts) == 0 {
		return m.Content
	}
	if m.IsHuman() {
		for _, p := range m.ContentParts {
			if p.Type == "text" {
				return p.Text
			}
		}
		return ""
	}
	var sb strings.Builder
	for _, p := range m.ContentParts {
		if p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Reasoning returns the top-level reasoning text, falling back to the copy
// nested in additional_kwargs
func (m Message) Reasoning() string {
	if m.ReasoningContent != "" {
		return m.ReasoningContent
	}
	if s, ok := m.AdditionalKwargs["reasoning_content"].(string); ok {
		return s
	}
	return ""
}

func (m Message) IsHuman() bool {
	return m.Type == TypeHuman || m.Role == RoleUser
}

func (m Message) IsAI() bool {
	return m.Type == TypeAI || m.Type == TypeAIChunk
}

func (m Message) IsTool() bool {
	return m.Type == TypeTool
}

func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

func NewHumanMessage(content string) Message {
	return Message{
		Type:    TypeHuman,
		Role:    RoleUser,
		Content: strings.TrimSpace(content),
	}
}

func NewAIMessage(content string) Message {
	return Message{
		Type:    TypeAI,
		Content: content,
	}
}

func NewToolMessage(toolCallID, content string) Message {
	return Message{
		Type:       TypeTool,
		ToolCallID: toolCallID,
		Content:    content,
	}
}

// Clone returns a deep copy sharing no maps or slices with m
func (m Message) Clone() Message {
	out := m

	if m.ContentParts != nil {
		out.ContentParts = make([]ContentPart, len(m.ContentParts))
		for i, p := range m.ContentParts {
			p.ImageURL = cloneRaw(p.ImageURL)
			out.ContentParts[i] = p
		}
	}
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc.Clone()
		}
	}
	if m.ToolCallChunks != nil {
		out.ToolCallChunks = append([]ToolCallChunk(nil), m.ToolCallChunks...)
	}
	if m.Feedback != nil {
		fb := *m.Feedback
		out.Feedback = &fb
	}
	out.AdditionalKwargs = cloneMap(m.AdditionalKwargs)
	out.ExtraMetadata = cloneMap(m.ExtraMetadata)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case json.RawMessage:
		return cloneRaw(t)
	default:
		return v
	}
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	return append(json.RawMessage(nil), r...)
}
