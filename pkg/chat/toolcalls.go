package chat

import (
	"encoding/json"
)

// FunctionCall holds a tool name and its argument text. Arguments is raw JSON
// text that may be incomplete while streaming.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// ToolCall is an invocation requested by an AI message. Streaming builds it
// from chunks; persisted history carries Name, Args, Status and an embedded
// ToolCallResult instead.
type ToolCall struct {
	Index          int             `json:"index"`
	ID             string          `json:"id,omitempty"`
	Type           string          `json:"type,omitempty"`
	Name           string          `json:"name,omitempty"`
	Function       FunctionCall    `json:"function"`
	Args           json.RawMessage `json:"args,omitempty"`
	Status         string          `json:"status,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	ToolCallResult *Message        `json:"tool_call_result"`
}

// ToolCallChunk is a partial tool invocation carried by one fragment
type ToolCallChunk struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Args  string `json:"args,omitempty"`
	Type  string `json:"type,omitempty"`
}

// ToolName returns the function name, falling back to the history form
func (tc ToolCall) ToolName() string {
	if tc.Function.Name != "" {
		return tc.Function.Name
	}
	return tc.Name
}

// Arguments returns the argument JSON text from whichever form is present
func (tc ToolCall) Arguments() string {
	if tc.Function.Arguments != "" {
		return tc.Function.Arguments
	}
	if len(tc.Args) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(tc.Args, &s); err == nil {
		return s
	}
	return string(tc.Args)
}

// HasResult reports whether a tool result has been attached
func (tc ToolCall) HasResult() bool {
	return tc.ToolCallResult != nil
}

func (tc ToolCall) Clone() ToolCall {
	out := tc
	out.Args = cloneRaw(tc.Args)
	if tc.ToolCallResult != nil {
		res := tc.ToolCallResult.Clone()
		out.ToolCallResult = &res
	}
	return out
}

// MergeToolCallChunks folds chunks into msg.ToolCalls in place. Entries are
// matched by Index: the first chunk for an index creates the entry, later ones
// append to its arguments and fill ID and name only while still empty. New
// entries keep first-seen order, not numeric index order.
func MergeToolCallChunks(msg *Message, chunks []ToolCallChunk) {
	for _, chunk := range chunks {
		pos := -1
		for i := range msg.ToolCalls {
			if msg.ToolCalls[i].Index == chunk.Index {
				pos = i
				break
			}
		}

		if pos == -1 {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				Index: chunk.Index,
				ID:    chunk.ID,
				Function: FunctionCall{
					Name:      chunk.Name,
					Arguments: chunk.Args,
				},
			})
			continue
		}

		existing := &msg.ToolCalls[pos]
		if chunk.Name != "" && existing.Function.Name == "" {
			existing.Function.Name = chunk.Name
		}
		if chunk.ID != "" && existing.ID == "" {
			existing.ID = chunk.ID
		}
		existing.Function.Arguments += chunk.Args
	}
}

// AttachToolResults returns a copy of msgs where every AI tool call carries
// the tool message answering it. Tool messages are keyed by tool_call_id,
// falling back to their own id. A call with no matching tool message keeps a
// result already embedded by the backend, otherwise its result stays nil.
func AttachToolResults(msgs []Message) []Message {
	results := make(map[string]Message)
	for _, m := range msgs {
		if !m.IsTool() {
			continue
		}
		key := m.ToolCallID
		if key == "" {
			key = string(m.ID)
		}
		if key != "" {
			results[key] = m
		}
	}

	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
		if !m.IsAI() || !m.HasToolCalls() {
			continue
		}
		for j := range out[i].ToolCalls {
			tc := &out[i].ToolCalls[j]
			if res, ok := results[tc.ID]; ok && tc.ID != "" {
				r := res.Clone()
				tc.ToolCallResult = &r
			}
		}
	}
	return out
}
