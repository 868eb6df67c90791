package stream

import (
	"encoding/json"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

// Status is the discriminator of a status frame
type Status string

const (
	StatusInit             Status = "init"
	StatusLoading          Status = "loading"
	StatusAgentState       Status = "agent_state"
	StatusApprovalRequired Status = "human_approval_required"
	StatusError            Status = "error"
	StatusFinished         Status = "finished"
	StatusInterrupted      Status = "interrupted"
)

// ParseStatus reports whether s names a known status
func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	return st, st.Known()
}

func (s Status) Known() bool {
	switch s {
	case StatusInit, StatusLoading, StatusAgentState, StatusApprovalRequired,
		StatusError, StatusFinished, StatusInterrupted:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether a frame with this status always ends the stream
func (s Status) IsTerminal() bool {
	switch s {
	case StatusError, StatusFinished, StatusInterrupted:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// InterruptInfo describes an operation waiting for human approval
type InterruptInfo struct {
	Question  string `json:"question,omitempty"`
	Operation string `json:"operation,omitempty"`
}

// AgentState is the agent's side state (todos, files). Keys other than
// todos and files are kept in Extra.
type AgentState struct {
	Todos []any          `json:"todos"`
	Files []any          `json:"files"`
	Extra map[string]any `json:"-"`
}

func (s *AgentState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = AgentState{}
	for k, v := range raw {
		switch k {
		case "todos":
			if err := json.Unmarshal(v, &s.Todos); err != nil {
				return err
			}
		case "files":
			if err := json.Unmarshal(v, &s.Files); err != nil {
				return err
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			if s.Extra == nil {
				s.Extra = make(map[string]any)
			}
			s.Extra[k] = val
		}
	}
	return nil
}

func (s AgentState) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Extra)+2)
	for k, v := range s.Extra {
		out[k] = v
	}
	out["todos"] = nonNil(s.Todos)
	out["files"] = nonNil(s.Files)
	return json.Marshal(out)
}

func nonNil(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}

// Frame is one parsed NDJSON line of a chat stream
type Frame struct {
	Status        Status          `json:"status"`
	RequestID     string          `json:"request_id,omitempty"`
	Msg           *chat.Message   `json:"msg,omitempty"`
	Response      json.RawMessage `json:"response,omitempty"`
	Message       string          `json:"message,omitempty"`
	ErrorType     string          `json:"error_type,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	ThreadID      string          `json:"thread_id,omitempty"`
	InterruptInfo *InterruptInfo  `json:"interrupt_info,omitempty"`
	AgentState    *AgentState     `json:"agent_state,omitempty"`
	Meta          map[string]any  `json:"meta,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`

	// Raw is the line the frame was decoded from
	Raw json.RawMessage `json:"-"`
}

// ErrorText returns the human-readable error of an error frame
func (f Frame) ErrorText() string {
	switch {
	case f.Message != "":
		return f.Message
	case f.ErrorMessage != "":
		return f.ErrorMessage
	case f.ErrorType != "":
		return f.ErrorType
	default:
		return "unknown stream error"
	}
}

// FrameError is reported to the Notifier for error frames
type FrameError struct {
	Type      string
	Message   string
	RequestID string
}

func (e *FrameError) Error() string {
	if e.Type != "" && e.Type != e.Message {
		return e.Type + ": " + e.Message
	}
	return e.Message
}

func frameError(f Frame) *FrameError {
	return &FrameError{Type: f.ErrorType, Message: f.ErrorText(), RequestID: f.RequestID}
}
