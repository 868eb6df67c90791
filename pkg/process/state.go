package process

import (
	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

// State is what a thread is doing right now, as shown to the user
type State string

const (
	StateIdle      State = ""
	StateSending   State = "sending"
	StateReceiving State = "receiving"
	StateThinking  State = "thinking"
	StateToolUse   State = "tool"
	// StateApproval means the agent is paused on a human decision
	StateApproval State = "approval"
)

func (s State) String() string {
	return string(s)
}

func (s State) GetIcon() string {
	switch s {
	case StateSending:
		return "↑"
	case StateReceiving:
		return "↓"
	case StateToolUse:
		return "🔨"
	case StateThinking:
		return "🤔"
	case StateApproval:
		return "✋"
	default:
		return ""
	}
}

func (s State) GetDisplayName() string {
	switch s {
	case StateSending:
		return "Sending"
	case StateReceiving:
		return "Receiving"
	case StateThinking:
		return "Thinking"
	case StateToolUse:
		return "Using tools"
	case StateApproval:
		return "Waiting for approval"
	case StateIdle:
		return "Idle"
	default:
		return ""
	}
}

// Derive maps a thread snapshot to a display state. The newest in-flight
// AI message decides between thinking, tool use and receiving.
func Derive(snap stream.Snapshot, approvalPending bool) State {
	switch {
	case approvalPending:
		return StateApproval
	case !snap.Streaming:
		return StateIdle
	case snap.Waiting:
		return StateSending
	}

	for i := len(snap.Ongoing) - 1; i >= 0; i-- {
		msg := snap.Ongoing[i]
		if !msg.IsAI() {
			continue
		}
		if pendingToolCall(msg) {
			return StateToolUse
		}
		if msg.Text() == "" && msg.Reasoning() != "" {
			return StateThinking
		}
		return StateReceiving
	}
	return StateReceiving
}

func pendingToolCall(msg chat.Message) bool {
	for _, tc := range msg.ToolCalls {
		if !tc.HasResult() {
			return true
		}
	}
	return false
}
