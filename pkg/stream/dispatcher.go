package stream

import (
	"context"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/logger"
)

// Operation keys passed to Notifier.Error
const (
	OpSend   = "send"
	OpStream = "stream"
	OpResume = "resume"
	OpLoad   = "load"
	OpExport = "export"
	OpDelete = "delete"
	OpCreate = "create"
)

var operationLabels = map[string]string{
	OpSend:   "sending message",
	OpStream: "stream processing",
	OpResume: "resuming conversation",
	OpLoad:   "loading history",
	OpExport: "exporting conversation",
	OpDelete: "deleting conversation",
	OpCreate: "creating conversation",
}

// ErrorContext returns a human label for an operation key
func ErrorContext(op string) string {
	if label, ok := operationLabels[op]; ok {
		return label
	}
	return op
}

// Approver decides on human_approval_required frames. Returning true stops
// reading; the stream is expected to stop while a decision is pending.
type Approver interface {
	HandleApproval(ctx context.Context, threadID string, info InterruptInfo) (stop bool)
}

// ApproverFunc adapts a function to Approver
type ApproverFunc func(ctx context.Context, threadID string, info InterruptInfo) bool

func (f ApproverFunc) HandleApproval(ctx context.Context, threadID string, info InterruptInfo) bool {
	return f(ctx, threadID, info)
}

// Notifier receives user-visible notices. Calls must not block.
type Notifier interface {
	Error(err error, op string)
	Info(msg string)
}

// Capabilities declares which agent_state parts the consumer renders
type Capabilities struct {
	Todo  bool
	Files bool
}

func (c Capabilities) WantsAgentState() bool {
	return c.Todo || c.Files
}

// Dispatcher applies status frames to a ThreadState
type Dispatcher struct {
	Approver     Approver
	Notifier     Notifier
	Capabilities Capabilities
	Observers    []Observer
}

// Dispatch applies one frame and reports whether the caller should stop
// reading. Unknown statuses and frames missing required fields are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, state *ThreadState, f Frame) (stop bool) {
	log := logger.WithComponent("dispatcher")
	state.touch()

	for _, o := range d.Observers {
		o.OnFrame(state.ThreadID(), f)
	}

	switch f.Status {
	case StatusInit:
		state.ClearWaiting()
		if f.Msg == nil {
			log.Debug("init frame without msg", "thread_id", state.ThreadID(), "request_id", f.RequestID)
			return false
		}
		state.StartChunks(initKey(f), *f.Msg)
		return false

	case StatusLoading:
		if f.Msg == nil || f.Msg.ID == "" {
			log.Debug("dropping loading frame without msg id", "thread_id", state.ThreadID())
			return false
		}
		state.AppendChunk(f.Msg.ID, *f.Msg)
		return false

	case StatusAgentState:
		if d.Capabilities.WantsAgentState() && f.AgentState != nil {
			state.SetAgentState(*f.AgentState)
		}
		return false

	case StatusApprovalRequired:
		threadID := f.ThreadID
		if threadID == "" {
			threadID = state.ThreadID()
		}
		var info InterruptInfo
		if f.InterruptInfo != nil {
			info = *f.InterruptInfo
		}
		if d.Approver == nil {
			log.Warn("approval requested but no approver configured", "thread_id", threadID)
			state.EndStream()
			return true
		}
		return d.Approver.HandleApproval(ctx, threadID, info)

	case StatusError:
		err := frameError(f)
		log.Error("stream error frame", "thread_id", state.ThreadID(), "error_type", f.ErrorType, "error", err.Message)
		d.notifyError(err, OpStream)
		state.Abort()
		return true

	case StatusFinished:
		state.EndStream()
		return true

	case StatusInterrupted:
		state.EndStream()
		if f.Message != "" {
			d.notifyInfo(f.Message)
		}
		return true

	default:
		log.Debug("ignoring unknown status", "status", f.Status, "thread_id", state.ThreadID())
		return false
	}
}

// initKey picks the accumulation key for an init frame
func initKey(f Frame) chat.MessageID {
	switch {
	case f.RequestID != "":
		return chat.MessageID(f.RequestID)
	case f.Msg != nil && f.Msg.ID != "":
		return f.Msg.ID
	default:
		return "init"
	}
}

func (d *Dispatcher) notifyError(err error, op string) {
	if d.Notifier != nil {
		d.Notifier.Error(err, op)
	}
}

func (d *Dispatcher) notifyInfo(msg string) {
	if d.Notifier != nil {
		d.Notifier.Info(msg)
	}
}
