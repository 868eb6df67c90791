package testutil

import (
	"context"
	"sync"

	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

type RecordedError struct {
	Err error
	Op  string
}

// RecordingNotifier captures notices for assertions
type RecordingNotifier struct {
	mu     sync.Mutex
	errors []RecordedError
	infos  []string
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Error(err error, op string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, RecordedError{Err: err, Op: op})
}

func (n *RecordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *RecordingNotifier) Errors() []RecordedError {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]RecordedError(nil), n.errors...)
}

func (n *RecordingNotifier) Infos() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.infos...)
}

// ApprovalCall is one recorded approval request
type ApprovalCall struct {
	ThreadID  string
	Question  string
	Operation string
}

// ScriptedApprover answers approval requests with a fixed stop decision
type ScriptedApprover struct {
	Stop bool

	mu    sync.Mutex
	calls []ApprovalCall
}

func NewScriptedApprover(stop bool) *ScriptedApprover {
	return &ScriptedApprover{Stop: stop}
}

func (a *ScriptedApprover) HandleApproval(_ context.Context, threadID string, info stream.InterruptInfo) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ApprovalCall{ThreadID: threadID, Question: info.Question, Operation: info.Operation})
	return a.Stop
}

func (a *ScriptedApprover) Calls() []ApprovalCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ApprovalCall(nil), a.calls...)
}

var (
	_ stream.Notifier = (*RecordingNotifier)(nil)
	_ stream.Approver = (*ScriptedApprover)(nil)
)
