// Package session drives chat streams for a set of threads: it sends turns,
// feeds response frames through the dispatcher, handles approval interrupts
// and rebuilds conversations from history once a stream ends.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/client"
	"github.com/xerrors/Yuxi-Know/pkg/logger"
	"github.com/xerrors/Yuxi-Know/pkg/process"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

var (
	ErrThreadBusy        = errors.New("thread is already streaming")
	ErrNoPendingApproval = errors.New("no approval pending for thread")
	ErrUnknownThread     = errors.New("unknown thread")
	ErrIdleTimeout       = errors.New("stream idle timeout")
)

// API is the part of the agent backend a Session talks to
type API interface {
	SendMessage(ctx context.Context, agentID string, req client.SendRequest) (io.ReadCloser, error)
	Resume(ctx context.Context, agentID, threadID string, approved bool) (io.ReadCloser, error)
	History(ctx context.Context, agentID, threadID string) ([]chat.Message, error)
	AgentState(ctx context.Context, agentID, threadID string) (stream.AgentState, error)
}

var (
	_ API = (*client.Client)(nil)
	_ API = (*client.WebSocketClient)(nil)
)

// ApprovalRequest is an operation the agent paused on
type ApprovalRequest struct {
	ThreadID  string
	Question  string
	Operation string
	Info      stream.InterruptInfo
}

const (
	defaultApprovalQuestion  = "Approve the following operation?"
	defaultApprovalOperation = "unknown operation"
)

type Option func(*Session)

func WithAgentID(id string) Option {
	return func(s *Session) { s.agentID = id }
}

func WithNotifier(n stream.Notifier) Option {
	return func(s *Session) { s.notifier = n }
}

func WithCapabilities(c stream.Capabilities) Option {
	return func(s *Session) { s.caps = c }
}

// WithIdleTimeout cancels a stream that delivers no frame for d. Zero
// disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Session) { s.idleTimeout = d }
}

func WithObservers(obs ...stream.Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, obs...) }
}

// WithApprovalHandler is called after an approval request is recorded
func WithApprovalHandler(fn func(ApprovalRequest)) Option {
	return func(s *Session) { s.onApproval = fn }
}

// Session is safe for concurrent use. Each thread runs at most one stream.
type Session struct {
	api         API
	agentID     string
	notifier    stream.Notifier
	caps        stream.Capabilities
	idleTimeout time.Duration
	observers   []stream.Observer
	onApproval  func(ApprovalRequest)

	registry   *stream.Registry
	dispatcher *stream.Dispatcher

	mu      sync.Mutex
	current string
	pending *ApprovalRequest
}

func New(api API, opts ...Option) *Session {
	s := &Session{
		api:      api,
		agentID:  "chatbot",
		registry: stream.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.dispatcher = &stream.Dispatcher{
		Approver:     s,
		Notifier:     s.notifier,
		Capabilities: s.caps,
		Observers:    s.observers,
	}
	return s
}

func (s *Session) AgentID() string {
	return s.agentID
}

func (s *Session) Registry() *stream.Registry {
	return s.registry
}

// Send posts query to the thread and consumes the response stream. It
// returns once a stopping frame arrives or the transport ends.
func (s *Session) Send(ctx context.Context, threadID, query string) error {
	if threadID == "" {
		return fmt.Errorf("send: %w", ErrUnknownThread)
	}

	state := s.registry.GetOrCreate(threadID)
	streamCtx, cancel := context.WithCancel(ctx)
	if !state.BeginStream(cancel) {
		cancel()
		return ErrThreadBusy
	}
	state.MarkWaiting()
	state.ResetOnGoing()
	s.adoptThread(threadID)

	body, err := s.api.SendMessage(streamCtx, s.agentID, client.SendRequest{Query: query, ThreadID: threadID})
	if err != nil {
		state.EndStream()
		cancel()
		s.notifyError(err, stream.OpSend)
		return fmt.Errorf("send: %w", err)
	}
	return s.consume(streamCtx, cancel, state, body)
}

// Resume answers the pending approval of threadID and consumes the
// continued stream
func (s *Session) Resume(ctx context.Context, threadID string, approved bool) error {
	s.mu.Lock()
	if s.pending == nil || s.pending.ThreadID != threadID {
		s.mu.Unlock()
		return ErrNoPendingApproval
	}
	s.pending = nil
	s.mu.Unlock()

	state := s.registry.GetOrCreate(threadID)
	state.Abort()
	state.ResetOnGoing()

	streamCtx, cancel := context.WithCancel(ctx)
	if !state.BeginStream(cancel) {
		cancel()
		return ErrThreadBusy
	}

	body, err := s.api.Resume(streamCtx, s.agentID, threadID, approved)
	if err != nil {
		state.EndStream()
		cancel()
		s.notifyError(err, stream.OpResume)
		return fmt.Errorf("resume: %w", err)
	}
	return s.consume(streamCtx, cancel, state, body)
}

// consume runs one response stream to its end and settles the thread state
func (s *Session) consume(ctx context.Context, cancel context.CancelFunc, state *stream.ThreadState, body io.ReadCloser) error {
	defer body.Close()
	defer cancel()

	log := logger.WithComponent("session")
	threadID := state.ThreadID()

	var (
		timedOut atomic.Bool
		timer    *time.Timer
	)
	if s.idleTimeout > 0 {
		timer = time.AfterFunc(s.idleTimeout, func() {
			timedOut.Store(true)
			cancel()
		})
		defer timer.Stop()
	}

	var last stream.Status
	err := stream.Decode(ctx, body, func(f stream.Frame) bool {
		if timer != nil {
			timer.Reset(s.idleTimeout)
		}
		last = f.Status
		return s.dispatcher.Dispatch(ctx, state, f)
	})

	// history is fetched on a context that outlives the stream's
	settle := context.WithoutCancel(ctx)

	switch {
	case err != nil && timedOut.Load():
		state.EndStream()
		state.ResetOnGoing()
		err = fmt.Errorf("%w after %s", ErrIdleTimeout, s.idleTimeout)
		log.Warn("stream idle", "thread_id", threadID, "timeout", s.idleTimeout)
		s.notifyError(err, stream.OpStream)
		return err

	case errors.Is(err, context.Canceled):
		log.Debug("stream cancelled", "thread_id", threadID)
		state.EndStream()
		_, _ = s.RefreshHistory(settle, threadID)
		state.ResetOnGoing()
		return err

	case err != nil:
		state.EndStream()
		state.ResetOnGoing()
		s.notifyError(err, stream.OpStream)
		return err
	}

	switch last {
	case stream.StatusError:
		state.ResetOnGoing()
	case stream.StatusApprovalRequired:
		// the frame may name another thread; this one still stops streaming
		state.EndStream()
		_, _ = s.RefreshHistory(settle, threadID)
	default:
		// finished, interrupted, or a stream that ended without a stop frame
		state.EndStream()
		_, _ = s.RefreshHistory(settle, threadID)
		state.ResetOnGoing()
	}
	log.Debug("stream settled", "thread_id", threadID, "last_status", last)
	return nil
}

// HandleApproval records the request and stops the stream until Resume
func (s *Session) HandleApproval(_ context.Context, threadID string, info stream.InterruptInfo) bool {
	req := ApprovalRequest{
		ThreadID:  threadID,
		Question:  info.Question,
		Operation: info.Operation,
		Info:      info,
	}
	if req.Question == "" {
		req.Question = defaultApprovalQuestion
	}
	if req.Operation == "" {
		req.Operation = defaultApprovalOperation
	}

	s.mu.Lock()
	s.pending = &req
	s.mu.Unlock()

	if state, ok := s.registry.Get(threadID); ok {
		state.EndStream()
	}
	logger.WithComponent("session").Info("approval requested", "thread_id", threadID, "operation", req.Operation)

	if s.onApproval != nil {
		s.onApproval(req)
	}
	return true
}

// PendingApproval returns the request waiting for Resume, if any
func (s *Session) PendingApproval() (ApprovalRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return ApprovalRequest{}, false
	}
	return *s.pending, true
}

// Stop cancels the thread's stream
func (s *Session) Stop(threadID string) error {
	state, ok := s.registry.Get(threadID)
	if !ok {
		return ErrUnknownThread
	}
	state.Abort()
	return nil
}

// SwitchThread makes id the current thread. The previous thread's
// unmerged fragments are dropped; its stream keeps running.
func (s *Session) SwitchThread(id string) *stream.ThreadState {
	s.mu.Lock()
	prev := s.current
	s.current = id
	s.mu.Unlock()

	if prev != "" && prev != id {
		if state, ok := s.registry.Get(prev); ok {
			state.ResetOnGoing()
		}
	}
	return s.registry.GetOrCreate(id)
}

func (s *Session) CurrentThread() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) adoptThread(id string) {
	s.mu.Lock()
	if s.current == "" {
		s.current = id
	}
	s.mu.Unlock()
}

func (s *Session) State(threadID string) (*stream.ThreadState, bool) {
	return s.registry.Get(threadID)
}

// Activity reports what the thread is doing, for status lines
func (s *Session) Activity(threadID string) process.State {
	state, ok := s.registry.Get(threadID)
	if !ok {
		return process.StateIdle
	}
	req, pending := s.PendingApproval()
	return process.Derive(state.Snapshot(), pending && req.ThreadID == threadID)
}

// Conversations returns the turns rebuilt from the thread's last history
func (s *Session) Conversations(threadID string) []chat.Conversation {
	state, ok := s.registry.Get(threadID)
	if !ok {
		return nil
	}
	return state.Conversations()
}

// Ongoing returns the thread's in-flight messages, merged per id
func (s *Session) Ongoing(threadID string) []chat.Message {
	state, ok := s.registry.Get(threadID)
	if !ok {
		return nil
	}
	return state.OngoingMessages()
}

// RefreshHistory fetches the thread's history and rebuilds its conversations
func (s *Session) RefreshHistory(ctx context.Context, threadID string) ([]chat.Conversation, error) {
	history, err := s.api.History(ctx, s.agentID, threadID)
	if err != nil {
		s.notifyError(err, stream.OpLoad)
		return nil, fmt.Errorf("refresh history: %w", err)
	}

	convs := chat.BuildConversations(history)
	s.registry.GetOrCreate(threadID).SetConversations(convs)
	return convs, nil
}

// FetchAgentState loads the thread's agent state and stores it
func (s *Session) FetchAgentState(ctx context.Context, threadID string) (stream.AgentState, error) {
	as, err := s.api.AgentState(ctx, s.agentID, threadID)
	if err != nil {
		s.notifyError(err, stream.OpLoad)
		return stream.AgentState{}, fmt.Errorf("fetch agent state: %w", err)
	}
	s.registry.GetOrCreate(threadID).SetAgentState(as)
	return as, nil
}

func (s *Session) notifyError(err error, op string) {
	if s.notifier != nil {
		s.notifier.Error(err, op)
	}
}

var _ stream.Approver = (*Session)(nil)
