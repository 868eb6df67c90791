package stream

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
)

// Phase is the coarse lifecycle of one thread's stream
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWaiting
	PhaseReceiving
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWaiting:
		return "waiting"
	case PhaseReceiving:
		return "receiving"
	default:
		return "unknown"
	}
}

// ThreadState is the streaming state of one thread: fragments not yet
// merged, the latest agent state and the active stream's cancel func. Frames
// are written by the stream goroutine; readers take snapshots.
type ThreadState struct {
	threadID string

	mu            sync.Mutex
	ongoing       *chat.MessageAccumulator
	agentState    *AgentState
	streaming     bool
	waiting       bool
	cancel        context.CancelFunc
	conversations []chat.Conversation
	lastFrame     time.Time
	frames        int
}

func NewThreadState(threadID string) *ThreadState {
	return &ThreadState{
		threadID: threadID,
		ongoing:  chat.NewMessageAccumulator(),
	}
}

func (s *ThreadState) ThreadID() string {
	return s.threadID
}

// BeginStream marks the thread streaming. It returns false, leaving state
// untouched, when a stream is already running.
func (s *ThreadState) BeginStream(cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streaming {
		return false
	}
	s.streaming = true
	s.waiting = false
	s.cancel = cancel
	s.frames = 0
	return true
}

// MarkWaiting flags a streaming thread as waiting for the server's init
// frame. Only an init frame clears it.
func (s *ThreadState) MarkWaiting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streaming {
		s.waiting = true
	}
}

// EndStream marks the thread no longer streaming. The cancel func is
// released without being called.
func (s *ThreadState) EndStream() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.streaming = false
	s.waiting = false
	s.cancel = nil
}

// Abort cancels the in-flight stream, if any, and ends it
func (s *ThreadState) Abort() {
	s.mu.Lock()
	cancel := s.cancel
	s.streaming = false
	s.waiting = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *ThreadState) IsStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

func (s *ThreadState) IsWaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

func (s *ThreadState) ClearWaiting() {
	s.mu.Lock()
	s.waiting = false
	s.mu.Unlock()
}

func (s *ThreadState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *ThreadState) phaseLocked() Phase {
	switch {
	case !s.streaming:
		return PhaseIdle
	case s.waiting:
		return PhaseWaiting
	default:
		return PhaseReceiving
	}
}

// touch records frame arrival
func (s *ThreadState) touch() {
	s.mu.Lock()
	s.lastFrame = time.Now()
	s.frames++
	s.mu.Unlock()
}

// StartChunks begins accumulation under key with a single fragment,
// replacing anything already buffered there
func (s *ThreadState) StartChunks(key chat.MessageID, frag chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ongoing.Start(key, frag)
}

// AppendChunk adds a fragment under its message id
func (s *ThreadState) AppendChunk(key chat.MessageID, frag chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ongoing.AddChunk(key, frag)
}

// ResetOnGoing drops every buffered fragment
func (s *ThreadState) ResetOnGoing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ongoing.Reset()
}

// OngoingMessages merges the buffered fragments per id, in first-seen order
func (s *ThreadState) OngoingMessages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ongoing.Messages()
}

// OngoingMessage merges the fragments buffered under one id
func (s *ThreadState) OngoingMessage(key chat.MessageID) (chat.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ongoing.GetMessage(key)
}

func (s *ThreadState) SetAgentState(as AgentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentState = &as
}

func (s *ThreadState) AgentState() (AgentState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agentState == nil {
		return AgentState{}, false
	}
	return *s.agentState, true
}

func (s *ThreadState) SetConversations(convs []chat.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = convs
}

func (s *ThreadState) Conversations() []chat.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Conversation(nil), s.conversations...)
}

// Snapshot is a point-in-time copy of a ThreadState
type Snapshot struct {
	ThreadID      string
	Phase         Phase
	Streaming     bool
	Waiting       bool
	Ongoing       []chat.Message
	AgentState    *AgentState
	Conversations []chat.Conversation
	LastFrame     time.Time
	Frames        int
}

func (s *ThreadState) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ThreadID:      s.threadID,
		Phase:         s.phaseLocked(),
		Streaming:     s.streaming,
		Waiting:       s.waiting,
		Ongoing:       s.ongoing.Messages(),
		Conversations: append([]chat.Conversation(nil), s.conversations...),
		LastFrame:     s.lastFrame,
		Frames:        s.frames,
	}
	if s.agentState != nil {
		as := *s.agentState
		snap.AgentState = &as
	}
	return snap
}

// Registry holds the state of every thread the client has touched. Threads
// are independent; the registry lock only guards the map.
type Registry struct {
	mu      sync.RWMutex
	threads map[string]*ThreadState
}

func NewRegistry() *Registry {
	return &Registry{threads: make(map[string]*ThreadState)}
}

func (r *Registry) Get(threadID string) (*ThreadState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.threads[threadID]
	return s, ok
}

func (r *Registry) GetOrCreate(threadID string) *ThreadState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.threads[threadID]; ok {
		return s
	}
	s := NewThreadState(threadID)
	r.threads[threadID] = s
	return s
}

// Remove aborts any stream on the thread and forgets it
func (r *Registry) Remove(threadID string) {
	r.mu.Lock()
	s, ok := r.threads[threadID]
	delete(r.threads, threadID)
	r.mu.Unlock()

	if ok {
		s.Abort()
	}
}

// IDs returns the known thread ids, sorted
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.threads))
	for id := range r.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Streaming returns the ids of threads with an active stream, sorted
func (r *Registry) Streaming() []string {
	var out []string
	for _, id := range r.IDs() {
		if s, ok := r.Get(id); ok && s.IsStreaming() {
			out = append(out, id)
		}
	}
	return out
}
