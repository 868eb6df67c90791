package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/client"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

// ErrNoStream is returned when a stream is requested but none is queued
var ErrNoStream = errors.New("fake api: no stream queued")

type ResumeCall struct {
	ThreadID string
	Approved bool
}

// FakeAPI is an in-memory agent backend. Streams are served from queues in
// order; history and agent state are looked up per thread.
type FakeAPI struct {
	mu sync.Mutex

	sends   []io.ReadCloser
	resumes []io.ReadCloser
	history map[string][]chat.Message
	states  map[string]stream.AgentState

	SendErr    error
	ResumeErr  error
	HistoryErr error
	StateErr   error

	sent         []client.SendRequest
	resumed      []ResumeCall
	historyCalls int
}

func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		history: make(map[string][]chat.Message),
		states:  make(map[string]stream.AgentState),
	}
}

// QueueSend adds a body for the next SendMessage
func (f *FakeAPI) QueueSend(body io.ReadCloser) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, body)
	return f
}

// QueueResume adds a body for the next Resume
func (f *FakeAPI) QueueResume(body io.ReadCloser) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes = append(f.resumes, body)
	return f
}

func (f *FakeAPI) SetHistory(threadID string, msgs ...chat.Message) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[threadID] = msgs
	return f
}

func (f *FakeAPI) SetAgentState(threadID string, as stream.AgentState) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[threadID] = as
	return f
}

func (f *FakeAPI) SendMessage(_ context.Context, _ string, req client.SendRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, req)
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	if len(f.sends) == 0 {
		return nil, ErrNoStream
	}
	body := f.sends[0]
	f.sends = f.sends[1:]
	return body, nil
}

func (f *FakeAPI) Resume(_ context.Context, _ string, threadID string, approved bool) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resumed = append(f.resumed, ResumeCall{ThreadID: threadID, Approved: approved})
	if f.ResumeErr != nil {
		return nil, f.ResumeErr
	}
	if len(f.resumes) == 0 {
		return nil, ErrNoStream
	}
	body := f.resumes[0]
	f.resumes = f.resumes[1:]
	return body, nil
}

func (f *FakeAPI) History(_ context.Context, _ string, threadID string) ([]chat.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.historyCalls++
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	return append([]chat.Message(nil), f.history[threadID]...), nil
}

func (f *FakeAPI) AgentState(_ context.Context, _ string, threadID string) (stream.AgentState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.StateErr != nil {
		return stream.AgentState{}, f.StateErr
	}
	return f.states[threadID], nil
}

func (f *FakeAPI) Sent() []client.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.SendRequest(nil), f.sent...)
}

func (f *FakeAPI) Resumed() []ResumeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ResumeCall(nil), f.resumed...)
}

func (f *FakeAPI) HistoryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.historyCalls
}
