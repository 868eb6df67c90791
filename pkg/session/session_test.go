package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/process"
	"github.com/xerrors/Yuxi-Know/pkg/session"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
	"github.com/xerrors/Yuxi-Know/pkg/testutil"
)

func newSession(api *testutil.FakeAPI, opts ...session.Option) (*session.Session, *testutil.RecordingNotifier) {
	n := testutil.NewRecordingNotifier()
	opts = append([]session.Option{session.WithNotifier(n)}, opts...)
	return session.New(api, opts...), n
}

func TestSendFinished(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewStreamBuilder("r1").Init("hello").Loading("a1", "Hi").Loading("a1", " there").Finished().Reader()).
		SetHistory("t1", chat.NewHumanMessage("hello"), chat.NewAIMessage("Hi there"))
	s, n := newSession(api, session.WithAgentID("kb"))

	require.NoError(t, s.Send(context.Background(), "t1", "hello"))

	sent := api.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "hello", sent[0].Query)
	assert.Equal(t, "t1", sent[0].ThreadID)

	state, ok := s.State("t1")
	require.True(t, ok)
	assert.False(t, state.IsStreaming())
	assert.Empty(t, s.Ongoing("t1"))
	assert.Equal(t, 1, api.HistoryCalls())

	convs := s.Conversations("t1")
	require.Len(t, convs, 1)
	assert.Equal(t, chat.TurnFinished, convs[0].Status)
	last, ok := chat.GetLastAIMessage(convs[0])
	require.True(t, ok)
	assert.True(t, last.IsLast)

	assert.Empty(t, n.Errors())
	assert.Equal(t, "t1", s.CurrentThread())
	assert.Equal(t, "kb", s.AgentID())
}

func TestSendRequiresThread(t *testing.T) {
	s, _ := newSession(testutil.NewFakeAPI())
	assert.ErrorIs(t, s.Send(context.Background(), "", "q"), session.ErrUnknownThread)
	assert.ErrorIs(t, s.Stop("nope"), session.ErrUnknownThread)
}

func TestSendBusyAndStop(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewBlockingReader(testutil.NewStreamBuilder("r1").Init("q").Loading("a1", "partial").Bytes()))
	s, n := newSession(api)

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "t1", "q") }()

	require.Eventually(t, func() bool {
		return len(s.Ongoing("t1")) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Send(context.Background(), "t1", "again"), session.ErrThreadBusy)
	require.NoError(t, s.Stop("t1"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}

	state, _ := s.State("t1")
	assert.False(t, state.IsStreaming())
	assert.Empty(t, s.Ongoing("t1"))
	assert.Empty(t, n.Errors())
	assert.Len(t, api.Sent(), 1)
}

func TestSendWaitsForInit(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewBlockingReader(testutil.NewStreamBuilder("r1").Loading("a1", "early").Bytes()))
	s, _ := newSession(api)

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), "t1", "q") }()

	require.Eventually(t, func() bool {
		return len(s.Ongoing("t1")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	state, _ := s.State("t1")
	assert.True(t, state.IsWaiting())
	assert.Equal(t, process.StateSending, s.Activity("t1"))

	require.NoError(t, s.Stop("t1"))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
	assert.False(t, state.IsWaiting())
}

func TestSendErrorFrame(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewStreamBuilder("r1").Init("q").Loading("a1", "x").Error("agent_error", "model crashed").Reader())
	s, n := newSession(api)

	require.NoError(t, s.Send(context.Background(), "t1", "q"))

	errs := n.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, stream.OpStream, errs[0].Op)
	assert.Contains(t, errs[0].Err.Error(), "model crashed")
	assert.Empty(t, s.Ongoing("t1"))
	assert.Zero(t, api.HistoryCalls())
}

func TestSendInterrupted(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewStreamBuilder("r1").Init("q").Interrupted("user stopped").Reader())
	s, n := newSession(api)

	require.NoError(t, s.Send(context.Background(), "t1", "q"))
	assert.Equal(t, []string{"user stopped"}, n.Infos())
	assert.Equal(t, 1, api.HistoryCalls())
}

func TestStreamWithoutStopFrame(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewStreamBuilder("r1").Init("q").Loading("a1", "x").Reader())
	s, n := newSession(api)

	require.NoError(t, s.Send(context.Background(), "t1", "q"))
	state, _ := s.State("t1")
	assert.False(t, state.IsStreaming())
	assert.Equal(t, 1, api.HistoryCalls())
	assert.Empty(t, n.Errors())
}

func TestSendTransportFailure(t *testing.T) {
	t.Run("request", func(t *testing.T) {
		api := testutil.NewFakeAPI()
		api.SendErr = errors.New("connection refused")
		s, n := newSession(api)

		err := s.Send(context.Background(), "t1", "q")
		assert.ErrorContains(t, err, "connection refused")
		require.Len(t, n.Errors(), 1)
		assert.Equal(t, stream.OpSend, n.Errors()[0].Op)

		state, _ := s.State("t1")
		assert.False(t, state.IsStreaming())
	})

	t.Run("body", func(t *testing.T) {
		boom := errors.New("reset by peer")
		data := testutil.NewStreamBuilder("r1").Init("q").Loading("a1", "x").Bytes()
		api := testutil.NewFakeAPI().QueueSend(testutil.NewChunkedReader(data, 7).FailAfter(len(data)-3, boom))
		s, n := newSession(api)

		err := s.Send(context.Background(), "t1", "q")
		assert.ErrorIs(t, err, boom)
		require.Len(t, n.Errors(), 1)
		assert.Equal(t, stream.OpStream, n.Errors()[0].Op)
		assert.Empty(t, s.Ongoing("t1"))
	})
}

func TestIdleTimeout(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewBlockingReader(testutil.NewStreamBuilder("r1").Init("q").Bytes()))
	s, n := newSession(api, session.WithIdleTimeout(50*time.Millisecond))

	err := s.Send(context.Background(), "t1", "q")
	assert.ErrorIs(t, err, session.ErrIdleTimeout)

	errs := n.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, stream.OpStream, errs[0].Op)
	assert.ErrorIs(t, errs[0].Err, session.ErrIdleTimeout)

	state, _ := s.State("t1")
	assert.False(t, state.IsStreaming())
}

func TestApprovalAndResume(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewStreamBuilder("r1").Init("delete it").Loading("a1", "checking").Approval("t1", "", "").Reader()).
		QueueResume(testutil.NewStreamBuilder("r2").Loading("a2", "deleted").Finished().Reader())

	var approvals []session.ApprovalRequest
	s, _ := newSession(api, session.WithApprovalHandler(func(r session.ApprovalRequest) {
		approvals = append(approvals, r)
	}))

	assert.ErrorIs(t, s.Resume(context.Background(), "t1", true), session.ErrNoPendingApproval)
	require.NoError(t, s.Send(context.Background(), "t1", "delete it"))

	req, ok := s.PendingApproval()
	require.True(t, ok)
	assert.Equal(t, "t1", req.ThreadID)
	assert.Equal(t, "Approve the following operation?", req.Question)
	assert.Equal(t, "unknown operation", req.Operation)
	require.Len(t, approvals, 1)

	state, _ := s.State("t1")
	assert.False(t, state.IsStreaming())
	assert.Equal(t, 1, api.HistoryCalls())
	assert.Equal(t, process.StateApproval, s.Activity("t1"))
	assert.Equal(t, process.StateIdle, s.Activity("other"))

	assert.ErrorIs(t, s.Resume(context.Background(), "other", true), session.ErrNoPendingApproval)
	require.NoError(t, s.Resume(context.Background(), "t1", true))

	assert.Equal(t, []testutil.ResumeCall{{ThreadID: "t1", Approved: true}}, api.Resumed())
	_, ok = s.PendingApproval()
	assert.False(t, ok)
	assert.Equal(t, 2, api.HistoryCalls())
	assert.Empty(t, s.Ongoing("t1"))
	assert.Equal(t, process.StateIdle, s.Activity("t1"))
}

func TestApprovalKeepsServerQuestion(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewStreamBuilder("r1").Approval("t1", "Run shell?", "rm -rf tmp").Reader())
	s, _ := newSession(api)

	require.NoError(t, s.Send(context.Background(), "t1", "q"))
	req, ok := s.PendingApproval()
	require.True(t, ok)
	assert.Equal(t, "Run shell?", req.Question)
	assert.Equal(t, "rm -rf tmp", req.Operation)
}

func TestApprovalForOtherThreadEndsStream(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewStreamBuilder("r1").Init("q").Approval("server-thread", "", "").Reader()).
		QueueSend(testutil.NewStreamBuilder("r2").Init("again").Finished().Reader())
	s, _ := newSession(api)

	require.NoError(t, s.Send(context.Background(), "t1", "q"))

	req, ok := s.PendingApproval()
	require.True(t, ok)
	assert.Equal(t, "server-thread", req.ThreadID)

	state, ok := s.State("t1")
	require.True(t, ok)
	assert.False(t, state.IsStreaming())

	require.NoError(t, s.Send(context.Background(), "t1", "again"))
	assert.Len(t, api.Sent(), 2)
}

func TestAgentStateCapabilities(t *testing.T) {
	frames := func() *testutil.StreamBuilder {
		return testutil.NewStreamBuilder("r1").AgentState([]any{"todo"}, nil).Finished()
	}

	api := testutil.NewFakeAPI().QueueSend(frames().Reader()).QueueSend(frames().Reader())
	plain, _ := newSession(api)
	require.NoError(t, plain.Send(context.Background(), "t1", "q"))
	state, _ := plain.State("t1")
	_, ok := state.AgentState()
	assert.False(t, ok)

	todo, _ := newSession(api, session.WithCapabilities(stream.Capabilities{Todo: true}))
	require.NoError(t, todo.Send(context.Background(), "t1", "q"))
	state, _ = todo.State("t1")
	as, ok := state.AgentState()
	require.True(t, ok)
	assert.Equal(t, []any{"todo"}, as.Todos)
}

func TestFetchAgentState(t *testing.T) {
	api := testutil.NewFakeAPI().SetAgentState("t1", stream.AgentState{Files: []any{"a.md"}})
	s, n := newSession(api)

	as, err := s.FetchAgentState(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []any{"a.md"}, as.Files)

	state, _ := s.State("t1")
	stored, ok := state.AgentState()
	require.True(t, ok)
	assert.Equal(t, as, stored)

	api.StateErr = errors.New("down")
	_, err = s.FetchAgentState(context.Background(), "t1")
	assert.Error(t, err)
	require.Len(t, n.Errors(), 1)
	assert.Equal(t, stream.OpLoad, n.Errors()[0].Op)
}

func TestRefreshHistoryFailure(t *testing.T) {
	api := testutil.NewFakeAPI()
	api.HistoryErr = errors.New("history unavailable")
	s, n := newSession(api)

	_, err := s.RefreshHistory(context.Background(), "t1")
	assert.ErrorContains(t, err, "history unavailable")
	require.Len(t, n.Errors(), 1)
	assert.Equal(t, stream.OpLoad, n.Errors()[0].Op)
}

func TestSwitchThreadClearsPrevious(t *testing.T) {
	s, _ := newSession(testutil.NewFakeAPI())

	a := s.SwitchThread("a")
	a.AppendChunk("m1", chat.Message{ID: "m1", Content: "x"})
	require.Len(t, s.Ongoing("a"), 1)

	b := s.SwitchThread("b")
	assert.Equal(t, "b", b.ThreadID())
	assert.Equal(t, "b", s.CurrentThread())
	assert.Empty(t, s.Ongoing("a"))

	b.AppendChunk("m2", chat.Message{ID: "m2", Content: "y"})
	s.SwitchThread("b")
	assert.Len(t, s.Ongoing("b"), 1)
}

func TestObserversSeeFrames(t *testing.T) {
	api := testutil.NewFakeAPI().
		QueueSend(testutil.NewStreamBuilder("r1").Init("q").Finished().Reader())
	rec := &stream.FrameRecorder{}
	s, _ := newSession(api, session.WithObservers(rec))

	require.NoError(t, s.Send(context.Background(), "t1", "q"))
	assert.Equal(t, []stream.Status{stream.StatusInit, stream.StatusFinished}, rec.Statuses())
}
