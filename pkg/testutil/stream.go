package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

// StreamBuilder assembles NDJSON chat streams in the backend's wire format
type StreamBuilder struct {
	requestID string
	lines     []string
}

func NewStreamBuilder(requestID string) *StreamBuilder {
	return &StreamBuilder{requestID: requestID}
}

func (b *StreamBuilder) frame(fields map[string]any) *StreamBuilder {
	if _, ok := fields["request_id"]; !ok && b.requestID != "" {
		fields["request_id"] = b.requestID
	}
	data, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	b.lines = append(b.lines, string(data))
	return b
}

// Init adds the init frame echoing the user's query
func (b *StreamBuilder) Init(query string) *StreamBuilder {
	return b.frame(map[string]any{
		"status": "init",
		"msg":    map[string]any{"role": "user", "content": query, "type": "human"},
	})
}

// Loading adds a content delta for message id
func (b *StreamBuilder) Loading(id, content string) *StreamBuilder {
	return b.frame(map[string]any{
		"status":   "loading",
		"response": content,
		"msg":      map[string]any{"id": id, "type": "AIMessageChunk", "content": content},
	})
}

// Reasoning adds a reasoning delta nested in additional_kwargs
func (b *StreamBuilder) Reasoning(id, reasoning string) *StreamBuilder {
	return b.frame(map[string]any{
		"status": "loading",
		"msg": map[string]any{
			"id": id, "type": "AIMessageChunk", "content": "",
			"additional_kwargs": map[string]any{"reasoning_content": reasoning},
		},
	})
}

// ToolChunk adds one tool_call_chunks entry for message id
func (b *StreamBuilder) ToolChunk(id string, index int, callID, name, args string) *StreamBuilder {
	chunk := map[string]any{"index": index, "args": args, "type": "tool_call_chunk"}
	if callID != "" {
		chunk["id"] = callID
	}
	if name != "" {
		chunk["name"] = name
	}
	return b.frame(map[string]any{
		"status": "loading",
		"msg": map[string]any{
			"id": id, "type": "AIMessageChunk", "content": "",
			"tool_call_chunks": []any{chunk},
		},
	})
}

// ToolResult adds a streamed tool message
func (b *StreamBuilder) ToolResult(id, callID, content string) *StreamBuilder {
	return b.frame(map[string]any{
		"status": "loading",
		"msg":    map[string]any{"id": id, "type": "tool", "tool_call_id": callID, "content": content},
	})
}

func (b *StreamBuilder) AgentState(todos, files []any) *StreamBuilder {
	return b.frame(map[string]any{
		"status":      "agent_state",
		"agent_state": map[string]any{"todos": todos, "files": files},
	})
}

func (b *StreamBuilder) Approval(threadID, question, operation string) *StreamBuilder {
	return b.frame(map[string]any{
		"status":         "human_approval_required",
		"thread_id":      threadID,
		"interrupt_info": map[string]any{"question": question, "operation": operation},
	})
}

// Error adds an error frame in the backend's error_type/error_message form
func (b *StreamBuilder) Error(errorType, message string) *StreamBuilder {
	return b.frame(map[string]any{
		"status":        "error",
		"error_type":    errorType,
		"error_message": message,
	})
}

func (b *StreamBuilder) Finished() *StreamBuilder {
	return b.frame(map[string]any{"status": "finished"})
}

func (b *StreamBuilder) Interrupted(message string) *StreamBuilder {
	fields := map[string]any{"status": "interrupted"}
	if message != "" {
		fields["message"] = message
	}
	return b.frame(fields)
}

// Raw adds a line verbatim, malformed or not
func (b *StreamBuilder) Raw(line string) *StreamBuilder {
	b.lines = append(b.lines, line)
	return b
}

func (b *StreamBuilder) Lines() []string {
	return append([]string(nil), b.lines...)
}

// String returns the stream with every line newline-terminated
func (b *StreamBuilder) String() string {
	if len(b.lines) == 0 {
		return ""
	}
	return strings.Join(b.lines, "\n") + "\n"
}

func (b *StreamBuilder) Bytes() []byte {
	return []byte(b.String())
}

func (b *StreamBuilder) Reader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(b.Bytes()))
}

// ChunkedReader hands out at most size bytes per Read, optionally pausing
// between reads and failing once a byte budget is spent
type ChunkedReader struct {
	data      []byte
	size      int
	delay     time.Duration
	failAfter int
	failErr   error

	mu     sync.Mutex
	pos    int
	reads  int
	closed bool
}

func NewChunkedReader(data []byte, size int) *ChunkedReader {
	if size <= 0 {
		size = 1
	}
	return &ChunkedReader{data: data, size: size, failAfter: -1}
}

// WithDelay pauses before every read
func (r *ChunkedReader) WithDelay(d time.Duration) *ChunkedReader {
	r.delay = d
	return r
}

// FailAfter returns err once n bytes have been delivered
func (r *ChunkedReader) FailAfter(n int, err error) *ChunkedReader {
	r.failAfter = n
	r.failErr = err
	return r
}

func (r *ChunkedReader) Read(p []byte) (int, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.ErrClosedPipe
	}
	if r.failAfter >= 0 && r.pos >= r.failAfter {
		return 0, r.failErr
	}
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}

	end := r.pos + r.size
	if end > len(r.data) {
		end = len(r.data)
	}
	if r.failAfter >= 0 && end > r.failAfter {
		end = r.failAfter
	}

	n := copy(p, r.data[r.pos:end])
	r.pos += n
	r.reads++
	return n, nil
}

func (r *ChunkedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Reads returns how many successful reads were served
func (r *ChunkedReader) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func (r *ChunkedReader) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// BlockingReader delivers its data and then blocks until closed, like a
// stream that never sends a terminal frame
type BlockingReader struct {
	data   []byte
	closed chan struct{}
	once   sync.Once
	mu     sync.Mutex
	pos    int
}

func NewBlockingReader(data []byte) *BlockingReader {
	return &BlockingReader{data: data, closed: make(chan struct{})}
}

func (r *BlockingReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.pos < len(r.data) {
		n := copy(p, r.data[r.pos:])
		r.pos += n
		r.mu.Unlock()
		return n, nil
	}
	r.mu.Unlock()

	<-r.closed
	return 0, io.ErrClosedPipe
}

func (r *BlockingReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}
