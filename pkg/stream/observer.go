package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Observer sees every frame before it is applied
type Observer interface {
	OnFrame(threadID string, f Frame)
}

// ObserverFunc is a function adapter for Observer
type ObserverFunc func(threadID string, f Frame)

func (fn ObserverFunc) OnFrame(threadID string, f Frame) {
	fn(threadID, f)
}

// FrameRecorder keeps every observed frame in memory
type FrameRecorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *FrameRecorder) OnFrame(_ string, f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

// Frames returns a copy of the recorded frames
func (r *FrameRecorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Statuses returns the recorded statuses in order
func (r *FrameRecorder) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.frames))
	for i, f := range r.frames {
		out[i] = f.Status
	}
	return out
}

// NDJSONWriter writes observed frames back out as NDJSON, producing files
// that replay through Decoder. The original line is written when known.
type NDJSONWriter struct {
	mu  sync.Mutex
	w   io.Writer
	err error
}

func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	return &NDJSONWriter{w: w}
}

func (nw *NDJSONWriter) OnFrame(_ string, f Frame) {
	nw.mu.Lock()
	defer nw.mu.Unlock()

	if nw.err != nil {
		return
	}

	line := []byte(f.Raw)
	if len(line) == 0 {
		b, err := json.Marshal(f)
		if err != nil {
			nw.err = fmt.Errorf("encode frame: %w", err)
			return
		}
		line = b
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := nw.w.Write(buf); err != nil {
		nw.err = fmt.Errorf("write frame: %w", err)
	}
}

// Err returns the first write error, if any
func (nw *NDJSONWriter) Err() error {
	nw.mu.Lock()
	defer nw.mu.Unlock()
	return nw.err
}

var (
	_ Observer = ObserverFunc(nil)
	_ Observer = (*FrameRecorder)(nil)
	_ Observer = (*NDJSONWriter)(nil)
)
