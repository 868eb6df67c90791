package chat

import (
	"errors"
	"time"
)

var ErrNoFragments = errors.New("no fragments to merge")

// MergeFragments assembles the ordered fragments of one message. The first
// fragment is deep-copied as the seed; later fragments append content and
// reasoning deltas in arrival order and feed their tool call chunks through
// MergeToolCallChunks. The seed's own chunks are merged too. An
// AIMessageChunk result is reported as an ai message.
//
// The result depends only on the order of frags, never on prior calls.
func MergeFragments(frags []Message) (Message, error) {
	if len(frags) == 0 {
		return Message{}, ErrNoFragments
	}

	acc := frags[0].Clone()
	acc.Content = acc.Text()
	// display content is text only; an image-only human message merges to ""
	acc.ContentParts = nil

	streamedCalls := false
	for _, f := range frags {
		if len(f.ToolCallChunks) > 0 {
			streamedCalls = true
			break
		}
	}
	if streamedCalls {
		// chunk-built calls replace the partial parsed calls echoed on the seed
		acc.ToolCalls = nil
		MergeToolCallChunks(&acc, acc.ToolCallChunks)
	}

	for _, f := range frags[1:] {
		acc.Content += f.Text()

		if f.ReasoningContent != "" {
			acc.ReasoningContent += f.ReasoningContent
		}

		if nested, ok := f.AdditionalKwargs["reasoning_content"].(string); ok && nested != "" {
			if acc.AdditionalKwargs == nil {
				acc.AdditionalKwargs = make(map[string]any)
			}
			prev, _ := acc.AdditionalKwargs["reasoning_content"].(string)
			acc.AdditionalKwargs["reasoning_content"] = prev + nested
		}

		MergeToolCallChunks(&acc, f.ToolCallChunks)
	}

	acc.ToolCallChunks = nil
	if acc.Type == TypeAIChunk {
		acc.Type = TypeAI
	}
	return acc, nil
}

type pendingMessage struct {
	fragments  []Message
	startTime  time.Time
	lastUpdate time.Time
}

// MessageAccumulator buffers raw fragments per message id until they are
// merged. Ids are kept in first-seen order. It is not safe for concurrent use;
// callers hold their own lock.
type MessageAccumulator struct {
	order   []MessageID
	pending map[MessageID]*pendingMessage
	now     func() time.Time
}

// NewMessageAccumulator creates a new message accumulator
func NewMessageAccumulator() *MessageAccumulator {
	return &MessageAccumulator{
		pending: make(map[MessageID]*pendingMessage),
		now:     time.Now,
	}
}

// Start replaces whatever is buffered under id with a single fragment
func (ma *MessageAccumulator) Start(id MessageID, frag Message) {
	p := ma.getOrCreate(id)
	p.fragments = []Message{frag}
	p.lastUpdate = ma.now()
}

// AddChunk appends a fragment under id, creating the entry if needed
func (ma *MessageAccumulator) AddChunk(id MessageID, frag Message) {
	p := ma.getOrCreate(id)
	p.fragments = append(p.fragments, frag)
	p.lastUpdate = ma.now()
}

// Fragments returns a copy of the raw fragments buffered under id
func (ma *MessageAccumulator) Fragments(id MessageID) []Message {
	p, ok := ma.pending[id]
	if !ok {
		return nil
	}
	return append([]Message(nil), p.fragments...)
}

// GetMessage merges the fragments buffered under id
func (ma *MessageAccumulator) GetMessage(id MessageID) (Message, bool) {
	p, ok := ma.pending[id]
	if !ok {
		return Message{}, false
	}
	msg, err := MergeFragments(p.fragments)
	if err != nil {
		return Message{}, false
	}
	return msg, true
}

// Messages merges every buffered message in first-seen order
func (ma *MessageAccumulator) Messages() []Message {
	out := make([]Message, 0, len(ma.order))
	for _, id := range ma.order {
		if msg, ok := ma.GetMessage(id); ok {
			out = append(out, msg)
		}
	}
	return out
}

// IDs returns the buffered ids in first-seen order
func (ma *MessageAccumulator) IDs() []MessageID {
	return append([]MessageID(nil), ma.order...)
}

func (ma *MessageAccumulator) Len() int {
	return len(ma.order)
}

// Remove drops one message from the buffer
func (ma *MessageAccumulator) Remove(id MessageID) {
	if _, ok := ma.pending[id]; !ok {
		return
	}
	delete(ma.pending, id)
	for i, existing := range ma.order {
		if existing == id {
			ma.order = append(ma.order[:i], ma.order[i+1:]...)
			break
		}
	}
}

// Reset clears everything
func (ma *MessageAccumulator) Reset() {
	ma.order = nil
	ma.pending = make(map[MessageID]*pendingMessage)
}

// GetStreamStats returns statistics about one buffered message
func (ma *MessageAccumulator) GetStreamStats(id MessageID) (StreamStats, bool) {
	p, ok := ma.pending[id]
	if !ok {
		return StreamStats{}, false
	}

	contentLength := 0
	toolChunks := 0
	for _, f := range p.fragments {
		contentLength += len(f.Text())
		toolChunks += len(f.ToolCallChunks)
	}

	return StreamStats{
		MessageID:      id,
		ChunkCount:     len(p.fragments),
		ContentLength:  contentLength,
		ToolCallChunks: toolChunks,
		StartTime:      p.startTime,
		LastUpdate:     p.lastUpdate,
		Duration:       p.lastUpdate.Sub(p.startTime),
	}, true
}

// StreamStats provides statistics about a streaming message
type StreamStats struct {
	MessageID      MessageID
	ChunkCount     int
	ContentLength  int
	ToolCallChunks int
	StartTime      time.Time
	LastUpdate     time.Time
	Duration       time.Duration
}

func (ma *MessageAccumulator) getOrCreate(id MessageID) *pendingMessage {
	if p, ok := ma.pending[id]; ok {
		return p
	}
	now := ma.now()
	p := &pendingMessage{startTime: now, lastUpdate: now}
	ma.pending[id] = p
	ma.order = append(ma.order, id)
	return p
}
