package headless

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

type printedKind int

const (
	printedNothing printedKind = iota
	printedReasoning
	printedContent
	printedTool
)

// streamPrinter prints loading fragments as they arrive and accumulates the
// answer text
type streamPrinter struct {
	mu            sync.Mutex
	w             io.Writer
	showReasoning bool
	content       strings.Builder
	announced     map[string]bool
	last          printedKind
}

func newStreamPrinter(w io.Writer, showReasoning bool) *streamPrinter {
	return &streamPrinter{
		w:             w,
		showReasoning: showReasoning,
		announced:     make(map[string]bool),
	}
}

// OnFrame prints the delta carried by a loading frame
func (p *streamPrinter) OnFrame(_ string, f stream.Frame) {
	if f.Status != stream.StatusLoading || f.Msg == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := *f.Msg
	if msg.IsTool() {
		p.switchTo(printedTool)
		fmt.Fprintf(p.w, "← tool result (%d bytes)\n", len(msg.Text()))
		return
	}
	if !msg.IsAI() {
		return
	}

	if r := msg.Reasoning(); r != "" && p.showReasoning {
		p.switchTo(printedReasoning)
		fmt.Fprint(p.w, r)
	}
	if text := msg.Text(); text != "" {
		p.switchTo(printedContent)
		fmt.Fprint(p.w, text)
		p.content.WriteString(text)
	}
	for _, tc := range msg.ToolCallChunks {
		p.announce(msg.ID, tc)
	}
}

func (p *streamPrinter) announce(id chat.MessageID, tc chat.ToolCallChunk) {
	if tc.Name == "" {
		return
	}
	key := tc.ID
	if key == "" {
		key = fmt.Sprintf("%s#%d", id, tc.Index)
	}
	if p.announced[key] {
		return
	}
	p.announced[key] = true
	p.switchTo(printedTool)
	fmt.Fprintf(p.w, "⚙ %s\n", tc.Name)
}

// switchTo starts a new line when the kind of printed text changes
func (p *streamPrinter) switchTo(kind printedKind) {
	if p.last != printedNothing && p.last != kind && p.last != printedTool {
		fmt.Fprintln(p.w)
	}
	p.last = kind
}

// finish terminates a partially printed line
func (p *streamPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == printedContent || p.last == printedReasoning {
		fmt.Fprintln(p.w)
	}
	p.last = printedNothing
}

// GetContent returns the accumulated answer text
func (p *streamPrinter) GetContent() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content.String()
}

var _ stream.Observer = (*streamPrinter)(nil)
