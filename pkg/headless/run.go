package headless

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/session"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

// RunHeadless executes a single prompt on a thread and returns the answer
// text. This is the main entry point for non-interactive execution.
func RunHeadless(ctx context.Context, api session.API, prompt string, opts Options) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if opts.ThreadID == "" {
		return "", fmt.Errorf("headless run: %w", session.ErrUnknownThread)
	}

	r := newRunner(api, opts)
	if err := r.run(ctx, prompt); err != nil {
		return "", fmt.Errorf("failed to execute prompt: %w", err)
	}
	return r.content(), nil
}

// Replay decodes a recorded stream offline and renders the messages it
// builds. Approval requests are reported and end the replay.
func Replay(ctx context.Context, rd io.Reader, opts Options) error {
	opts = opts.withDefaults()
	output := NewOutput(opts.Out, opts.ErrOut, opts.Renderer)

	observers := append([]stream.Observer(nil), opts.Observers...)
	var printer *streamPrinter
	if opts.Live {
		printer = newStreamPrinter(opts.Out, opts.ShowReasoning)
		observers = append(observers, printer)
	}

	threadID := opts.ThreadID
	if threadID == "" {
		threadID = "replay"
	}
	state := stream.NewThreadState(threadID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	state.BeginStream(cancel)

	d := &stream.Dispatcher{
		Notifier:     output,
		Capabilities: opts.Capabilities,
		Observers:    observers,
		Approver: stream.ApproverFunc(func(_ context.Context, threadID string, info stream.InterruptInfo) bool {
			question := info.Question
			if question == "" {
				question = "approval required"
			}
			output.Info(fmt.Sprintf("%s (%s)", question, info.Operation))
			return true
		}),
	}

	err := stream.Decode(ctx, rd, func(f stream.Frame) bool {
		return d.Dispatch(ctx, state, f)
	})
	if printer != nil {
		printer.finish()
	}
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	if !opts.Live {
		for _, msg := range chat.AttachToolResults(state.OngoingMessages()) {
			if msg.IsAI() {
				output.Println(opts.Renderer.RenderMessage(msg))
			}
		}
	}
	return nil
}
