package headless

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/logger"
	"github.com/xerrors/Yuxi-Know/pkg/render"
	"github.com/xerrors/Yuxi-Know/pkg/session"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
	"github.com/xerrors/Yuxi-Know/pkg/tokens"
)

// ApprovalPolicy decides how a paused operation is answered
type ApprovalPolicy string

const (
	ApprovalAsk     ApprovalPolicy = "ask"
	ApprovalApprove ApprovalPolicy = "approve"
	ApprovalReject  ApprovalPolicy = "reject"
)

var ErrEmptyPrompt = errors.New("prompt cannot be empty in headless mode")

// Options configure a headless run
type Options struct {
	AgentID       string
	ThreadID      string
	ShowReasoning bool
	// Live prints fragments as they arrive; otherwise the finished turn is
	// rendered once at the end
	Live         bool
	Approval     ApprovalPolicy
	IdleTimeout  time.Duration
	Capabilities stream.Capabilities
	Observers    []stream.Observer
	Renderer     *render.Renderer
	// Tokens, when set, prints a token summary after the turn
	Tokens *tokens.Counter

	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

func (o Options) withDefaults() Options {
	if o.Approval == "" {
		o.Approval = ApprovalAsk
	}
	if o.Renderer == nil {
		o.Renderer = render.NewRenderer(render.Options{ShowReasoning: o.ShowReasoning})
	}
	if o.In == nil {
		o.In = os.Stdin
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.ErrOut == nil {
		o.ErrOut = os.Stderr
	}
	return o
}

// runner runs one prompt against a thread
type runner struct {
	sess    *session.Session
	output  *Output
	printer *streamPrinter
	opts    Options
	in      *bufio.Reader
}

func newRunner(api session.API, opts Options) *runner {
	opts = opts.withDefaults()
	output := NewOutput(opts.Out, opts.ErrOut, opts.Renderer)

	r := &runner{
		output: output,
		opts:   opts,
		in:     bufio.NewReader(opts.In),
	}

	observers := append([]stream.Observer(nil), opts.Observers...)
	if opts.Live {
		r.printer = newStreamPrinter(opts.Out, opts.ShowReasoning)
		observers = append(observers, r.printer)
	}

	sessOpts := []session.Option{
		session.WithNotifier(output),
		session.WithCapabilities(opts.Capabilities),
		session.WithIdleTimeout(opts.IdleTimeout),
		session.WithObservers(observers...),
	}
	if opts.AgentID != "" {
		sessOpts = append(sessOpts, session.WithAgentID(opts.AgentID))
	}
	r.sess = session.New(api, sessOpts...)
	return r
}

// run sends prompt and answers approvals until the turn settles
func (r *runner) run(ctx context.Context, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyPrompt
	}
	log := logger.WithComponent("headless")
	log.Debug("sending prompt", "thread_id", r.opts.ThreadID, "length", len(prompt))

	err := r.sess.Send(ctx, r.opts.ThreadID, prompt)
	for err == nil {
		req, ok := r.sess.PendingApproval()
		if !ok {
			break
		}
		r.flush()
		r.printActivity(req.ThreadID)

		approved, decideErr := r.decide(req)
		if decideErr != nil {
			return decideErr
		}
		log.Info("answering approval", "thread_id", req.ThreadID, "approved", approved)
		err = r.sess.Resume(ctx, req.ThreadID, approved)
	}
	r.flush()
	if err != nil {
		return err
	}

	if !r.opts.Live {
		r.printLastTurn()
	}
	if r.opts.Tokens != nil {
		u := r.usage(prompt)
		fmt.Fprintf(r.opts.ErrOut, "[Tokens - Sent: %d, Received: %d, Total: %d]\n", u.Sent, u.Received, u.Total())
		log.Debug("turn complete", "tokens_sent", u.Sent, "tokens_received", u.Received)
	}
	return nil
}

// usage counts the settled turn, or the prompt and streamed text when no
// history came back
func (r *runner) usage(prompt string) tokens.Usage {
	convs := r.sess.Conversations(r.opts.ThreadID)
	if len(convs) > 0 {
		return r.opts.Tokens.CountConversation(convs[len(convs)-1])
	}
	return tokens.Usage{
		Sent:     r.opts.Tokens.CountTokens(prompt),
		Received: r.opts.Tokens.CountTokens(r.content()),
	}
}

func (r *runner) printActivity(threadID string) {
	st := r.sess.Activity(threadID)
	if name := st.GetDisplayName(); name != "" {
		fmt.Fprintf(r.opts.ErrOut, "%s %s\n", st.GetIcon(), name)
	}
}

func (r *runner) flush() {
	if r.printer != nil {
		r.printer.finish()
	}
}

func (r *runner) printLastTurn() {
	convs := r.sess.Conversations(r.opts.ThreadID)
	if len(convs) == 0 {
		return
	}
	last := convs[len(convs)-1]
	for _, msg := range last.Messages {
		if msg.IsAI() {
			r.output.Println(r.opts.Renderer.RenderMessage(msg))
		}
	}
}

// decide answers an approval request according to the policy
func (r *runner) decide(req session.ApprovalRequest) (bool, error) {
	switch r.opts.Approval {
	case ApprovalApprove:
		return true, nil
	case ApprovalReject:
		return false, nil
	}

	fmt.Fprintf(r.opts.ErrOut, "%s\n  %s\n[y/N] ", req.Question, req.Operation)
	answer, err := r.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read approval: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// content returns the answer text printed live, or the last turn's final
// answer when not running live
func (r *runner) content() string {
	if r.printer != nil {
		return r.printer.GetContent()
	}
	convs := r.sess.Conversations(r.opts.ThreadID)
	if len(convs) == 0 {
		return ""
	}
	msg, ok := chat.GetLastAIMessage(convs[len(convs)-1])
	if !ok {
		return ""
	}
	return msg.Text()
}
