package headless

import (
	"fmt"
	"io"
	"sync"

	"github.com/xerrors/Yuxi-Know/pkg/logger"
	"github.com/xerrors/Yuxi-Know/pkg/render"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

// Output writes notices and rendered text for headless mode. It implements
// stream.Notifier.
type Output struct {
	mu       sync.Mutex
	out      io.Writer
	errOut   io.Writer
	renderer *render.Renderer
}

// NewOutput creates a new output handler
func NewOutput(out, errOut io.Writer, renderer *render.Renderer) *Output {
	return &Output{out: out, errOut: errOut, renderer: renderer}
}

// Error prints a failed operation to the error stream and logs it
func (o *Output) Error(err error, op string) {
	label := stream.ErrorContext(op)
	logger.WithComponent("headless").Error("operation failed", "operation", label, "error", err)

	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.errOut, o.renderer.RenderError(err, label))
}

func (o *Output) Info(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.errOut, o.renderer.RenderInfo(msg))
}

// Println writes a line to the main output
func (o *Output) Println(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintln(o.out, s)
}

var _ stream.Notifier = (*Output)(nil)
