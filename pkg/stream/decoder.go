package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/xerrors/Yuxi-Know/pkg/logger"
)

// maxLoggedLine caps how much of a malformed line reaches the log
const maxLoggedLine = 200

// Decoder reads status frames from an NDJSON stream. A line may span any
// number of reads; the final line is accepted without a trailing newline.
// Blank lines are ignored and malformed lines are logged and skipped; only
// transport errors are returned.
type Decoder struct {
	r       *bufio.Reader
	line    int
	skipped int
	done    bool
	err     error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next frame, or io.EOF once the stream is exhausted
func (d *Decoder) Next() (Frame, error) {
	for {
		if d.done {
			if d.err != nil {
				return Frame{}, d.err
			}
			return Frame{}, io.EOF
		}

		line, err := d.r.ReadBytes('\n')
		if err != nil {
			d.done = true
			if !errors.Is(err, io.EOF) {
				d.err = err
				return Frame{}, err
			}
			if f, ok := d.parse(line); ok {
				return f, nil
			}
			return Frame{}, io.EOF
		}

		if f, ok := d.parse(line); ok {
			return f, nil
		}
	}
}

// Frames yields frames until the stream ends. A transport error is yielded
// once as the final element.
func (d *Decoder) Frames() iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		for {
			f, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(f, err) || err != nil {
				return
			}
		}
	}
}

// Skipped returns how many malformed lines were dropped so far
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) parse(line []byte) (Frame, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Frame{}, false
	}
	d.line++

	var f Frame
	err := errNotObject
	if trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &f)
	}
	if err != nil {
		d.skipped++
		logger.WithComponent("stream").Warn("skipping malformed frame",
			"line", d.line,
			"error", err,
			"content", truncate(trimmed, maxLoggedLine))
		return Frame{}, false
	}

	f.Raw = append(json.RawMessage(nil), trimmed...)
	return f, true
}

var errNotObject = errors.New("frame is not a JSON object")

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Decode reads frames from r and passes each to fn until fn returns true,
// the stream ends, or ctx is done. Cancelling ctx closes r when it is an
// io.Closer so a blocked read returns. The context error is returned on
// cancellation; a clean end or a stop from fn returns nil.
func Decode(ctx context.Context, r io.Reader, fn func(Frame) (stop bool)) error {
	if c, ok := r.(io.Closer); ok {
		stopClose := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer stopClose()
	}

	d := NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := d.Next()
		if errors.Is(err, io.EOF) {
			// a body closed by cancellation may surface as a plain EOF
			return ctx.Err()
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read stream: %w", err)
		}

		if fn(f) {
			return nil
		}
	}
}
