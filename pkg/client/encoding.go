package client

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is advertised on stream requests. Setting it by hand turns
// off the transport's own gzip handling, so both are decoded here.
const acceptEncoding = "br, gzip"

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// decodeBody wraps body with a decoder for each Content-Encoding, applied in
// reverse order of listing. Closing the result closes body.
func decodeBody(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	encodings := parseContentEncoding(contentEncoding)
	if len(encodings) == 0 {
		return body, nil
	}

	out := &decodedBody{Reader: body, closers: []io.Closer{body}}
	for i := len(encodings) - 1; i >= 0; i-- {
		switch encodings[i] {
		case "br":
			out.Reader = brotli.NewReader(out.Reader)
		case "gzip", "x-gzip":
			gr, err := gzip.NewReader(out.Reader)
			if err != nil {
				return nil, fmt.Errorf("open gzip body: %w", err)
			}
			out.Reader = gr
			out.closers = append(out.closers, gr)
		default:
			return nil, fmt.Errorf("unsupported content encoding %q", encodings[i])
		}
	}
	return out, nil
}

func parseContentEncoding(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && p != "identity" {
			out = append(out, p)
		}
	}
	return out
}
