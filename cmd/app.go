package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/xerrors/Yuxi-Know/pkg/client"
	"github.com/xerrors/Yuxi-Know/pkg/config"
	"github.com/xerrors/Yuxi-Know/pkg/headless"
	"github.com/xerrors/Yuxi-Know/pkg/render"
	"github.com/xerrors/Yuxi-Know/pkg/session"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
)

// maxTitleLength caps thread titles derived from the first prompt
const maxTitleLength = 30

func newClient(cfg *config.Config) *client.Client {
	return client.NewClient(cfg.Server.BaseURL,
		client.WithToken(cfg.Server.Token),
		client.WithTimeout(cfg.Server.Timeout))
}

// newAPI picks the chat transport. Resume and history always use HTTP.
func newAPI(cfg *config.Config, c *client.Client) session.API {
	if cfg.Stream.Transport == config.TransportWebSocket {
		return c.OverWebSocket(cfg.WebSocketURL())
	}
	return c
}

func capabilities(cfg *config.Config) stream.Capabilities {
	return stream.Capabilities{Todo: cfg.Agent.SupportsTodo, Files: cfg.Agent.SupportsFiles}
}

// newRenderer colours output only when w is a terminal
func newRenderer(cfg *config.Config, w io.Writer) *render.Renderer {
	return render.NewRenderer(render.Options{
		Style:         cfg.Render.Style,
		ShowReasoning: cfg.Render.ShowReasoning,
		Color:         !cfg.Render.NoColor && isTerminal(w),
		AgentName:     cfg.Agent.ID,
		Width:         cfg.Render.Width,
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func headlessOptions(cfg *config.Config, in io.Reader, out, errOut io.Writer) headless.Options {
	return headless.Options{
		AgentID:       cfg.Agent.ID,
		ShowReasoning: cfg.Render.ShowReasoning,
		IdleTimeout:   cfg.Stream.IdleTimeout,
		Capabilities:  capabilities(cfg),
		Renderer:      newRenderer(cfg, out),
		In:            in,
		Out:           out,
		ErrOut:        errOut,
	}
}

// threadTitle shortens a prompt into a thread title
func threadTitle(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength]) + "..."
	}
	return title
}

// openRecording creates the NDJSON file a stream is copied into
func openRecording(path string) (*os.File, *stream.NDJSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open recording: %w", err)
	}
	return f, stream.NewNDJSONWriter(f), nil
}
