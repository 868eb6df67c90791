// Package render draws conversations for the terminal and exports them as
// Markdown or HTML.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/logger"
)

// maxResultLines caps how much of a tool result is drawn
const maxResultLines = 12

type Options struct {
	// Style names the chroma style for tool arguments
	Style string
	// ShowReasoning draws reasoning above the answer
	ShowReasoning bool
	// Color enables ANSI highlighting of tool arguments
	Color     bool
	AgentName string
	// Width wraps answer and reasoning text; zero leaves lines as they are
	Width int
}

type Renderer struct {
	opts      Options
	styles    Styles
	formatter chroma.Formatter
	style     *chroma.Style
}

func NewRenderer(opts Options) *Renderer {
	if opts.AgentName == "" {
		opts.AgentName = "Assistant"
	}

	formatter := formatters.NoOp
	if opts.Color {
		if f := formatters.Get("terminal16m"); f != nil {
			formatter = f
		}
	}

	style := styles.Get(opts.Style)
	if style == nil {
		style = styles.Fallback
	}

	st := DefaultStyles()
	if opts.Width > 0 {
		st.Content = st.Content.Width(opts.Width)
		st.Reasoning = st.Reasoning.Width(opts.Width)
	}

	return &Renderer{
		opts:      opts,
		styles:    st,
		formatter: formatter,
		style:     style,
	}
}

// RenderConversation draws one turn: the question, then every answer
func (r *Renderer) RenderConversation(conv chat.Conversation) string {
	var b strings.Builder
	for i, msg := range conv.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(r.RenderMessage(msg))
	}
	if chat.IsOpen(conv) {
		b.WriteString("\n")
		b.WriteString(r.styles.Status.Render("… waiting for the agent"))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderConversations draws turns separated by a blank line
func (r *Renderer) RenderConversations(convs []chat.Conversation) string {
	parts := make([]string, 0, len(convs))
	for _, c := range convs {
		parts = append(parts, r.RenderConversation(c))
	}
	return strings.Join(parts, "\n")
}

func (r *Renderer) label(msg chat.Message) string {
	if msg.IsHuman() {
		return r.styles.UserLabel.Render("You")
	}
	return r.styles.AgentLabel.Render(r.opts.AgentName)
}

// RenderMessage draws a message with its reasoning and tool calls
func (r *Renderer) RenderMessage(msg chat.Message) string {
	var b strings.Builder
	b.WriteString(r.label(msg))
	b.WriteString("\n")

	if !msg.IsHuman() && r.opts.ShowReasoning {
		if reasoning := strings.TrimSpace(msg.Reasoning()); reasoning != "" {
			b.WriteString(r.styles.Reasoning.Render(reasoning))
			b.WriteString("\n")
		}
	}

	if text := strings.TrimSpace(msg.Text()); text != "" {
		b.WriteString(r.styles.Content.Render(text))
		b.WriteString("\n")
	}
	if msg.ErrorMessage != "" {
		b.WriteString(r.styles.Error.Render("error: " + msg.ErrorMessage))
		b.WriteString("\n")
	}

	for _, tc := range msg.ToolCalls {
		b.WriteString(r.RenderToolCall(tc))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderToolCall draws a boxed tool call with highlighted arguments and
// the result when one is attached
func (r *Renderer) RenderToolCall(tc chat.ToolCall) string {
	var b strings.Builder
	b.WriteString(r.styles.ToolName.Render("⚙ " + toolName(tc)))

	if args := prettyJSON(tc.Arguments()); args != "" {
		b.WriteString("\n")
		b.WriteString(r.highlight(args, "json"))
	}

	switch {
	case tc.HasResult():
		b.WriteString("\n")
		b.WriteString(r.styles.ToolResult.Render(clip(tc.ToolCallResult.Text(), maxResultLines)))
	case tc.ErrorMessage != "":
		b.WriteString("\n")
		b.WriteString(r.styles.ToolError.Render(tc.ErrorMessage))
	default:
		b.WriteString("\n")
		b.WriteString(r.styles.Status.Render("running…"))
	}

	return r.styles.ToolBox.Render(b.String())
}

func (r *Renderer) highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		logger.WithComponent("render").Debug("tokenise failed", "language", language, "error", err)
		return code
	}

	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, iterator); err != nil {
		logger.WithComponent("render").Debug("format failed", "language", language, "error", err)
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

// RenderError formats a notice for the terminal
func (r *Renderer) RenderError(err error, label string) string {
	if label == "" {
		return r.styles.Error.Render("✗ " + err.Error())
	}
	return r.styles.Error.Render(fmt.Sprintf("✗ %s failed: %v", label, err))
}

func (r *Renderer) RenderInfo(msg string) string {
	return r.styles.Info.Render("ℹ " + msg)
}

func toolName(tc chat.ToolCall) string {
	if name := tc.ToolName(); name != "" {
		return name
	}
	return "tool call"
}

// prettyJSON indents args when they parse as JSON and returns them as
// received otherwise
func prettyJSON(args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(args), "", "  "); err != nil {
		return args
	}
	return buf.String()
}

func clip(s string, maxLines int) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) <= maxLines {
		return s
	}
	return strings.Join(lines[:maxLines], "\n") + fmt.Sprintf("\n… %d more lines", len(lines)-maxLines)
}
