package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrNothingToExport is returned when there are no messages to export
var ErrNothingToExport = errors.New("no messages to export")

type ExportOptions struct {
	Title            string
	AgentName        string
	AgentDescription string
	// ExportedAt defaults to the current time
	ExportedAt time.Time
}

func (o ExportOptions) withDefaults() ExportOptions {
	if o.Title == "" {
		o.Title = "New conversation"
	}
	if o.AgentName == "" {
		o.AgentName = "Assistant"
	}
	if o.ExportedAt.IsZero() {
		o.ExportedAt = time.Now()
	}
	return o
}

// exportMessages flattens finished turns followed by in-flight messages
func exportMessages(convs []chat.Conversation, ongoing []chat.Message) []chat.Message {
	var out []chat.Message
	for _, c := range convs {
		out = append(out, c.Messages...)
	}
	return append(out, ongoing...)
}

// ExportMarkdown renders the conversation as a Markdown document
func ExportMarkdown(opts ExportOptions, convs []chat.Conversation, ongoing []chat.Message) (string, error) {
	msgs := exportMessages(convs, ongoing)
	if len(msgs) == 0 {
		return "", ErrNothingToExport
	}
	opts = opts.withDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", opts.Title)
	fmt.Fprintf(&b, "**Agent:** %s  \n", opts.AgentName)
	if opts.AgentDescription != "" {
		fmt.Fprintf(&b, "**Description:** %s  \n", opts.AgentDescription)
	}
	fmt.Fprintf(&b, "**Exported:** %s\n", opts.ExportedAt.Format(time.DateTime))

	for _, msg := range msgs {
		b.WriteString("\n---\n\n")
		if msg.IsHuman() {
			b.WriteString("### 👤 User\n\n")
		} else {
			fmt.Fprintf(&b, "### 🤖 %s\n\n", opts.AgentName)
		}
		b.WriteString(messageMarkdown(msg))
	}
	return b.String(), nil
}

// messageMarkdown is the body of one message without its heading
func messageMarkdown(msg chat.Message) string {
	var b strings.Builder

	if !msg.IsHuman() {
		if reasoning := strings.TrimSpace(msg.Reasoning()); reasoning != "" {
			b.WriteString("> **Reasoning**\n>\n")
			for _, line := range strings.Split(reasoning, "\n") {
				b.WriteString("> " + line + "\n")
			}
			b.WriteString("\n")
		}
	}

	if text := strings.TrimSpace(msg.Text()); text != "" {
		b.WriteString(text + "\n\n")
	}

	for _, tc := range msg.ToolCalls {
		fmt.Fprintf(&b, "**🔧 %s**\n\n", toolName(tc))
		if args := prettyJSON(tc.Arguments()); args != "" {
			b.WriteString(fence("json", args))
		}
		if tc.HasResult() {
			b.WriteString("Result:\n\n")
			b.WriteString(fence("", strings.TrimSpace(tc.ToolCallResult.Text())))
		}
	}
	return b.String()
}

// fence wraps s in a code fence longer than any backtick run inside it
func fence(lang, s string) string {
	ticks := "```"
	for strings.Contains(s, ticks) {
		ticks += "`"
	}
	return ticks + lang + "\n" + s + "\n" + ticks + "\n\n"
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

type htmlMessage struct {
	User   bool
	Sender string
	Body   template.HTML
}

type htmlPage struct {
	Title       string
	AgentName   string
	Description string
	ExportedAt  string
	Messages    []htmlMessage
}

var pageTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} - Conversation export</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; max-width: 860px; margin: 0 auto; padding: 24px; color: #222; }
.header { border-bottom: 1px solid #ddd; margin-bottom: 24px; }
.export-info { color: #888; font-size: 13px; }
.message { border-radius: 8px; padding: 12px 16px; margin-bottom: 16px; }
.user-message { background: #f0f6ff; }
.ai-message { background: #fafafa; border: 1px solid #eee; }
.sender { font-weight: 600; margin-bottom: 8px; }
blockquote { color: #777; border-left: 3px solid #ddd; margin: 0 0 12px; padding-left: 12px; }
pre { background: #f4f4f4; padding: 8px; overflow-x: auto; }
</style>
</head>
<body>
<div class="header">
<h1>{{.Title}}</h1>
<div><strong>Agent:</strong> {{.AgentName}}</div>
{{- if .Description}}
<div>{{.Description}}</div>
{{- end}}
<div class="export-info">Exported: {{.ExportedAt}}</div>
</div>
{{- range .Messages}}
<div class="message {{if .User}}user-message{{else}}ai-message{{end}}">
<div class="sender">{{if .User}}👤{{else}}🤖{{end}} {{.Sender}}</div>
<div class="message-content">{{.Body}}</div>
</div>
{{- end}}
</body>
</html>
`))

// ExportHTML renders the conversation as a standalone HTML page. Message
// bodies go through the Markdown converter, which escapes raw HTML.
func ExportHTML(opts ExportOptions, convs []chat.Conversation, ongoing []chat.Message) (string, error) {
	msgs := exportMessages(convs, ongoing)
	if len(msgs) == 0 {
		return "", ErrNothingToExport
	}
	opts = opts.withDefaults()

	page := htmlPage{
		Title:       opts.Title,
		AgentName:   opts.AgentName,
		Description: opts.AgentDescription,
		ExportedAt:  opts.ExportedAt.Format(time.DateTime),
	}
	for _, msg := range msgs {
		var body bytes.Buffer
		if err := markdown.Convert([]byte(messageMarkdown(msg)), &body); err != nil {
			return "", fmt.Errorf("convert message: %w", err)
		}
		sender := opts.AgentName
		if msg.IsHuman() {
			sender = "User"
		}
		page.Messages = append(page.Messages, htmlMessage{
			User:   msg.IsHuman(),
			Sender: sender,
			Body:   template.HTML(body.String()),
		})
	}

	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, page); err != nil {
		return "", fmt.Errorf("render export: %w", err)
	}
	return out.String(), nil
}
