package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/config"
	"github.com/xerrors/Yuxi-Know/pkg/render"
)

var (
	exportThread string
	exportFormat string
	exportOutput string
	exportTitle  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a thread as Markdown or HTML",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportThread == "" {
			return errors.New("--thread is required")
		}
		cfg := config.Get()

		msgs, err := newClient(cfg).History(cmd.Context(), cfg.Agent.ID, exportThread)
		if err != nil {
			return err
		}

		opts := render.ExportOptions{
			Title:      exportTitle,
			AgentName:  cfg.Agent.ID,
			ExportedAt: time.Now(),
		}
		convs := chat.BuildConversations(msgs)

		var doc string
		switch exportFormat {
		case "md", "markdown":
			doc, err = render.ExportMarkdown(opts, convs, nil)
		case "html":
			doc, err = render.ExportHTML(opts, convs, nil)
		case "json":
			doc, err = exportLLMMessages(convs)
		default:
			return fmt.Errorf("--format must be md, html or json, got %q", exportFormat)
		}
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}

		if exportOutput == "" || exportOutput == "-" {
			_, err = fmt.Fprint(cmd.OutOrStdout(), doc)
			return err
		}
		if err := os.WriteFile(exportOutput, []byte(doc), 0644); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported to %s\n", exportOutput)
		return nil
	},
}

// exportLLMMessages writes the turns as langchaingo message contents, ready
// to seed another model's context
func exportLLMMessages(convs []chat.Conversation) (string, error) {
	if len(convs) == 0 {
		return "", render.ErrNothingToExport
	}
	data, err := json.MarshalIndent(chat.ToMessageContent(convs), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}

func init() {
	exportCmd.Flags().StringVarP(&exportThread, "thread", "t", "", "thread id")
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "output format: md, html or json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportTitle, "title", "", "document title")
	rootCmd.AddCommand(exportCmd)
}
