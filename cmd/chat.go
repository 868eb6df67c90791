package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/config"
	"github.com/xerrors/Yuxi-Know/pkg/headless"
	"github.com/xerrors/Yuxi-Know/pkg/logger"
	"github.com/xerrors/Yuxi-Know/pkg/stream"
	"github.com/xerrors/Yuxi-Know/pkg/tokens"
)

var (
	chatPrompt   string
	chatThread   string
	chatApproval string
	chatRecord   string
	chatRendered bool
	chatTokens   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt]",
	Short: "Send one prompt to an agent and stream the answer",
	Long: `Send a prompt to an agent and print the answer as it streams. Without
--thread a new thread is created and its id printed to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := chatPrompt
		if prompt == "" {
			prompt = strings.Join(args, " ")
		}
		if strings.TrimSpace(prompt) == "" {
			return errors.New("a prompt is required")
		}

		policy := headless.ApprovalPolicy(chatApproval)
		switch policy {
		case headless.ApprovalAsk, headless.ApprovalApprove, headless.ApprovalReject:
		default:
			return fmt.Errorf("--approval must be ask, approve or reject, got %q", chatApproval)
		}

		cfg := config.Get()
		ctx := cmd.Context()
		c := newClient(cfg)

		threadID := chatThread
		if threadID == "" {
			th, err := c.CreateThread(ctx, cfg.Agent.ID, threadTitle(prompt))
			if err != nil {
				return err
			}
			threadID = th.ID
			fmt.Fprintf(cmd.ErrOrStderr(), "thread %s\n", threadID)
		}

		opts := headlessOptions(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		opts.ThreadID = threadID
		opts.Live = !chatRendered
		opts.Approval = policy

		if chatTokens {
			counter, err := tokens.NewCounter(tokens.DefaultEncoding)
			if err != nil {
				logger.WithComponent("cmd").Warn("token encoding unavailable, estimating", "error", err)
				counter = tokens.NewEstimator()
			}
			opts.Tokens = counter
		}

		if chatRecord != "" {
			f, rec, err := openRecording(chatRecord)
			if err != nil {
				return err
			}
			defer f.Close()
			opts.Observers = []stream.Observer{rec}
			defer func() {
				if err := rec.Err(); err != nil {
					logger.WithComponent("cmd").Warn("recording incomplete", "path", chatRecord, "error", err)
				}
			}()
		}

		_, err := headless.RunHeadless(ctx, newAPI(cfg, c), prompt, opts)
		return err
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatPrompt, "prompt", "p", "", "prompt to send (default: the arguments)")
	chatCmd.Flags().StringVarP(&chatThread, "thread", "t", "", "thread id (default: create a new thread)")
	chatCmd.Flags().StringVar(&chatApproval, "approval", string(headless.ApprovalAsk), "answer approval requests: ask, approve or reject")
	chatCmd.Flags().StringVar(&chatRecord, "record", "", "copy the response stream to an NDJSON file")
	chatCmd.Flags().BoolVar(&chatTokens, "tokens", false, "print a token summary after the turn")
	chatCmd.Flags().BoolVar(&chatRendered, "rendered", false, "render the finished turn instead of streaming it")
	rootCmd.AddCommand(chatCmd)
}
