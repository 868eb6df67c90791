package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/config"
	"github.com/xerrors/Yuxi-Know/pkg/headless"
)

var (
	resumeThread string
	resumeReject bool
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Answer a pending approval and stream the continuation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if resumeThread == "" {
			return errors.New("--thread is required")
		}
		cfg := config.Get()
		ctx := cmd.Context()

		body, err := newClient(cfg).Resume(ctx, cfg.Agent.ID, resumeThread, !resumeReject)
		if err != nil {
			return err
		}
		defer body.Close()

		opts := headlessOptions(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		opts.ThreadID = resumeThread
		opts.Live = true
		return headless.Replay(ctx, body, opts)
	},
}

func init() {
	resumeCmd.Flags().StringVarP(&resumeThread, "thread", "t", "", "thread waiting for approval")
	resumeCmd.Flags().BoolVar(&resumeReject, "reject", false, "reject the operation instead of approving it")
	rootCmd.AddCommand(resumeCmd)
}
