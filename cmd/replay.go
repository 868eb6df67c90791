package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/config"
	"github.com/xerrors/Yuxi-Know/pkg/headless"
)

var replayLive bool

var replayCmd = &cobra.Command{
	Use:   "replay <file.ndjson>",
	Short: "Decode a recorded stream offline and render it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open stream: %w", err)
		}
		defer f.Close()

		cfg := config.Get()
		opts := headlessOptions(cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		opts.Live = replayLive
		return headless.Replay(cmd.Context(), f, opts)
	},
}

func init() {
	replayCmd.Flags().BoolVar(&replayLive, "live", false, "print fragments as they decode instead of the assembled messages")
	rootCmd.AddCommand(replayCmd)
}
