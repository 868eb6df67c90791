package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/chat"
	"github.com/xerrors/Yuxi-Know/pkg/config"
)

var (
	historyThread string
	historyJSON   bool
	stateThread   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show a thread's conversation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyThread == "" {
			return errors.New("--thread is required")
		}
		cfg := config.Get()

		msgs, err := newClient(cfg).History(cmd.Context(), cfg.Agent.ID, historyThread)
		if err != nil {
			return err
		}
		convs := chat.BuildConversations(msgs)

		out := cmd.OutOrStdout()
		if historyJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(convs)
		}
		if len(convs) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no messages")
			return nil
		}
		fmt.Fprintln(out, newRenderer(cfg, out).RenderConversations(convs))
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print a thread's agent state (todos and files) as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if stateThread == "" {
			return errors.New("--thread is required")
		}
		cfg := config.Get()

		as, err := newClient(cfg).AgentState(cmd.Context(), cfg.Agent.ID, stateThread)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(as)
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyThread, "thread", "t", "", "thread id")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print the conversations as JSON")
	rootCmd.AddCommand(historyCmd)

	stateCmd.Flags().StringVarP(&stateThread, "thread", "t", "", "thread id")
	rootCmd.AddCommand(stateCmd)
}
