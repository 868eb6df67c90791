package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/config"
)

var (
	threadsCreate string
	threadsDelete string
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "List, create or delete the agent's threads",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		c := newClient(cfg)
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		switch {
		case threadsDelete != "":
			if err := c.DeleteThread(ctx, threadsDelete); err != nil {
				return err
			}
			fmt.Fprintf(out, "deleted %s\n", threadsDelete)
			return nil

		case threadsCreate != "":
			th, err := c.CreateThread(ctx, cfg.Agent.ID, threadsCreate)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, th.ID)
			return nil
		}

		threads, err := c.ListThreads(ctx, cfg.Agent.ID)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tUPDATED")
		for _, th := range threads {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", th.ID, th.Title, th.UpdatedAt)
		}
		return tw.Flush()
	},
}

func init() {
	threadsCmd.Flags().StringVar(&threadsCreate, "create", "", "create a thread with this title")
	threadsCmd.Flags().StringVar(&threadsDelete, "delete", "", "delete the thread with this id")
	threadsCmd.MarkFlagsMutuallyExclusive("create", "delete")
	rootCmd.AddCommand(threadsCmd)
}
