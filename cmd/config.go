package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xerrors/Yuxi-Know/pkg/config"
	"gopkg.in/yaml.v3"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or write client settings",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the effective settings to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ".yuxi/settings.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.Save(path, configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(config.Settings())
		if err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
