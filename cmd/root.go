package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xerrors/Yuxi-Know/pkg/config"
	"github.com/xerrors/Yuxi-Know/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "yuxi",
	Short: "Terminal client for Yuxi-Know agents",
	Long: `Chat with Yuxi-Know agents from the terminal. Streams answers as they
arrive, handles approval interrupts, and browses, exports and rates
conversation history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// PersistentPostRun is skipped when a command fails
		logger.Error("%s failed: %v", rootCmd.Name(), err)
		_ = logger.Close()
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is .yuxi/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-file", "./.yuxi/client.log", "log file, empty to disable")
	viper.BindPFlag("logging.log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.PersistentFlags().String("base-url", "http://localhost:5050", "agent backend base URL")
	viper.BindPFlag("server.base_url", rootCmd.PersistentFlags().Lookup("base-url"))

	rootCmd.PersistentFlags().String("token", "", "bearer token for the backend")
	viper.BindPFlag("server.token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.PersistentFlags().StringP("agent", "a", "chatbot", "agent id")
	viper.BindPFlag("agent.id", rootCmd.PersistentFlags().Lookup("agent"))

	rootCmd.PersistentFlags().String("transport", config.TransportHTTP, "chat transport: http or websocket")
	viper.BindPFlag("stream.transport", rootCmd.PersistentFlags().Lookup("transport"))

	rootCmd.PersistentFlags().Bool("no-color", false, "disable syntax highlighting")
	viper.BindPFlag("render.no_color", rootCmd.PersistentFlags().Lookup("no-color"))
}

func initConfig() error {
	if _, err := config.Load(cfgFile); err != nil {
		return err
	}
	if err := logger.Init(); err != nil {
		return err
	}
	used := config.GetConfigFileUsed()
	if used == "" {
		used = "defaults"
	}
	logger.Debug("config loaded from %s, server %s", used, config.Get().Server.BaseURL)
	return nil
}
