package cmd

import (
	"fmt"
	"os"

	"github.com/killallgit/agentstream/pkg/config"
	"github.com/killallgit/agentstream/pkg/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agentstream",
	Short: "Streaming client for a conversational agent backend",
	Long: `agentstream talks to a conversational backend over a streamed HTTP response,
assembles the transcript and artifacts while the stream is open, and replays
recorded streams for local development.`,
	SilenceUsage:      true,
	PersistentPreRunE: initialize,
}

// initialize loads settings and opens the log before any subcommand runs
func initialize(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := logger.InitWithConfig(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if used := config.GetConfigFileUsed(); used != "" {
		logger.Debug("Using config file: %s", used)
	}
	return nil
}

func Execute() {
	defer logger.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.agentstream/settings.yaml)")

	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level")
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("backend-url", "", "base URL of the conversational backend")
	viper.BindPFlag("backend.url", rootCmd.PersistentFlags().Lookup("backend-url"))

	rootCmd.PersistentFlags().String("token", "", "bearer token sent with every request")
	viper.BindPFlag("auth.token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.PersistentFlags().String("agent", "", "agent id sent with stream requests")
	viper.BindPFlag("agent.id", rootCmd.PersistentFlags().Lookup("agent"))

	rootCmd.AddCommand(chatCmd, historyCmd, replayCmd)
}
