package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/killallgit/agentstream/pkg/config"
	"github.com/killallgit/agentstream/pkg/replay"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.sse>",
	Short: "Serve a recorded stream as a local backend",
	Long: `Serve a recorded event stream on the stream endpoint so the client can be
developed and tested without a live backend. Every stream request receives
the full recording.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().String("addr", "", "listen address (default from replay.addr)")
	replayCmd.Flags().Duration("line-delay", 0, "delay between lines (default from replay.line_delay)")
	replayCmd.Flags().Int("chunk-size", 0, "split writes into chunks of this many bytes")
	replayCmd.Flags().String("history", "", "JSON file served on the history endpoint")
	replayCmd.Flags().String("require-token", "", "reject requests without this bearer token")
}

func runReplay(cmd *cobra.Command, args []string) error {
	opts, addr, err := replayOptions(cmd, config.Get())
	if err != nil {
		return err
	}

	lines, err := replay.LoadLines(args[0])
	if err != nil {
		return err
	}
	opts.Lines = lines

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Replaying %d lines from %s on %s\n", len(lines), args[0], addr)
	return replay.NewServer(opts).ListenAndServe(ctx, addr)
}

// replayOptions merges command flags over the replay settings
func replayOptions(cmd *cobra.Command, cfg *config.Config) (replay.Options, string, error) {
	opts := replay.Options{
		LineDelay:    cfg.Replay.LineDelay,
		ChunkSize:    cfg.Replay.ChunkSize,
		RequireToken: cfg.Replay.RequireToken,
		StreamPath:   cfg.Backend.StreamPath,
		HistoryPath:  cfg.Backend.HistoryPath,
	}
	addr := cfg.Replay.Addr
	historyFile := cfg.Replay.HistoryFile

	flags := cmd.Flags()
	if flags.Changed("addr") {
		addr, _ = flags.GetString("addr")
	}
	if flags.Changed("line-delay") {
		opts.LineDelay, _ = flags.GetDuration("line-delay")
	}
	if flags.Changed("chunk-size") {
		opts.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("history") {
		historyFile, _ = flags.GetString("history")
	}
	if flags.Changed("require-token") {
		opts.RequireToken, _ = flags.GetString("require-token")
	}

	if historyFile != "" {
		data, err := os.ReadFile(historyFile)
		if err != nil {
			return opts, "", fmt.Errorf("failed to read history file: %w", err)
		}
		opts.History = data
	}
	return opts, addr, nil
}
