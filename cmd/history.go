package cmd

import (
	"fmt"

	"github.com/killallgit/agentstream/pkg/agent"
	"github.com/killallgit/agentstream/pkg/auth"
	"github.com/killallgit/agentstream/pkg/chat"
	"github.com/killallgit/agentstream/pkg/config"
	"github.com/killallgit/agentstream/pkg/render"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [file.json]",
	Short: "Rebuild a transcript from persisted history",
	Long: `Rebuild the transcript and artifacts of a thread from its persisted history,
read either from a JSON file or from the backend with --thread.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("thread", "", "fetch the history of this thread from the backend")
	historyCmd.Flags().Bool("plain", false, "disable syntax highlighting")
}

func runHistory(cmd *cobra.Command, args []string) error {
	threadID, _ := cmd.Flags().GetString("thread")
	plain, _ := cmd.Flags().GetBool("plain")

	records, err := loadHistoryRecords(cmd, args, threadID)
	if err != nil {
		return err
	}

	asm := chat.NewAssembler(nil)
	messages, artifacts := asm.LoadHistory(records)

	r := render.NewRenderer(cmd.OutOrStdout(), 100)
	if plain {
		r.WithPlainCode()
	}
	r.Transcript(asm.Conversation.Messages())
	r.Artifacts(asm.Artifacts.Artifacts())
	fmt.Fprintf(cmd.OutOrStdout(), "%d records, %d messages, %d artifacts\n", len(records), messages, artifacts)
	return nil
}

func loadHistoryRecords(cmd *cobra.Command, args []string, threadID string) ([]chat.HistoryRecord, error) {
	switch {
	case len(args) == 1:
		return chat.ReadHistoryFile(args[0])
	case threadID != "":
		cfg := config.Get()
		token, err := auth.FromConfig(cfg.Auth).Token(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		return agent.NewClientFromConfig(cfg.Backend).FetchHistory(cmd.Context(), threadID, token)
	default:
		return nil, fmt.Errorf("either a history file or --thread is required")
	}
}
