package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/killallgit/agentstream/pkg/agent"
	"github.com/killallgit/agentstream/pkg/config"
	"github.com/killallgit/agentstream/pkg/logger"
	"github.com/killallgit/agentstream/pkg/render"
	"github.com/killallgit/agentstream/pkg/session"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Send one message and stream the reply",
	Long: `Send a message to the backend and print the reply while it streams.
Artifacts produced by tools are printed once they are complete. With
--object-kind and --object-id the conversation is attached to that object.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringP("message", "m", "", "message to send (empty continues the thread)")
	chatCmd.Flags().String("object-kind", "", "kind of the object the conversation is about")
	chatCmd.Flags().String("object-id", "", "id of the object the conversation is about")
	chatCmd.Flags().String("thread", "", "continue an existing thread instead of starting a new one")
	chatCmd.Flags().Bool("transcript", false, "print the full transcript when the stream ends")
	chatCmd.Flags().Bool("plain", false, "disable syntax highlighting")
}

func runChat(cmd *cobra.Command, args []string) error {
	message, _ := cmd.Flags().GetString("message")
	objectKind, _ := cmd.Flags().GetString("object-kind")
	objectID, _ := cmd.Flags().GetString("object-id")
	threadID, _ := cmd.Flags().GetString("thread")
	showTranscript, _ := cmd.Flags().GetBool("transcript")
	plain, _ := cmd.Flags().GetBool("plain")

	log := logger.WithComponent("chat_cmd")
	r := render.NewRenderer(cmd.OutOrStdout(), 100)
	if plain {
		r.WithPlainCode()
	}

	tasks := &taskProgress{}
	store := session.NewStore()
	opts := agent.OptionsFromConfig(config.Get())
	opts.Sessions = store
	opts.TaskTracker = tasks

	// a thread given on the command line is used as is, without a session
	var sessionID string
	if threadID != "" {
		opts.ThreadID = threadID
	} else {
		sessionID = store.FindOrCreateSession(session.Context{ObjectKind: objectKind, ObjectID: objectID})
	}

	o := agent.New(opts)
	defer o.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log.Info("Sending message", "session_id", sessionID, "object_kind", objectKind, "object_id", objectID)
	updates, err := o.Send(ctx, message, sessionID)
	if err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}

	streamErr := printUpdates(cmd.OutOrStdout(), r, updates)

	if summary, current, ok := tasks.snapshot(); ok {
		r.Tasks(summary, current)
	}
	if showTranscript {
		messages := o.Messages()
		if sessionID != "" {
			if sess, ok := store.Get(sessionID); ok {
				messages = sess.Messages
			}
		}
		r.Transcript(messages)
	}
	if streamErr != nil {
		return streamErr
	}
	if ctx.Err() != nil {
		log.Info("Stream interrupted")
	}
	return nil
}

// printUpdates renders updates until the stream ends and returns its
// transport error, if any
func printUpdates(out io.Writer, r *render.Renderer, updates <-chan agent.Update) error {
	printed := make(map[string]int)
	var streamErr error
	for u := range updates {
		switch u.Type {
		case agent.DraftUpdated:
			content := u.Message.Content
			if n := printed[u.Node]; n < len(content) {
				r.Token(content[n:])
				printed[u.Node] = len(content)
			}
		case agent.ToolActivity:
			if printed[u.Node] > 0 {
				fmt.Fprintln(out)
			}
			r.Activity(u.Activity)
		case agent.MessageFinalized:
			if printed[u.Node] == 0 {
				r.Token(strings.TrimSpace(u.Message.Content))
			}
			fmt.Fprintln(out)
			delete(printed, u.Node)
		case agent.ArtifactUpdated:
			fmt.Fprintln(out)
			r.Artifact(u.Artifact)
		case agent.StreamError:
			r.Error(u.Error)
			streamErr = u.Error
		}
	}
	return streamErr
}

// taskProgress keeps the latest task summary reported by the backend
type taskProgress struct {
	mu      sync.Mutex
	summary []string
	current int
}

func (t *taskProgress) UpdateTasks(summary []string, currentIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary = append([]string(nil), summary...)
	t.current = currentIndex
}

func (t *taskProgress) snapshot() ([]string, int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary, t.current, len(t.summary) > 0
}
