package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/killallgit/agentstream/pkg/chat"
	"github.com/killallgit/agentstream/pkg/logger"
	"github.com/killallgit/agentstream/pkg/process"
)

const minWidth = 30

// Renderer writes transcripts, artifacts and stream progress to a terminal
type Renderer struct {
	out       io.Writer
	styles    *Styles
	formatter chroma.Formatter
	width     int
	log       *logger.Logger
}

// NewRenderer creates a renderer that wraps output at width columns
func NewRenderer(out io.Writer, width int) *Renderer {
	formatter := formatters.Get("terminal16m")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	if width < minWidth {
		width = 80
	}
	return &Renderer{
		out:       out,
		styles:    DefaultStyles(),
		formatter: formatter,
		width:     width,
		log:       logger.WithComponent("render"),
	}
}

// WithPlainCode disables syntax highlighting, e.g. when output is not a terminal
func (r *Renderer) WithPlainCode() *Renderer {
	r.formatter = nil
	return r
}

// Message writes one transcript entry with its role label
func (r *Renderer) Message(msg chat.Message) {
	style := r.styles.AIMessage
	label := "assistant"
	switch {
	case msg.IsHuman():
		style = r.styles.HumanMessage
		label = "you"
	case msg.IsDraft():
		style = r.styles.DraftMessage
		label = "assistant (" + msg.Node() + ")"
	case msg.Role == chat.RoleSystem:
		style = r.styles.SystemMessage
		label = "system"
	}

	fmt.Fprintln(r.out, r.styles.RoleLabel.Render(label))
	if msg.Content != "" {
		fmt.Fprintln(r.out, style.Width(r.width).Render(msg.Content))
	}
	fmt.Fprintln(r.out)
}

// Transcript writes every message in order
func (r *Renderer) Transcript(msgs []chat.Message) {
	for _, m := range msgs {
		r.Message(m)
	}
}

// Artifact writes a boxed artifact. JSON payloads are highlighted.
func (r *Renderer) Artifact(a chat.Artifact) {
	title := a.Title
	if title == "" {
		title = a.ID
	}
	status := successStyle.Render(a.Status)
	if a.Status == chat.ArtifactStreaming {
		status = r.styles.Muted.Render(a.Status)
	}
	fmt.Fprintf(r.out, "%s %s %s\n", r.styles.ArtifactTitle.Render(title), r.styles.Muted.Render("["+a.Type+"]"), status)

	body := a.Content
	if a.Type == chat.ArtifactJSON || looksJSON(body) {
		body = r.FormatCode(body, "json")
	}
	fmt.Fprintln(r.out, r.styles.ArtifactBox.Width(r.width-4).Render(body))
	fmt.Fprintln(r.out)
}

// Artifacts writes every artifact in order
func (r *Renderer) Artifacts(arts []chat.Artifact) {
	for _, a := range arts {
		r.Artifact(a)
	}
}

// Activity writes a one-line tool activity label
func (r *Renderer) Activity(label string) {
	fmt.Fprintln(r.out, r.styles.Activity.Render(process.StateToolUse.GetIcon()+" "+label))
}

// Tasks writes the task summary, marking the current task
func (r *Renderer) Tasks(summary []string, current int) {
	for i, task := range summary {
		marker := "  "
		style := r.styles.Muted
		switch {
		case i < current:
			marker = "✓ "
			style = successStyle
		case i == current:
			marker = "▸ "
			style = r.styles.Activity
		}
		fmt.Fprintln(r.out, style.Render(fmt.Sprintf("%s%d/%d %s", marker, i+1, len(summary), task)))
	}
}

// Error writes a user-visible error
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, r.styles.ErrorMessage.Render("error: "+err.Error()))
}

// Token writes streamed text without a trailing newline
func (r *Renderer) Token(text string) {
	fmt.Fprint(r.out, r.styles.DraftMessage.Render(text))
}

// FormatCode highlights content for language. Highlighting failures fall
// back to the plain text.
func (r *Renderer) FormatCode(content, language string) string {
	if content == "" || r.formatter == nil {
		return content
	}

	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		r.log.Debug("Failed to tokenize code, using plain text", "error", err)
		return content
	}
	var buf strings.Builder
	if err := r.formatter.Format(&buf, styles.Get("monokai"), iterator); err != nil {
		r.log.Debug("Failed to format code, using plain text", "error", err)
		return content
	}
	return buf.String()
}

func looksJSON(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return false
	}
	return json.Valid([]byte(s))
}
