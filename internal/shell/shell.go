// Package shell provides the interactive chat REPL attached to a workbook.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/chat"
	"github.com/klytics/xla/internal/executor"
	"github.com/klytics/xla/internal/progress"
	"github.com/klytics/xla/internal/snapshot"
)

// Chatter sends one user turn and streams the reply.
type Chatter interface {
	Send(ctx context.Context, userID string, req chat.Request, emit func(chat.Chunk) error) (*chat.Reply, error)
}

// Applier applies an actions block to the workbook.
type Applier interface {
	Execute(ctx context.Context, block *actions.Block) executor.Result
}

// Snapshotter reads the workbook context for a turn; nil means no workbook.
type Snapshotter interface {
	Read(ctx context.Context) *snapshot.Snapshot
}

// Confirm asks a yes/no question.
type Confirm func(question string) bool

// errorReply is shown in place of a reply that failed.
const errorReply = "Sorry, something went wrong. Please try again."

// Session manages an interactive chat with one workbook.
type Session struct {
	Chat      Chatter
	Apply     Applier
	Snapshots Snapshotter

	UserID         string
	ConversationID string
	// AutoApply applies proposed actions without asking.
	AutoApply bool

	HistoryFile string
	Out         io.Writer
	StartTime   time.Time

	LastReply *chat.Reply
	Turns     int

	// KnownCommands is the list of slash commands for completion.
	KnownCommands []string
}

// NewSession creates a new interactive session.
func NewSession(c Chatter, a Applier, snaps Snapshotter) *Session {
	home, _ := os.UserHomeDir()
	histFile := filepath.Join(home, ".xla", "chat_history")
	os.MkdirAll(filepath.Dir(histFile), 0755)

	return &Session{
		Chat:          c,
		Apply:         a,
		Snapshots:     snaps,
		UserID:        "local",
		HistoryFile:   histFile,
		Out:           os.Stdout,
		StartTime:     time.Now(),
		KnownCommands: []string{"/help", "/new", "/snapshot", "/apply", "/exit"},
	}
}

// Run starts the REPL loop. Blocks until '/exit' or Ctrl+D.
func (s *Session) Run(ctx context.Context) error {
	var items []readline.PrefixCompleterInterface
	for _, c := range s.KnownCommands {
		items = append(items, readline.PcItem(c))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "xla> ",
		HistoryFile:     s.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "/exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	confirm := func(question string) bool {
		rl.SetPrompt(question + " [y/N] ")
		defer rl.SetPrompt("xla> ")
		answer, err := rl.Readline()
		if err != nil {
			return false
		}
		return yes(answer)
	}

	fmt.Fprintln(s.Out, "xla, spreadsheet assistant")
	fmt.Fprintln(s.Out, "Ask a question about the workbook, '/help' for commands, '/exit' to quit.")
	fmt.Fprintln(s.Out)

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		if quit := s.Handle(ctx, strings.TrimSpace(line), confirm); quit {
			break
		}
	}

	fmt.Fprintf(s.Out, "\nSession ended. %d turns in %s.\n", s.Turns, formatDuration(time.Since(s.StartTime)))
	return nil
}

// Handle processes one input line and reports whether the session should end.
func (s *Session) Handle(ctx context.Context, line string, confirm Confirm) bool {
	switch {
	case line == "":
	case line == "/exit" || line == "/quit":
		return true
	case line == "/help":
		s.printHelp()
	case line == "/new":
		s.ConversationID = ""
		s.LastReply = nil
		fmt.Fprintln(s.Out, "Started a new conversation.")
	case line == "/snapshot":
		s.printSnapshot(ctx)
	case line == "/apply":
		if s.LastReply == nil || s.LastReply.Block == nil {
			fmt.Fprintln(s.Out, "No actions to apply.")
			return false
		}
		s.applyBlock(ctx, s.LastReply.Block, confirm)
	case strings.HasPrefix(line, "/"):
		fmt.Fprintf(s.Out, "Unknown command %s, type /help.\n", line)
	default:
		s.Turn(ctx, line, confirm)
	}
	return false
}

// Turn sends message, streams the visible reply, then offers to apply the
// proposed actions. Failed sends can be retried.
func (s *Session) Turn(ctx context.Context, message string, confirm Confirm) {
	for {
		reply, err := s.send(ctx, message)
		if err == nil {
			s.Turns++
			s.LastReply = reply
			s.ConversationID = reply.ConversationID
			if reply.Block != nil {
				s.propose(ctx, reply.Block, confirm)
			}
			return
		}

		fmt.Fprintln(s.Out)
		color.New(color.FgRed).Fprintln(s.Out, errorReply)
		fmt.Fprintf(s.Out, "  %v\n", err)
		if ctx.Err() != nil || !confirm("Retry?") {
			return
		}
	}
}

func (s *Session) send(ctx context.Context, message string) (*chat.Reply, error) {
	var snap *snapshot.Snapshot
	if s.Snapshots != nil {
		snap = s.Snapshots.Read(ctx)
	}

	spinner := progress.NewSpinner("Thinking...")
	spinner.Start()
	first := true
	hider := &blockHider{w: s.Out}

	reply, err := s.Chat.Send(ctx, s.UserID, chat.Request{
		Message:        message,
		ConversationID: s.ConversationID,
		ExcelData:      snap,
	}, func(c chat.Chunk) error {
		if first {
			spinner.Stop("")
			first = false
		}
		return hider.Write(c.Content)
	})
	spinner.Stop("")
	if err != nil {
		return nil, err
	}
	hider.Flush()
	fmt.Fprintln(s.Out)
	return reply, nil
}

func (s *Session) propose(ctx context.Context, block *actions.Block, confirm Confirm) {
	if len(block.Actions) == 0 {
		return
	}
	fmt.Fprintln(s.Out)
	color.New(color.Bold).Fprintf(s.Out, "Proposed actions (%d):\n", len(block.Actions))
	for _, line := range actions.Summarize(block) {
		fmt.Fprintf(s.Out, "  • %s\n", line)
	}
	if !s.AutoApply && !confirm("Apply these changes?") {
		fmt.Fprintln(s.Out, "Changes skipped. Use '/apply' to apply them later.")
		return
	}
	s.applyBlock(ctx, block, confirm)
}

func (s *Session) applyBlock(ctx context.Context, block *actions.Block, confirm Confirm) {
	if s.Apply == nil {
		fmt.Fprintln(s.Out, "No workbook attached, nothing was changed.")
		return
	}
	for {
		res := s.Apply.Execute(ctx, block)
		PrintResult(s.Out, res)
		if res.Success || ctx.Err() != nil || !confirm("Retry?") {
			return
		}
	}
}

// PrintResult writes a human summary of an executed batch.
func PrintResult(w io.Writer, res executor.Result) {
	for _, a := range res.Actions {
		for _, warn := range a.Warnings {
			color.New(color.FgYellow).Fprintf(w, "  ! action %d: %s\n", a.Index+1, warn)
		}
		for _, f := range a.Failed {
			color.New(color.FgRed).Fprintf(w, "  ✗ action %d: %s\n", a.Index+1, f.Error())
		}
	}
	switch {
	case res.Success && res.Failures() == 0:
		color.New(color.FgGreen).Fprintf(w, "✓ %d action(s) applied\n", len(res.Actions))
	case res.Success:
		color.New(color.FgYellow).Fprintf(w, "✓ %d action(s) applied, %d sub-operation(s) skipped\n", len(res.Actions), res.Failures())
	default:
		color.New(color.FgRed).Fprintf(w, "✗ failed: %s\n", res.Error)
	}
}

func (s *Session) printSnapshot(ctx context.Context) {
	if s.Snapshots == nil {
		fmt.Fprintln(s.Out, "No workbook attached.")
		return
	}
	snap := s.Snapshots.Read(ctx)
	if snap == nil {
		fmt.Fprintln(s.Out, "Workbook unavailable.")
		return
	}
	fmt.Fprint(s.Out, snapshot.Table(snap))
	if snap.Selection != nil {
		fmt.Fprintf(s.Out, "Selection: %s\n", snap.Selection.Range)
	}
}

func (s *Session) printHelp() {
	fmt.Fprintln(s.Out, "Ask about the workbook, for example:")
	fmt.Fprintln(s.Out, "  Compute 20% VAT in column C")
	fmt.Fprintln(s.Out)
	fmt.Fprintln(s.Out, "Commands:")
	fmt.Fprintln(s.Out, "  /snapshot  show the data sent to the assistant")
	fmt.Fprintln(s.Out, "  /apply     apply the last proposed actions")
	fmt.Fprintln(s.Out, "  /new       start a new conversation")
	fmt.Fprintln(s.Out, "  /exit      quit")
}

func yes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "o", "oui":
		return true
	}
	return false
}

// blockHider forwards streamed text while dropping the actions block, which
// may be split across chunks.
type blockHider struct {
	w       io.Writer
	pending string
	inBlock bool
}

func (h *blockHider) Write(s string) error {
	h.pending += s
	for {
		marker := actions.StartMarker
		if h.inBlock {
			marker = actions.EndMarker
		}
		if i := strings.Index(h.pending, marker); i >= 0 {
			if !h.inBlock {
				if err := h.emit(h.pending[:i]); err != nil {
					return err
				}
			}
			h.pending = h.pending[i+len(marker):]
			h.inBlock = !h.inBlock
			continue
		}

		keep := partialSuffix(h.pending, marker)
		visible := h.pending[:len(h.pending)-keep]
		h.pending = h.pending[len(h.pending)-keep:]
		if h.inBlock {
			return nil
		}
		return h.emit(visible)
	}
}

// Flush writes held-back text once the stream ends.
func (h *blockHider) Flush() error {
	defer func() { h.pending = "" }()
	if h.inBlock {
		return nil
	}
	return h.emit(h.pending)
}

func (h *blockHider) emit(s string) error {
	if s == "" {
		return nil
	}
	if _, err := io.WriteString(h.w, s); err != nil {
		return fmt.Errorf("could not write reply: %w", err)
	}
	return nil
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of marker.
func partialSuffix(s, marker string) int {
	for n := min(len(s), len(marker)-1); n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, s)
}
