package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/klytics/xla/internal/actions"
	"github.com/klytics/xla/internal/chat"
	"github.com/klytics/xla/internal/executor"
	"github.com/klytics/xla/internal/snapshot"
)

const blockReply = "Voici le total.\n[EXCEL_ACTIONS]\n{\"actions\":[{\"type\":\"write\",\"range\":\"A1\",\"values\":[[\"Total\"]]}]}\n[/EXCEL_ACTIONS]\nC'est fait."

// fakeChat streams reply in fixed-size pieces. The first fails calls
// return err before streaming.
type fakeChat struct {
	reply string
	piece int
	fails int
	err   error

	requests []chat.Request
}

func (f *fakeChat) Send(ctx context.Context, userID string, req chat.Request, emit func(chat.Chunk) error) (*chat.Reply, error) {
	f.requests = append(f.requests, req)
	if f.fails > 0 {
		f.fails--
		return nil, f.err
	}
	piece := f.piece
	if piece <= 0 {
		piece = len(f.reply)
	}
	for i := 0; i < len(f.reply); i += piece {
		end := min(i+piece, len(f.reply))
		if err := emit(chat.Chunk{Content: f.reply[i:end], ConversationID: "conv-1"}); err != nil {
			return nil, err
		}
	}
	return &chat.Reply{ConversationID: "conv-1", Content: f.reply, Block: actions.Parse(f.reply)}, nil
}

type fakeApplier struct {
	results []executor.Result
	calls   int
}

func (f *fakeApplier) Execute(ctx context.Context, block *actions.Block) executor.Result {
	res := f.results[min(f.calls, len(f.results)-1)]
	f.calls++
	return res
}

type fakeSnapshots struct{ snap *snapshot.Snapshot }

func (f fakeSnapshots) Read(ctx context.Context) *snapshot.Snapshot { return f.snap }

func applied() executor.Result {
	return executor.Result{
		Success: true,
		Flushed: true,
		Actions: []executor.ActionResult{{Index: 0, Type: actions.TypeWrite, Range: "A1", Applied: []string{"values"}, Cells: 1}},
	}
}

func answers(replies ...bool) (Confirm, *[]string) {
	var asked []string
	return func(q string) bool {
		asked = append(asked, q)
		if len(replies) == 0 {
			return false
		}
		r := replies[0]
		replies = replies[1:]
		return r
	}, &asked
}

func newTestSession(c Chatter, a Applier, snaps Snapshotter) (*Session, *bytes.Buffer) {
	var buf bytes.Buffer
	s := NewSession(c, a, snaps)
	s.Out = &buf
	s.HistoryFile = ""
	return s, &buf
}

func TestNewSession(t *testing.T) {
	s := NewSession(&fakeChat{}, nil, nil)
	if s.HistoryFile == "" {
		t.Error("expected history file path to be set")
	}
	if s.UserID != "local" {
		t.Errorf("user = %q", s.UserID)
	}
	if len(s.KnownCommands) == 0 {
		t.Error("expected known commands to be populated")
	}
}

func TestBlockHider(t *testing.T) {
	for _, piece := range []int{1, 2, 3, 7, 15, len(blockReply)} {
		var buf bytes.Buffer
		h := &blockHider{w: &buf}
		for i := 0; i < len(blockReply); i += piece {
			if err := h.Write(blockReply[i:min(i+piece, len(blockReply))]); err != nil {
				t.Fatal(err)
			}
		}
		h.Flush()
		if got, want := buf.String(), "Voici le total.\n\nC'est fait."; got != want {
			t.Errorf("piece %d: got %q, want %q", piece, got, want)
		}
	}
}

func TestBlockHiderKeepsMarkerLookalikes(t *testing.T) {
	var buf bytes.Buffer
	h := &blockHider{w: &buf}
	h.Write("voir [EXCEL")
	if buf.String() != "voir " {
		t.Errorf("partial marker should be held back, got %q", buf.String())
	}
	h.Write(" plus tard]")
	h.Flush()
	if buf.String() != "voir [EXCEL plus tard]" {
		t.Errorf("got %q", buf.String())
	}
}

func TestBlockHiderUnterminated(t *testing.T) {
	var buf bytes.Buffer
	h := &blockHider{w: &buf}
	h.Write("avant [EXCEL_ACTIONS] {\"actions\":")
	h.Flush()
	if buf.String() != "avant " {
		t.Errorf("got %q", buf.String())
	}
}

func TestPartialSuffix(t *testing.T) {
	tests := []struct {
		s    string
		want int
	}{
		{"abc", 0},
		{"abc[", 1},
		{"abc[EXCEL_", 7},
		{"[EXCEL_ACTIONS", 14},
		{"", 0},
	}
	for _, tt := range tests {
		if got := partialSuffix(tt.s, actions.StartMarker); got != tt.want {
			t.Errorf("partialSuffix(%q) = %d, want %d", tt.s, got, tt.want)
		}
	}
}

func TestTurnAppliesConfirmedActions(t *testing.T) {
	c := &fakeChat{reply: blockReply, piece: 4}
	a := &fakeApplier{results: []executor.Result{applied()}}
	snap := &snapshot.Snapshot{ActiveSheet: snapshot.Sheet{Name: "Feuille1"}}
	s, out := newTestSession(c, a, fakeSnapshots{snap})

	confirm, asked := answers(true)
	s.Turn(context.Background(), "Ajoute un total", confirm)

	if a.calls != 1 {
		t.Fatalf("expected one apply, got %d", a.calls)
	}
	if len(*asked) != 1 || (*asked)[0] != "Apply these changes?" {
		t.Errorf("questions = %v", *asked)
	}
	if c.requests[0].ExcelData != snap {
		t.Error("snapshot should be attached to the request")
	}
	got := out.String()
	if strings.Contains(got, "EXCEL_ACTIONS") {
		t.Errorf("block leaked into output: %q", got)
	}
	for _, want := range []string{"Voici le total.", "Proposed actions (1):", "write to `A1`", "✓ 1 action(s) applied"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if s.ConversationID != "conv-1" || s.Turns != 1 {
		t.Errorf("session state = %q, %d", s.ConversationID, s.Turns)
	}
}

func TestTurnDeclinedThenApplyCommand(t *testing.T) {
	a := &fakeApplier{results: []executor.Result{applied()}}
	s, out := newTestSession(&fakeChat{reply: blockReply}, a, nil)

	confirm, _ := answers(false)
	s.Turn(context.Background(), "Ajoute un total", confirm)
	if a.calls != 0 {
		t.Fatal("declined actions must not be applied")
	}
	if !strings.Contains(out.String(), "Changes skipped") {
		t.Errorf("output = %q", out.String())
	}

	s.Handle(context.Background(), "/apply", confirm)
	if a.calls != 1 {
		t.Errorf("/apply should apply the last block, calls = %d", a.calls)
	}
}

func TestTurnAutoApply(t *testing.T) {
	a := &fakeApplier{results: []executor.Result{applied()}}
	s, _ := newTestSession(&fakeChat{reply: blockReply}, a, nil)
	s.AutoApply = true

	confirm, asked := answers()
	s.Turn(context.Background(), "Ajoute un total", confirm)
	if a.calls != 1 || len(*asked) != 0 {
		t.Errorf("calls = %d, asked = %v", a.calls, *asked)
	}
}

func TestTurnWithoutWorkbook(t *testing.T) {
	s, out := newTestSession(&fakeChat{reply: blockReply}, nil, nil)
	confirm, _ := answers(true)
	s.Turn(context.Background(), "Ajoute un total", confirm)
	if !strings.Contains(out.String(), "No workbook attached") {
		t.Errorf("output = %q", out.String())
	}
}

func TestTurnRetry(t *testing.T) {
	c := &fakeChat{reply: "Bonjour", fails: 1, err: errors.New("openai stream failed: boom")}
	s, out := newTestSession(c, nil, nil)

	confirm, asked := answers(true)
	s.Turn(context.Background(), "Salut", confirm)

	if len(c.requests) != 2 {
		t.Fatalf("expected a retry, got %d requests", len(c.requests))
	}
	if len(*asked) != 1 || (*asked)[0] != "Retry?" {
		t.Errorf("questions = %v", *asked)
	}
	got := out.String()
	if !strings.Contains(got, errorReply) || !strings.Contains(got, "boom") {
		t.Errorf("error not reported: %q", got)
	}
	if !strings.HasSuffix(got, "Bonjour\n") {
		t.Errorf("retried reply missing: %q", got)
	}
}

func TestTurnNoRetry(t *testing.T) {
	c := &fakeChat{fails: 1, err: errors.New("boom")}
	s, _ := newTestSession(c, nil, nil)
	confirm, _ := answers(false)
	s.Turn(context.Background(), "Salut", confirm)
	if len(c.requests) != 1 || s.Turns != 0 || s.LastReply != nil {
		t.Errorf("requests = %d, turns = %d", len(c.requests), s.Turns)
	}
}

func TestApplyFailureRetry(t *testing.T) {
	failed := executor.Result{Error: "workbook host unavailable"}
	a := &fakeApplier{results: []executor.Result{failed, applied()}}
	s, out := newTestSession(&fakeChat{reply: blockReply}, a, nil)

	confirm, asked := answers(true, true)
	s.Turn(context.Background(), "Ajoute un total", confirm)
	if a.calls != 2 {
		t.Errorf("expected apply to be retried, calls = %d", a.calls)
	}
	if len(*asked) != 2 {
		t.Errorf("questions = %v", *asked)
	}
	if !strings.Contains(out.String(), "✗ failed: workbook host unavailable") {
		t.Errorf("output = %q", out.String())
	}
}

func TestPrintResultPartial(t *testing.T) {
	var buf bytes.Buffer
	PrintResult(&buf, executor.Result{
		Success: true,
		Actions: []executor.ActionResult{{
			Index:    1,
			Warnings: []string{"sheet qualifier ignored"},
			Failed:   []executor.PropertyError{{Property: "fill", Reason: "invalid color"}},
		}},
	})
	got := buf.String()
	for _, want := range []string{"! action 2: sheet qualifier ignored", "✗ action 2: fill: invalid color", "1 sub-operation(s) skipped"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestHandleCommands(t *testing.T) {
	snap := &snapshot.Snapshot{
		ActiveSheet: snapshot.Sheet{Name: "Ventes", Headers: []string{"Produit", "Prix"}, Rows: [][]string{{"Stylo", "1.5"}}},
		Selection:   &snapshot.Selection{Range: "A2"},
	}
	s, out := newTestSession(&fakeChat{}, nil, fakeSnapshots{snap})
	s.ConversationID = "conv-1"
	confirm, _ := answers()
	ctx := context.Background()

	tests := []struct {
		line string
		want string
		quit bool
	}{
		{"/help", "/snapshot", false},
		{"/snapshot", "Produit | Prix\nStylo | 1.5\nSelection: A2", false},
		{"/apply", "No actions to apply.", false},
		{"/bogus", "Unknown command /bogus", false},
		{"/new", "Started a new conversation.", false},
		{"", "", false},
		{"/exit", "", true},
	}
	for _, tt := range tests {
		out.Reset()
		if quit := s.Handle(ctx, tt.line, confirm); quit != tt.quit {
			t.Errorf("%q: quit = %v", tt.line, quit)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("%q: output %q missing %q", tt.line, out.String(), tt.want)
		}
	}
	if s.ConversationID != "" {
		t.Error("/new should reset the conversation")
	}
}

func TestYes(t *testing.T) {
	for _, in := range []string{"y", "YES", " o ", "oui"} {
		if !yes(in) {
			t.Errorf("yes(%q) = false", in)
		}
	}
	for _, in := range []string{"", "n", "non", "maybe"} {
		if yes(in) {
			t.Errorf("yes(%q) = true", in)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{5 * time.Minute, "5m 0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.input); got != tt.expected {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
