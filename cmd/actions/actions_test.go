package actions

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

const reply = "Je mets l'en-tête en gras.\n[EXCEL_ACTIONS]\n{\"actions\":[{\"type\":\"format\",\"range\":\"A1:C1\",\"format\":{\"bold\":true}},{\"type\":\"formula\",\"range\":\"D2:D5\",\"formula\":\"=B2*C2\"}]}\n[/EXCEL_ACTIONS]\nDites-moi si cela convient."

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "xla"}
	root.PersistentFlags().Bool("json", false, "")
	root.AddCommand(NewCommand())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"actions"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestParse(t *testing.T) {
	out, err := run(t, reply, "parse")
	if err != nil {
		t.Fatal(err)
	}
	var block struct {
		Actions []map[string]any `json:"actions"`
	}
	if err := json.Unmarshal([]byte(out), &block); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(block.Actions) != 2 || block.Actions[1]["formula"] != "=B2*C2" {
		t.Errorf("actions = %v", block.Actions)
	}
}

func TestParseWrap(t *testing.T) {
	out, err := run(t, reply, "parse", "--wrap")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "[EXCEL_ACTIONS]") || !strings.HasSuffix(strings.TrimSpace(out), "[/EXCEL_ACTIONS]") {
		t.Errorf("wrapped output = %q", out)
	}
}

func TestParseNoBlock(t *testing.T) {
	if _, err := run(t, "Bonjour !", "parse"); err == nil {
		t.Error("expected error for reply without a block")
	}
}

func TestStrip(t *testing.T) {
	out, err := run(t, reply, "strip")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "EXCEL_ACTIONS") || !strings.Contains(out, "Dites-moi") {
		t.Errorf("stripped output = %q", out)
	}
}

func TestSummarizeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.txt")
	os.WriteFile(path, []byte(reply), 0644)

	out, err := run(t, "", "summarize", path)
	if err != nil {
		t.Fatal(err)
	}
	want := "• formatting of `A1:C1`\n• formula `=B2*C2` in `D2:D5`\n"
	if out != want {
		t.Errorf("summary = %q, want %q", out, want)
	}
}

func TestSummarizeMalformed(t *testing.T) {
	out, err := run(t, "[EXCEL_ACTIONS] {oops [/EXCEL_ACTIONS]", "summarize")
	if err != nil {
		t.Fatal(err)
	}
	if out != "No actions proposed.\n" {
		t.Errorf("output = %q", out)
	}
}

func TestReadInputEmptyStdin(t *testing.T) {
	if _, err := ReadInput(strings.NewReader(""), nil); err == nil {
		t.Error("expected error for empty stdin")
	}
	if _, err := ReadInput(nil, []string{filepath.Join(t.TempDir(), "absent.txt")}); err == nil {
		t.Error("expected error for missing file")
	}
}
