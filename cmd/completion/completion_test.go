package completion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func testRootCmd() *cobra.Command {
	root := &cobra.Command{Use: "xla"}
	root.AddCommand(&cobra.Command{Use: "snapshot", Short: "Show the workbook context"})
	root.AddCommand(&cobra.Command{Use: "apply", Short: "Apply an action block"})
	return root
}

func run(t *testing.T, shell string) string {
	t.Helper()
	root := testRootCmd()
	root.AddCommand(NewCommand(root))
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"completion", shell})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func TestBashCompletion(t *testing.T) {
	output := run(t, "bash")
	if !strings.HasPrefix(output, "# xla bash completion") {
		t.Errorf("missing install header: %q", output[:min(len(output), 60)])
	}
	if !strings.Contains(output, "_xla") {
		t.Error("bash completion should contain _xla function")
	}
}

func TestZshCompletion(t *testing.T) {
	if output := run(t, "zsh"); !strings.Contains(output, "compdef") {
		t.Error("zsh completion should contain compdef")
	}
}

func TestFishCompletion(t *testing.T) {
	if output := run(t, "fish"); !strings.Contains(output, "complete -c xla") {
		t.Error("fish completion should contain 'complete -c xla'")
	}
}

func TestPowerShellCompletion(t *testing.T) {
	if output := run(t, "powershell"); !strings.Contains(output, "xla") {
		t.Error("PowerShell completion should contain xla")
	}
}

func TestUnsupportedShell(t *testing.T) {
	root := testRootCmd()
	root.AddCommand(NewCommand(root))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"completion", "tcsh"})
	if err := root.Execute(); err == nil {
		t.Error("expected error for unsupported shell")
	}
}
