package sheet

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/klytics/xla/internal/formats/xlsx"
	"github.com/klytics/xla/internal/snapshot"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Setenv("HOME", t.TempDir())

	root := &cobra.Command{Use: "xla"}
	root.PersistentFlags().Bool("json", false, "")
	root.AddCommand(NewSnapshotCommand(), NewPromptCommand(), NewBookCommand())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDecodeBook(t *testing.T) {
	sheets, err := decodeBook([]byte(`{"sheets":[{"name":"Ventes","headers":["Produit","Prix"],"rows":[["Stylo",1.5]]},{"name":"Notes","rows":[]}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(sheets) != 2 || sheets[0].Name != "Ventes" || sheets[1].Name != "Notes" {
		t.Fatalf("sheets = %+v", sheets)
	}
	if len(sheets[0].Rows) != 2 || sheets[0].Rows[0][0] != "Produit" || sheets[0].Rows[1][1] != 1.5 {
		t.Errorf("rows = %v", sheets[0].Rows)
	}
}

func TestDecodeBookSnapshotEnvelope(t *testing.T) {
	raw := `{"ok":true,"command":"snapshot","data":{"activeSheet":{"name":"Ventes","headers":["Produit"],"rows":[["Stylo"],["Gomme"]]},"workbookSheets":["Ventes"]}}`
	sheets, err := decodeBook([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(sheets) != 1 || len(sheets[0].Rows) != 3 || sheets[0].Rows[2][0] != "Gomme" {
		t.Errorf("sheets = %+v", sheets)
	}
}

func TestDecodeBookErrors(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"sheets":[]}`} {
		if _, err := decodeBook([]byte(raw)); err == nil {
			t.Errorf("decodeBook(%q) should fail", raw)
		}
	}
}

func TestBookNewThenSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ventes")
	data := `{"sheets":[{"name":"Ventes","headers":["Produit","Prix"],"rows":[["Stylo",1.5],["Gomme",0.8]]},{"name":"Notes","rows":[]}]}`

	out, err := execute(t, data, "book", "new", path, "--data", "-")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Wrote "+path+".xlsx (2 sheets, 3 rows)") {
		t.Errorf("book new output = %q", out)
	}

	out, err = execute(t, "", "snapshot", path+".xlsx")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Ventes, Notes", "Ventes (2 rows)", "Produit | Prix", "Gomme | 0.8"} {
		if !strings.Contains(out, want) {
			t.Errorf("snapshot output missing %q:\n%s", want, out)
		}
	}
}

func TestSnapshotRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	book := filepath.Join(dir, "ventes.xlsx")
	if err := xlsx.WriteFile(book, xlsx.Sheet{Name: "Ventes", Rows: [][]any{{"Produit"}}}); err != nil {
		t.Fatal(err)
	}

	cases := [][]string{
		{"snapshot", filepath.Join(dir, "absent.xlsx")},
		{"snapshot", filepath.Join(dir, "ventes.csv")},
		{"snapshot", book, "--selection", "pas une plage"},
		{"snapshot", book, "--format", "xml"},
	}
	for _, args := range cases {
		if _, err := execute(t, "", args...); err == nil {
			t.Errorf("%v should fail", args)
		}
	}
}

func TestPrintDiff(t *testing.T) {
	before := &snapshot.Snapshot{ActiveSheet: snapshot.Sheet{Name: "Ventes", Headers: []string{"Produit"}, Rows: [][]string{{"Stylo"}}}}
	after := &snapshot.Snapshot{ActiveSheet: snapshot.Sheet{Name: "Ventes", Headers: []string{"Produit"}, Rows: [][]string{{"Gomme"}}}}

	var buf bytes.Buffer
	PrintDiff(&buf, snapshot.Diff(before, after))
	out := buf.String()
	if !strings.Contains(out, "- Stylo") || !strings.Contains(out, "+ Gomme") {
		t.Errorf("diff = %q", out)
	}
}
