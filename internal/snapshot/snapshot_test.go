package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/klytics/xla/internal/host"
	"github.com/klytics/xla/internal/host/hosttest"
)

func seededBook() *hosttest.Book {
	book := hosttest.NewBook("Ventes", "Notes")
	book.Put("Ventes", "A1", "Produit")
	book.Put("Ventes", "B1", "Prix")
	book.Put("Ventes", "C1", "Payé")
	book.Put("Ventes", "A2", "Stylo")
	book.Put("Ventes", "B2", 1.5)
	book.Put("Ventes", "C2", true)
	book.Put("Ventes", "A3", "Cahier")
	book.Put("Ventes", "B3", float64(3))
	return book
}

func newReader(loader host.Loader) *Reader {
	s := host.NewSession(loader, host.Options{PollInterval: time.Millisecond, MaxAttempts: 5})
	return NewReader(s, nil)
}

func TestReadSnapshot(t *testing.T) {
	book := seededBook()
	if err := book.Select("B2:C3"); err != nil {
		t.Fatal(err)
	}

	snap := newReader(&hosttest.Loader{Book: book}).Read(context.Background())
	if snap == nil {
		t.Fatal("expected a snapshot")
	}

	if snap.ActiveSheet.Name != "Ventes" {
		t.Errorf("name = %q", snap.ActiveSheet.Name)
	}
	if strings.Join(snap.ActiveSheet.Headers, ",") != "Produit,Prix,Payé" {
		t.Errorf("headers = %v", snap.ActiveSheet.Headers)
	}
	if len(snap.ActiveSheet.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(snap.ActiveSheet.Rows))
	}
	if strings.Join(snap.ActiveSheet.Rows[0], ",") != "Stylo,1.5,true" {
		t.Errorf("row 0 = %v", snap.ActiveSheet.Rows[0])
	}
	if strings.Join(snap.ActiveSheet.Rows[1], ",") != "Cahier,3," {
		t.Errorf("row 1 = %v", snap.ActiveSheet.Rows[1])
	}
	if strings.Join(snap.WorkbookSheets, ",") != "Ventes,Notes" {
		t.Errorf("sheets = %v", snap.WorkbookSheets)
	}
	if snap.Selection == nil || snap.Selection.Range != "Ventes!B2:C3" ||
		snap.Selection.StartRow != 1 || snap.Selection.StartCol != 1 {
		t.Errorf("selection = %+v", snap.Selection)
	}
}

func TestReadWithoutSelection(t *testing.T) {
	snap := newReader(&hosttest.Loader{Book: seededBook()}).Read(context.Background())
	if snap == nil {
		t.Fatal("expected a snapshot")
	}
	if snap.Selection != nil {
		t.Errorf("expected nil selection, got %+v", snap.Selection)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"selection":null`) {
		t.Errorf("selection should encode as null: %s", data)
	}
	for _, key := range []string{`"activeSheet"`, `"workbookSheets"`, `"headers"`, `"rows"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("missing %s in %s", key, data)
		}
	}
}

func TestReadEmptySheet(t *testing.T) {
	book := hosttest.NewBook("Vide")
	snap := newReader(&hosttest.Loader{Book: book}).Read(context.Background())
	if snap == nil {
		t.Fatal("expected a snapshot")
	}
	if len(snap.ActiveSheet.Headers) != 1 || snap.ActiveSheet.Headers[0] != "" {
		t.Errorf("headers = %v", snap.ActiveSheet.Headers)
	}
	if snap.ActiveSheet.Rows == nil || len(snap.ActiveSheet.Rows) != 0 {
		t.Errorf("rows = %v", snap.ActiveSheet.Rows)
	}
}

func TestReadHostUnavailable(t *testing.T) {
	r := newReader(&hosttest.Loader{Book: seededBook(), AvailableAfter: -1})
	if snap := r.Read(context.Background()); snap != nil {
		t.Errorf("expected nil snapshot, got %+v", snap)
	}
	if _, err := r.ReadErr(context.Background()); err == nil {
		t.Error("expected ReadErr to report the failure")
	}
}

func TestCellString(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"texte", "texte"},
		{1.5, "1.5"},
		{float64(1200), "1200"},
		{42, "42"},
		{false, "false"},
	}
	for _, tt := range tests {
		if got := CellString(tt.in); got != tt.want {
			t.Errorf("CellString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiff(t *testing.T) {
	before := &Snapshot{ActiveSheet: Sheet{
		Name:    "Ventes",
		Headers: []string{"Produit", "Prix"},
		Rows:    [][]string{{"Stylo", "1.5"}, {"Cahier", "3"}},
	}}
	after := &Snapshot{ActiveSheet: Sheet{
		Name:    "Ventes",
		Headers: []string{"Produit", "Prix"},
		Rows:    [][]string{{"Stylo", "1.5"}, {"Cahier", "3.5"}},
	}}

	lines := Diff(before, after)
	if !Changed(lines) {
		t.Fatal("expected a change")
	}

	var removed, added []string
	for _, l := range lines {
		switch l.Type {
		case LineRemoved:
			removed = append(removed, l.Text)
		case LineAdded:
			added = append(added, l.Text)
		}
	}
	if len(removed) != 1 || removed[0] != "Cahier | 3" {
		t.Errorf("removed = %v", removed)
	}
	if len(added) != 1 || added[0] != "Cahier | 3.5" {
		t.Errorf("added = %v", added)
	}

	if Changed(Diff(before, before)) {
		t.Error("identical snapshots should not differ")
	}
}

func TestTable(t *testing.T) {
	s := &Snapshot{ActiveSheet: Sheet{Name: "Ventes", Headers: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}}}
	want := "# Ventes\na | b\n1 | 2\n"
	if got := Table(s); got != want {
		t.Errorf("Table = %q, want %q", got, want)
	}
	if Table(nil) != "" {
		t.Error("nil snapshot should render empty")
	}
}
