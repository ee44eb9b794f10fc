package host

import (
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		sheet   string
		start   Cell
		rng     Range
		multi   bool
		address string
	}{
		{"A1", "", Cell{1, 1}, Range{1, 1, 1, 1}, false, "A1"},
		{"$B$2:C4", "", Cell{2, 2}, Range{2, 2, 3, 4}, true, "B2:C4"},
		{"Feuille1!C1:C3", "Feuille1", Cell{3, 1}, Range{3, 1, 3, 3}, true, "C1:C3"},
		{"'Bilan 2024'!A1", "Bilan 2024", Cell{1, 1}, Range{1, 1, 1, 1}, false, "A1"},
		{"'L''année'!B2", "L'année", Cell{2, 2}, Range{2, 2, 2, 2}, false, "B2"},
		{" D5:B2 ", "", Cell{4, 5}, Range{2, 2, 4, 5}, true, "B2:D5"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ref, err := ParseRef(tt.in)
			if err != nil {
				t.Fatalf("ParseRef(%q): %v", tt.in, err)
			}
			if ref.Sheet != tt.sheet {
				t.Errorf("sheet = %q, want %q", ref.Sheet, tt.sheet)
			}
			if ref.Start != tt.start {
				t.Errorf("start = %+v, want %+v", ref.Start, tt.start)
			}
			if ref.Range != tt.rng {
				t.Errorf("range = %+v, want %+v", ref.Range, tt.rng)
			}
			if ref.Multi != tt.multi {
				t.Errorf("multi = %v", ref.Multi)
			}
			if got := ref.Range.Address(); got != tt.address {
				t.Errorf("address = %q, want %q", got, tt.address)
			}
		})
	}
}

func TestParseRefInvalid(t *testing.T) {
	for _, in := range []string{"", "A", "A:A", "1:1", "A1:B2:C3", "!A1", "Sheet1!", "ZZZZ1"} {
		if _, err := ParseRef(in); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("ParseRef(%q) error = %v, want ErrInvalidRange", in, err)
		}
	}
}

func TestRangeCells(t *testing.T) {
	r := Range{FirstCol: 2, FirstRow: 2, LastCol: 3, LastRow: 3}
	var cells []Cell
	r.Each(func(c Cell) error {
		cells = append(cells, c)
		return nil
	})
	want := []string{"B2", "C2", "B3", "C3"}
	if len(cells) != len(want) {
		t.Fatalf("expected %d cells, got %d", len(want), len(cells))
	}
	for i, c := range cells {
		if c.Name() != want[i] {
			t.Errorf("cell %d = %s, want %s", i, c.Name(), want[i])
		}
	}
	if !r.Contains(Cell{Col: 3, Row: 2}) || r.Contains(Cell{Col: 4, Row: 2}) {
		t.Error("Contains mismatch")
	}
}

func TestRangeEachStops(t *testing.T) {
	stop := errors.New("stop")
	seen := 0
	r := Range{FirstCol: 1, FirstRow: 1, LastCol: 16384, LastRow: 1048576}
	err := r.Each(func(c Cell) error {
		seen++
		if seen == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || seen != 3 {
		t.Errorf("Each = %v after %d cells, want stop after 3", err, seen)
	}
}

func TestRangeCheckSize(t *testing.T) {
	ref, err := ParseRef("A1:XFD1048576")
	if err != nil {
		t.Fatal(err)
	}
	if got := ref.Range.Size(); got != 16384*1048576 {
		t.Errorf("Size = %d", got)
	}
	if err := ref.Range.CheckSize(); !errors.Is(err, ErrRangeTooLarge) {
		t.Errorf("CheckSize = %v, want ErrRangeTooLarge", err)
	}

	ok, _ := ParseRef("A1:J10000")
	if err := ok.Range.CheckSize(); err != nil {
		t.Errorf("CheckSize(%s) = %v", ok.Range.Address(), err)
	}
}

func TestQualified(t *testing.T) {
	r := Range{FirstCol: 1, FirstRow: 1, LastCol: 4, LastRow: 10}
	if got := Qualified("Sheet1", r); got != "Sheet1!A1:D10" {
		t.Errorf("got %q", got)
	}
	if got := Qualified("Grand livre", r); got != "'Grand livre'!A1:D10" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeColor(t *testing.T) {
	if c, err := NormalizeColor("#4472c4"); err != nil || c != "4472C4" {
		t.Errorf("got %q, %v", c, err)
	}
	if c, err := NormalizeColor("FFFFFF"); err != nil || c != "FFFFFF" {
		t.Errorf("got %q, %v", c, err)
	}
	for _, bad := range []string{"red", "#FFF", "#GGGGGG", ""} {
		if _, err := NormalizeColor(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestValidateAlignment(t *testing.T) {
	for _, ok := range []string{"left", "center", "right"} {
		if err := ValidateAlignment(ok); err != nil {
			t.Errorf("%q: %v", ok, err)
		}
	}
	if err := ValidateAlignment("justify"); err == nil {
		t.Error("expected justify to be rejected")
	}
}

func TestValidateGrid(t *testing.T) {
	r := Range{FirstCol: 1, FirstRow: 1, LastCol: 2, LastRow: 2}
	if err := ValidateGrid(r, [][]string{{"a", "b"}, {"c", "d"}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateGrid(r, [][]string{{"a", "b"}}); err == nil {
		t.Error("expected row count mismatch")
	}
	if err := ValidateGrid(r, [][]string{{"a", "b"}, {"c"}}); err == nil {
		t.Error("expected column count mismatch")
	}
}
