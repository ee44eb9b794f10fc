package host

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidRange is returned for range references that cannot be resolved to cells.
var ErrInvalidRange = errors.New("invalid range reference")

// ErrRangeTooLarge is returned for ranges covering more than MaxCells cells.
var ErrRangeTooLarge = errors.New("range too large")

// MaxCells bounds the number of cells a single action may touch.
const MaxCells = 100_000

// Cell is a 1-based cell coordinate.
type Cell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Name returns the A1-style name of the cell.
func (c Cell) Name() string {
	name, err := excelize.CoordinatesToCellName(c.Col, c.Row)
	if err != nil {
		return fmt.Sprintf("R%dC%d", c.Row, c.Col)
	}
	return name
}

// Range is a rectangular block of cells, 1-based and inclusive.
type Range struct {
	FirstCol int `json:"firstCol"`
	FirstRow int `json:"firstRow"`
	LastCol  int `json:"lastCol"`
	LastRow  int `json:"lastRow"`
}

// Rows returns the number of rows in the range.
func (r Range) Rows() int { return r.LastRow - r.FirstRow + 1 }

// Cols returns the number of columns in the range.
func (r Range) Cols() int { return r.LastCol - r.FirstCol + 1 }

// TopLeft returns the first cell of the range.
func (r Range) TopLeft() Cell { return Cell{Col: r.FirstCol, Row: r.FirstRow} }

// Single reports whether the range covers exactly one cell.
func (r Range) Single() bool { return r.Rows() == 1 && r.Cols() == 1 }

// Contains reports whether c lies inside the range.
func (r Range) Contains(c Cell) bool {
	return c.Col >= r.FirstCol && c.Col <= r.LastCol && c.Row >= r.FirstRow && c.Row <= r.LastRow
}

// Size returns the number of cells in the range.
func (r Range) Size() int { return r.Rows() * r.Cols() }

// CheckSize rejects ranges larger than MaxCells.
func (r Range) CheckSize() error {
	if n := r.Size(); n > MaxCells {
		return fmt.Errorf("%w: %s covers %d cells, at most %d allowed", ErrRangeTooLarge, r.Address(), n, MaxCells)
	}
	return nil
}

// Each calls fn for every cell of the range, row by row, and stops at the
// first error.
func (r Range) Each(fn func(Cell) error) error {
	for row := r.FirstRow; row <= r.LastRow; row++ {
		for col := r.FirstCol; col <= r.LastCol; col++ {
			if err := fn(Cell{Col: col, Row: row}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Address returns the A1-style address, "B2" or "B2:C4".
func (r Range) Address() string {
	first := r.TopLeft().Name()
	if r.Single() {
		return first
	}
	return first + ":" + Cell{Col: r.LastCol, Row: r.LastRow}.Name()
}

// Ref is a parsed range reference, optionally sheet-qualified.
type Ref struct {
	// Sheet is the qualifier before "!", unquoted. Empty when unqualified.
	Sheet string
	// Start is the cell written before the colon, as given.
	Start Cell
	// Range is the normalized rectangle.
	Range Range
	// Multi is true when the reference had a colon.
	Multi bool
}

// ParseRef parses "A1", "$B$2:C4", "Sheet1!A1:B5" or "'My Sheet'!A1".
// Whole-column and whole-row references are rejected.
func ParseRef(s string) (Ref, error) {
	var ref Ref
	s = strings.TrimSpace(s)
	if s == "" {
		return ref, fmt.Errorf("%w: empty reference", ErrInvalidRange)
	}

	if i := strings.LastIndex(s, "!"); i != -1 {
		ref.Sheet = unquoteSheet(s[:i])
		s = s[i+1:]
		if ref.Sheet == "" {
			return ref, fmt.Errorf("%w: empty sheet qualifier", ErrInvalidRange)
		}
	}

	parts := strings.Split(strings.ReplaceAll(s, "$", ""), ":")
	if len(parts) > 2 {
		return ref, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}

	first, err := parseCell(parts[0])
	if err != nil {
		return ref, err
	}
	last := first
	if len(parts) == 2 {
		ref.Multi = true
		if last, err = parseCell(parts[1]); err != nil {
			return ref, err
		}
	}

	ref.Start = first
	ref.Range = Range{
		FirstCol: min(first.Col, last.Col),
		FirstRow: min(first.Row, last.Row),
		LastCol:  max(first.Col, last.Col),
		LastRow:  max(first.Row, last.Row),
	}
	return ref, nil
}

func parseCell(s string) (Cell, error) {
	s = strings.TrimSpace(s)
	col, row, err := excelize.CellNameToCoordinates(s)
	if err != nil {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}
	return Cell{Col: col, Row: row}, nil
}

func unquoteSheet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		s = strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}

// QuoteSheet quotes a sheet name for use in a qualified address when needed.
func QuoteSheet(name string) string {
	if strings.ContainsAny(name, " '!-+(),;&") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

// Qualified returns "Sheet!A1:B2".
func Qualified(sheet string, r Range) string {
	return QuoteSheet(sheet) + "!" + r.Address()
}
