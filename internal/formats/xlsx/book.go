// Package xlsx hosts spreadsheet sessions on .xlsx files through excelize.
package xlsx

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/xla/internal/host"
)

// Book is a host.Workbook backed by an .xlsx file. Edits stay in memory
// until Sync writes the file; Discard reloads it from disk.
type Book struct {
	path      string
	file      *excelize.File
	selection string
}

// Open opens an existing workbook.
func Open(path string) (*Book, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s (check that the path is correct)", path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s, is this a valid .xlsx file? %w", path, err)
	}
	return &Book{path: path, file: f}, nil
}

// Path returns the file the book was opened from.
func (b *Book) Path() string { return b.path }

// Select overrides the selection stored in the file, e.g. "B2:C4".
// An empty ref falls back to the file's own selection.
func (b *Book) Select(ref string) error {
	if ref != "" {
		if _, err := host.ParseRef(ref); err != nil {
			return err
		}
	}
	b.selection = ref
	return nil
}

// SheetNames implements host.Workbook.
func (b *Book) SheetNames() ([]string, error) {
	return b.file.GetSheetList(), nil
}

// ActiveSheet implements host.Workbook.
func (b *Book) ActiveSheet() (string, error) {
	name := b.file.GetSheetName(b.file.GetActiveSheetIndex())
	if name == "" {
		list := b.file.GetSheetList()
		if len(list) == 0 {
			return "", fmt.Errorf("workbook %s has no sheets", b.path)
		}
		name = list[0]
	}
	return name, nil
}

// UsedRange implements host.Workbook. An empty sheet reports A1 holding "".
// Formula cells count as used even when they evaluate to "".
func (b *Book) UsedRange(sheet string) (*host.UsedRange, error) {
	rows, err := b.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("could not read sheet %q: %w", sheet, err)
	}

	r, found := host.Range{}, false
	for i, row := range rows {
		for j, cell := range row {
			c := host.Cell{Col: j + 1, Row: i + 1}
			if cell == "" {
				v, ok := b.formulaValue(sheet, c)
				if !ok {
					continue
				}
				rows[i][j] = v
			}
			if !found {
				r = host.Range{FirstCol: c.Col, FirstRow: c.Row, LastCol: c.Col, LastRow: c.Row}
				found = true
				continue
			}
			r.FirstCol = min(r.FirstCol, c.Col)
			r.FirstRow = min(r.FirstRow, c.Row)
			r.LastCol = max(r.LastCol, c.Col)
			r.LastRow = max(r.LastRow, c.Row)
		}
	}
	if !found {
		return &host.UsedRange{
			Address: host.Qualified(sheet, host.Range{FirstCol: 1, FirstRow: 1, LastCol: 1, LastRow: 1}),
			Values:  [][]any{{""}},
		}, nil
	}

	values := make([][]any, 0, r.Rows())
	for i := r.FirstRow; i <= r.LastRow; i++ {
		line := make([]any, r.Cols())
		for j := range line {
			line[j] = ""
			if i-1 < len(rows) && r.FirstCol-1+j < len(rows[i-1]) {
				line[j] = rows[i-1][r.FirstCol-1+j]
			}
		}
		values = append(values, line)
	}
	return &host.UsedRange{Address: host.Qualified(sheet, r), Values: values}, nil
}

// formulaValue evaluates a formula cell that has no cached result, as is the
// case for every formula excelize writes. Formulas excelize cannot evaluate
// read as their text. ok is false when the cell holds no formula.
func (b *Book) formulaValue(sheet string, c host.Cell) (v string, ok bool) {
	name := c.Name()
	formula, err := b.file.GetCellFormula(sheet, name)
	if err != nil || formula == "" {
		return "", false
	}
	if v, err := b.file.CalcCellValue(sheet, name); err == nil {
		return v, true
	}
	return "=" + strings.TrimPrefix(formula, "="), true
}

// Selection implements host.Workbook. It prefers the override set by
// Select, then the selection saved in the active sheet's view.
func (b *Book) Selection() (*host.Selection, error) {
	sheet, err := b.ActiveSheet()
	if err != nil {
		return nil, err
	}

	ref := b.selection
	if ref == "" {
		ref = b.savedSelection(sheet)
	}
	if ref == "" {
		return nil, nil
	}

	parsed, err := host.ParseRef(ref)
	if err != nil {
		return nil, fmt.Errorf("could not read selection: %w", err)
	}
	if parsed.Sheet != "" {
		sheet = parsed.Sheet
	}
	return &host.Selection{
		Address: host.Qualified(sheet, parsed.Range),
		Row:     parsed.Range.FirstRow - 1,
		Col:     parsed.Range.FirstCol - 1,
	}, nil
}

func (b *Book) savedSelection(sheet string) string {
	panes, err := b.file.GetPanes(sheet)
	if err != nil {
		return ""
	}
	for _, sel := range panes.Selection {
		if sqref := strings.Fields(sel.SQRef); len(sqref) > 0 {
			return sqref[0]
		}
		if sel.ActiveCell != "" {
			return sel.ActiveCell
		}
	}
	return ""
}

// SetValue implements host.Workbook. Strings starting with "=" are stored
// as formulas, the way the host treats assigned values.
func (b *Book) SetValue(sheet string, cell host.Cell, v any) error {
	name := cell.Name()
	if s, ok := v.(string); ok && len(s) > 1 && strings.HasPrefix(s, "=") {
		return b.SetFormula(sheet, cell, s)
	}
	if err := b.file.SetCellValue(sheet, name, v); err != nil {
		return fmt.Errorf("could not set %s!%s: %w", sheet, name, err)
	}
	return nil
}

// SetFormula implements host.Workbook.
func (b *Book) SetFormula(sheet string, cell host.Cell, formula string) error {
	name := cell.Name()
	if err := b.file.SetCellFormula(sheet, name, strings.TrimPrefix(formula, "=")); err != nil {
		return fmt.Errorf("could not set formula in %s!%s: %w", sheet, name, err)
	}
	return nil
}

// Format implements host.Workbook.
func (b *Book) Format(sheet string, r host.Range) host.RangeFormat {
	return &rangeFormat{file: b.file, sheet: sheet, rng: r}
}

// Sync implements host.Workbook by saving the file in place.
func (b *Book) Sync() error {
	if err := b.file.SaveAs(b.path); err != nil {
		return fmt.Errorf("could not save %s: %w", b.path, err)
	}
	return nil
}

// Discard implements host.Workbook by reloading the file from disk.
func (b *Book) Discard() error {
	f, err := excelize.OpenFile(b.path)
	if err != nil {
		return fmt.Errorf("could not reload %s: %w", b.path, err)
	}
	_ = b.file.Close()
	b.file = f
	return nil
}

// Close implements host.Workbook.
func (b *Book) Close() error {
	return b.file.Close()
}

// Loader connects a session to a workbook file.
type Loader struct {
	Path string
	// Selection, when set, overrides the selection stored in the file.
	Selection string
}

// Available reports whether the workbook file exists.
func (l Loader) Available() bool {
	info, err := os.Stat(l.Path)
	return err == nil && !info.IsDir()
}

// Ready opens the workbook.
func (l Loader) Ready(ctx context.Context) (host.Workbook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := Open(l.Path)
	if err != nil {
		return nil, err
	}
	if err := b.Select(l.Selection); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}
