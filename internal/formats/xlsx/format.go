package xlsx

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/klytics/xla/internal/host"
)

// excelize border style index for a thin line.
const thinBorder = 1

// rangeFormat edits cell styles. Each cell keeps its existing style and only
// the requested property changes. Styles for the whole range are built
// before any cell is touched so that a failure leaves the range unchanged.
type rangeFormat struct {
	file  *excelize.File
	sheet string
	rng   host.Range
}

type restyle struct {
	name       string
	prev, next int
}

func (f *rangeFormat) each(fn func(row, col int, s *excelize.Style)) error {
	plan := make([]restyle, 0, f.rng.Size())
	err := f.rng.Each(func(c host.Cell) error {
		name := c.Name()
		id, err := f.file.GetCellStyle(f.sheet, name)
		if err != nil {
			return fmt.Errorf("could not read style of %s: %w", name, err)
		}
		style, err := f.file.GetStyle(id)
		if err != nil || style == nil {
			style = &excelize.Style{}
		}
		fn(c.Row-f.rng.FirstRow, c.Col-f.rng.FirstCol, style)

		next, err := f.file.NewStyle(style)
		if err != nil {
			return fmt.Errorf("could not create style for %s: %w", name, err)
		}
		plan = append(plan, restyle{name: name, prev: id, next: next})
		return nil
	})
	if err != nil {
		return err
	}

	for i, r := range plan {
		if err := f.file.SetCellStyle(f.sheet, r.name, r.name, r.next); err != nil {
			for _, done := range plan[:i] {
				_ = f.file.SetCellStyle(f.sheet, done.name, done.name, done.prev)
			}
			return fmt.Errorf("could not apply style to %s: %w", r.name, err)
		}
	}
	return nil
}

func font(s *excelize.Style) *excelize.Font {
	if s.Font == nil {
		s.Font = &excelize.Font{}
	}
	return s.Font
}

func (f *rangeFormat) SetBold(v bool) error {
	return f.each(func(_, _ int, s *excelize.Style) { font(s).Bold = v })
}

func (f *rangeFormat) SetItalic(v bool) error {
	return f.each(func(_, _ int, s *excelize.Style) { font(s).Italic = v })
}

func (f *rangeFormat) SetFill(color string) error {
	c, err := host.NormalizeColor(color)
	if err != nil {
		return err
	}
	return f.each(func(_, _ int, s *excelize.Style) {
		s.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{c}}
	})
}

func (f *rangeFormat) SetFontColor(color string) error {
	c, err := host.NormalizeColor(color)
	if err != nil {
		return err
	}
	return f.each(func(_, _ int, s *excelize.Style) { font(s).Color = c })
}

func (f *rangeFormat) SetFontSize(points float64) error {
	if err := host.ValidateFontSize(points); err != nil {
		return err
	}
	return f.each(func(_, _ int, s *excelize.Style) { font(s).Size = points })
}

func (f *rangeFormat) SetNumberFormat(codes [][]string) error {
	if err := host.ValidateGrid(f.rng, codes); err != nil {
		return err
	}
	return f.each(func(r, c int, s *excelize.Style) {
		code := codes[r][c]
		s.NumFmt = 0
		s.CustomNumFmt = nil
		if !strings.EqualFold(code, "General") {
			s.CustomNumFmt = &code
		}
	})
}

func (f *rangeFormat) SetHorizontalAlignment(alignments [][]string) error {
	if err := host.ValidateGrid(f.rng, alignments); err != nil {
		return err
	}
	for _, row := range alignments {
		for _, a := range row {
			if err := host.ValidateAlignment(a); err != nil {
				return err
			}
		}
	}
	return f.each(func(r, c int, s *excelize.Style) {
		if s.Alignment == nil {
			s.Alignment = &excelize.Alignment{}
		}
		s.Alignment.Horizontal = alignments[r][c]
	})
}

func (f *rangeFormat) SetOuterBorders(border host.Border) error {
	if border.Style != host.BorderThin {
		return fmt.Errorf("unsupported border style %q", border.Style)
	}
	color, err := host.NormalizeColor(border.Color)
	if err != nil {
		return err
	}
	rows, cols := f.rng.Rows(), f.rng.Cols()
	return f.each(func(r, c int, s *excelize.Style) {
		var edges []string
		if r == 0 {
			edges = append(edges, "top")
		}
		if r == rows-1 {
			edges = append(edges, "bottom")
		}
		if c == 0 {
			edges = append(edges, "left")
		}
		if c == cols-1 {
			edges = append(edges, "right")
		}
		for _, edge := range edges {
			s.Border = setBorder(s.Border, excelize.Border{Type: edge, Color: color, Style: thinBorder})
		}
	})
}

func setBorder(borders []excelize.Border, b excelize.Border) []excelize.Border {
	for i := range borders {
		if borders[i].Type == b.Type {
			borders[i] = b
			return borders
		}
	}
	return append(borders, b)
}
