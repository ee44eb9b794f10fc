package sheet

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/klytics/xla/internal/app"
	"github.com/klytics/xla/internal/formats/xlsx"
	"github.com/klytics/xla/internal/output"
)

type bookInput struct {
	Sheets []bookSheet `json:"sheets"`
}

type bookSheet struct {
	Name    string   `json:"name"`
	Headers []string `json:"headers,omitempty"`
	Rows    [][]any  `json:"rows"`
}

type bookJSONOutput struct {
	File   string `json:"file"`
	Sheets int    `json:"sheets"`
	Rows   int    `json:"rows"`
}

// NewBookCommand returns the book command group.
func NewBookCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Create workbooks to try the assistant on",
	}
	cmd.AddCommand(newBookNewCommand())
	return cmd
}

func newBookNewCommand() *cobra.Command {
	var dataPath string

	cmd := &cobra.Command{
		Use:   "new <book.xlsx>",
		Short: "Create a workbook from JSON data",
		Long: `Creates an .xlsx file from structured JSON data. The first sheet is active.

JSON format:
  {"sheets": [{"name": "Ventes", "headers": ["Produit","Prix"], "rows": [["Stylo", 1.5]]}]}

A snapshot printed with 'xla snapshot --json' is accepted as well.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd)
			if err != nil {
				return err
			}
			path := args[0]
			if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
				path += ".xlsx"
			}
			if dataPath == "" {
				return fmt.Errorf("--data is required: provide a JSON data file or - for stdin\n\nExample: xla book new ventes.xlsx --data ventes.json")
			}

			var raw []byte
			if dataPath == "-" {
				raw, err = io.ReadAll(cmd.InOrStdin())
			} else {
				raw, err = os.ReadFile(dataPath)
			}
			if err != nil {
				return fmt.Errorf("could not read data: %w", err)
			}

			sheets, err := decodeBook(raw)
			if err != nil {
				return err
			}
			if err := xlsx.WriteFile(path, sheets...); err != nil {
				return err
			}

			rows := 0
			for _, s := range sheets {
				rows += len(s.Rows)
			}
			if a.JSON {
				return output.PrintJSON("book new", bookJSONOutput{File: path, Sheets: len(sheets), Rows: rows})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d sheets, %d rows)\n", path, len(sheets), rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "Path to JSON data file (or - for stdin)")
	return cmd
}

// decodeBook accepts the sheets format or a snapshot envelope.
func decodeBook(raw []byte) ([]xlsx.Sheet, error) {
	var input bookInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("invalid JSON data: %w (expected {\"sheets\": [...]})", err)
	}
	if len(input.Sheets) == 0 {
		var env struct {
			Data struct {
				ActiveSheet struct {
					Name    string     `json:"name"`
					Headers []string   `json:"headers"`
					Rows    [][]string `json:"rows"`
				} `json:"activeSheet"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &env); err == nil && env.Data.ActiveSheet.Name != "" {
			s := bookSheet{Name: env.Data.ActiveSheet.Name, Headers: env.Data.ActiveSheet.Headers}
			for _, row := range env.Data.ActiveSheet.Rows {
				cells := make([]any, len(row))
				for i, v := range row {
					cells[i] = v
				}
				s.Rows = append(s.Rows, cells)
			}
			input.Sheets = []bookSheet{s}
		}
	}
	if len(input.Sheets) == 0 {
		return nil, fmt.Errorf("no sheets in data: expected {\"sheets\": [...]}")
	}

	sheets := make([]xlsx.Sheet, 0, len(input.Sheets))
	for _, s := range input.Sheets {
		var rows [][]any
		if len(s.Headers) > 0 {
			header := make([]any, len(s.Headers))
			for i, h := range s.Headers {
				header[i] = h
			}
			rows = append(rows, header)
		}
		rows = append(rows, s.Rows...)
		sheets = append(sheets, xlsx.Sheet{Name: s.Name, Rows: rows})
	}
	return sheets, nil
}
