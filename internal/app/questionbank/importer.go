// Package questionbank loads exam questions from spreadsheets.
//
// Workbook layout, one question per row after the header:
//
//	A category  B difficulty  C prompt  D–G options A–D  H correct letter  I explanation
//
// Options C and D may be left empty. Rows that fail validation are reported
// with their spreadsheet row number and skipped; the rest are imported.
package questionbank

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/cittadino-app/cittadino/internal/domain"
)

// Header is the first row of an import workbook.
var Header = []string{
	"category", "difficulty", "prompt",
	"option_a", "option_b", "option_c", "option_d",
	"correct", "explanation",
}

const (
	colCategory = iota
	colDifficulty
	colPrompt
	colOptionA
	colOptionD = colOptionA + 3
	colCorrect = colOptionD + 1
	colExplain = colCorrect + 1
)

// ImportConfig controls which part of the workbook is read.
type ImportConfig struct {
	Sheet    string // empty = first sheet
	StartRow int    // 1-based; rows above are headers
}

// DefaultImportConfig skips a single header row on the first sheet.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{StartRow: 2}
}

// RowError describes a rejected row.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string { return fmt.Sprintf("row %d: %s", e.Row, e.Reason) }

// ImportResult summarizes an import.
type ImportResult struct {
	Processed int        `json:"processed"`
	Imported  int        `json:"imported"`
	Skipped   int        `json:"skipped"` // blank rows
	Errors    []RowError `json:"errors"`
}

// Importer writes parsed questions to a store.
type Importer struct {
	cfg   ImportConfig
	store domain.QuestionStore
}

// NewImporter creates an importer.
func NewImporter(cfg ImportConfig, store domain.QuestionStore) *Importer {
	if cfg.StartRow < 1 {
		cfg.StartRow = 1
	}
	return &Importer{cfg: cfg, store: store}
}

// ImportFile reads path and stores every valid row. Re-importing a question
// with the same category and prompt updates it.
func (im *Importer) ImportFile(ctx context.Context, path string) (ImportResult, error) {
	res := ImportResult{Errors: []RowError{}}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return res, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := im.cfg.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return res, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	for i, row := range rows {
		rowNum := i + 1
		if rowNum < im.cfg.StartRow {
			continue
		}
		if blank(row) {
			res.Skipped++
			continue
		}
		res.Processed++

		q, err := ParseRow(row)
		if err != nil {
			res.Errors = append(res.Errors, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		if _, err := im.store.InsertQuestion(ctx, q); err != nil {
			return res, fmt.Errorf("row %d: %w", rowNum, err)
		}
		res.Imported++
	}

	log.Printf("[questionbank] %s: %d imported, %d rejected, %d blank",
		path, res.Imported, len(res.Errors), res.Skipped)
	return res, nil
}

// ParseRow converts one spreadsheet row into a question.
func ParseRow(row []string) (domain.Question, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	q := domain.Question{
		Category:    strings.ToLower(cell(colCategory)),
		Prompt:      cell(colPrompt),
		Explanation: cell(colExplain),
	}
	if q.Category == "" {
		return q, fmt.Errorf("missing category")
	}
	if q.Prompt == "" {
		return q, fmt.Errorf("missing prompt")
	}

	diff, err := domain.ParseDifficulty(cell(colDifficulty))
	if err != nil {
		return q, fmt.Errorf("unknown difficulty %q", cell(colDifficulty))
	}
	q.Difficulty = diff

	// Options must be contiguous from A.
	for c := colOptionA; c <= colOptionD; c++ {
		opt := cell(c)
		if opt == "" {
			for rest := c + 1; rest <= colOptionD; rest++ {
				if cell(rest) != "" {
					return q, fmt.Errorf("option %c is empty but %c is set", 'A'+rune(c-colOptionA), 'A'+rune(rest-colOptionA))
				}
			}
			break
		}
		q.Options = append(q.Options, opt)
	}
	if len(q.Options) < 2 {
		return q, fmt.Errorf("need at least 2 options, got %d", len(q.Options))
	}

	letter := strings.ToUpper(cell(colCorrect))
	if len(letter) != 1 || letter[0] < 'A' || int(letter[0]-'A') >= len(q.Options) {
		return q, fmt.Errorf("correct answer %q is not one of A–%c", cell(colCorrect), 'A'+rune(len(q.Options)-1))
	}
	q.CorrectIndex = int(letter[0] - 'A')

	if err := q.Validate(); err != nil {
		return q, err
	}
	return q, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ─── Templates ──────────────────────────────────────────────────────────────

// WriteWorkbook saves questions to path in the import layout. With no
// questions it produces an empty template.
func WriteWorkbook(path string, questions []domain.Question) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &Header); err != nil {
		return err
	}
	for i, q := range questions {
		row := make([]interface{}, len(Header))
		for j := range row {
			row[j] = ""
		}
		row[colCategory] = q.Category
		row[colDifficulty] = string(q.Difficulty)
		row[colPrompt] = q.Prompt
		for j := 0; j < len(q.Options) && colOptionA+j <= colOptionD; j++ {
			row[colOptionA+j] = q.Options[j]
		}
		row[colCorrect] = string(rune('A' + q.CorrectIndex))
		row[colExplain] = q.Explanation

		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cellRef, &row); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
