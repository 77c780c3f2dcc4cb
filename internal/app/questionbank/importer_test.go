package questionbank

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/cittadino-app/cittadino/internal/domain"
	"github.com/cittadino-app/cittadino/internal/infra/sqlite"
)

func newStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeRows(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, r := range rows {
		if r == nil {
			continue
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		vals := make([]interface{}, len(r))
		for j, v := range r {
			vals[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "questions.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseRow(t *testing.T) {
	tests := []struct {
		name    string
		row     []string
		wantErr string
		correct int
		options int
	}{
		{"four options", []string{"Storia", "facile", "Capitale?", "Roma", "Milano", "Torino", "Napoli", "a", "Dal 1871"}, "", 0, 4},
		{"two options", []string{"storia", "advanced", "Vero?", "sì", "no", "", "", "B"}, "", 1, 2},
		{"missing category", []string{"", "beginner", "P?", "a", "b", "", "", "A"}, "missing category", 0, 0},
		{"missing prompt", []string{"storia", "beginner", "", "a", "b", "", "", "A"}, "missing prompt", 0, 0},
		{"bad difficulty", []string{"storia", "expert", "P?", "a", "b", "", "", "A"}, "unknown difficulty", 0, 0},
		{"one option", []string{"storia", "beginner", "P?", "a", "", "", "", "A"}, "at least 2 options", 0, 0},
		{"gap in options", []string{"storia", "beginner", "P?", "a", "", "c", "", "A"}, "option B is empty", 0, 0},
		{"letter out of range", []string{"storia", "beginner", "P?", "a", "b", "", "", "C"}, "correct answer", 0, 0},
		{"letter not a letter", []string{"storia", "beginner", "P?", "a", "b", "", "", "1"}, "correct answer", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := ParseRow(tt.row)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseRow() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRow() error: %v", err)
			}
			if q.CorrectIndex != tt.correct || len(q.Options) != tt.options {
				t.Errorf("question = %+v", q)
			}
			if q.Category != "storia" {
				t.Errorf("category = %q, want lowercased", q.Category)
			}
		})
	}
}

func TestImportFile_ReportsBadRows(t *testing.T) {
	db := newStore(t)
	path := writeRows(t, [][]string{
		Header,
		{"costituzione", "beginner", "Quanti articoli?", "139", "100", "", "", "A", "139 articoli"},
		{"storia", "expert", "Anno?", "1946", "1948", "", "", "A"},
		{"storia", "intermedio", "Repubblica dal?", "1946", "1948", "", "", "A"},
		nil,
		{"storia", "beginner", "Solo una", "x"},
	})

	res, err := NewImporter(DefaultImportConfig(), db).ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile() error: %v", err)
	}
	if res.Imported != 2 || res.Processed != 4 || res.Skipped != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Errors) != 2 || res.Errors[0].Row != 3 || res.Errors[1].Row != 6 {
		t.Errorf("errors = %+v, want rows 3 and 6", res.Errors)
	}

	n, _ := db.QuestionCount(context.Background())
	if n != 2 {
		t.Errorf("QuestionCount() = %d, want 2", n)
	}
}

func TestWorkbookRoundTrip(t *testing.T) {
	db := newStore(t)
	path := filepath.Join(t.TempDir(), "bank.xlsx")
	in := []domain.Question{
		{Category: "storia", Difficulty: domain.DifficultyAdvanced, Prompt: "Primo presidente?", Options: []string{"De Nicola", "Einaudi", "Gronchi"}, CorrectIndex: 0, Explanation: "Enrico De Nicola"},
	}
	if err := WriteWorkbook(path, in); err != nil {
		t.Fatalf("WriteWorkbook() error: %v", err)
	}

	res, err := NewImporter(DefaultImportConfig(), db).ImportFile(context.Background(), path)
	if err != nil || res.Imported != 1 {
		t.Fatalf("ImportFile() = %+v, %v", res, err)
	}
	// Importing again updates in place.
	if _, err := NewImporter(DefaultImportConfig(), db).ImportFile(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	q, err := db.PickQuestion(context.Background(), "storia", domain.DifficultyAdvanced)
	if err != nil {
		t.Fatal(err)
	}
	if q.Prompt != in[0].Prompt || len(q.Options) != 3 || q.Explanation != in[0].Explanation {
		t.Errorf("stored question = %+v", q)
	}
	if n, _ := db.QuestionCount(context.Background()); n != 1 {
		t.Errorf("QuestionCount() = %d after re-import", n)
	}
}

func TestImportFile_MissingWorkbook(t *testing.T) {
	_, err := NewImporter(DefaultImportConfig(), newStore(t)).ImportFile(context.Background(), filepath.Join(t.TempDir(), "none.xlsx"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
