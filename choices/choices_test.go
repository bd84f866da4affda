package choices

import (
	"bytes"
	"sort"
	"testing"

	"github.com/xuri/excelize/v2"

	"pavecheck/frame"
)

func buildWorkbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatalf("rename sheet: %v", err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf.Bytes()
}

func TestExtractFromDataSheet(t *testing.T) {
	data := buildWorkbook(t, "data", [][]any{
		{" Aircraft Name ", "Subgrade soil type", "Runway"},
		{"B737-800", "CH", "09L"},
		{"A320", " CL ", "09R"},
		{"B737-800", "CH", "27"},
		{"", "CL", ""},
	})

	got, err := Extract(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	aircraft := got[frame.ColAircraftName]
	if len(aircraft) != 2 || aircraft[0] != "A320" || aircraft[1] != "B737-800" {
		t.Fatalf("unexpected aircraft choices: %v", aircraft)
	}
	soil := got[frame.ColSoilType]
	if len(soil) != 2 || soil[0] != "CH" || soil[1] != "CL" {
		t.Fatalf("unexpected soil choices: %v", soil)
	}
	if _, ok := got["Runway"]; ok {
		t.Fatal("non-target column must not appear in choices")
	}
	if _, ok := got[frame.ColFAACategory]; ok {
		t.Fatal("absent target column should be omitted, not empty")
	}
}

func TestExtractFallsBackToFirstSheet(t *testing.T) {
	data := buildWorkbook(t, "inventory", [][]any{
		{"Subgrade Categories (FAA)"},
		{"B"},
		{"A"},
		{"B"},
	})

	got, err := Extract(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	faa := got[frame.ColFAACategory]
	if len(faa) != 2 || faa[0] != "A" || faa[1] != "B" {
		t.Fatalf("unexpected FAA choices: %v", faa)
	}
}

func TestExtractSortedUniqueNonEmpty(t *testing.T) {
	data := buildWorkbook(t, "data", [][]any{
		{"Aircraft Name"},
		{"C-130"}, {"B747-8F"}, {"  "}, {"A380"}, {"C-130"}, {"B747-8F"},
	})

	got, err := Extract(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vals := got[frame.ColAircraftName]
	if !sort.StringsAreSorted(vals) {
		t.Fatalf("choices not sorted: %v", vals)
	}
	seen := map[string]bool{}
	for _, v := range vals {
		if v == "" {
			t.Fatal("empty string in choices")
		}
		if seen[v] {
			t.Fatalf("duplicate value %q", v)
		}
		seen[v] = true
	}
	if len(vals) != 3 {
		t.Fatalf("expected 3 unique values, got %v", vals)
	}
}

func TestExtractCSVFallback(t *testing.T) {
	csvData := []byte("Aircraft Name,Subgrade soil type\nB737-800,CH\nA320,CL\n")
	got, err := Extract(csvData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got[frame.ColAircraftName]) != 2 {
		t.Fatalf("unexpected aircraft choices: %v", got[frame.ColAircraftName])
	}
}

func TestExtractCSVWindows1252(t *testing.T) {
	// "Entraîné" with 0xEE/0xE9 in windows-1252, not valid UTF-8.
	raw := append([]byte("Subgrade soil type\nEntra"), 0xEE, 'n', 0xE9, '\n')
	got, err := Extract(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	soil := got[frame.ColSoilType]
	if len(soil) != 1 || soil[0] != "Entraîné" {
		t.Fatalf("unexpected decoded value: %v", soil)
	}
}

func TestExtractGarbageIsRecoverableError(t *testing.T) {
	if _, err := Extract([]byte(`"unterminated quote`)); err == nil {
		t.Fatal("expected error for unreadable bytes")
	}
	if _, err := Extract(nil); err == nil {
		t.Fatal("expected error for empty upload")
	}
}
