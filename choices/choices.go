// Package choices derives dropdown value lists from an uploaded reference
// spreadsheet. Extraction is tolerant by design: missing sheets and missing
// columns are valid states, and any top-level read failure is reported to
// the caller as a recoverable condition.
package choices

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"pavecheck/frame"
)

// SheetName is the preferred worksheet; extraction falls back to the first
// sheet when it is absent.
const SheetName = "data"

// TargetColumns are the categorical fields whose distinct values become
// dropdown options. Columns absent from the sheet are simply omitted.
var TargetColumns = []string{
	frame.ColAircraftName,
	frame.ColSoilType,
	frame.ColFAACategory,
}

// Extract parses spreadsheet bytes (xlsx, or csv as a fallback format) and
// returns sorted, deduplicated, non-empty values per target column.
func Extract(data []byte) (map[string][]string, error) {
	rows, err := readRows(data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("spreadsheet has no rows")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	out := make(map[string][]string)
	for _, target := range TargetColumns {
		idx := -1
		for i, h := range headers {
			if h == target {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		seen := make(map[string]struct{})
		var vals []string
		for _, row := range rows[1:] {
			if idx >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[idx])
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			vals = append(vals, v)
		}
		if len(vals) > 0 {
			sort.Strings(vals)
			out[target] = vals
		}
	}
	return out, nil
}

func readRows(data []byte) ([][]string, error) {
	if rows, err := readExcel(data); err == nil {
		return rows, nil
	} else if !errors.Is(err, errNotExcel) {
		return nil, err
	}
	return readCSV(data)
}

var errNotExcel = errors.New("not an excel workbook")

func readExcel(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, errNotExcel
	}
	defer f.Close()

	sheet := SheetName
	rows, err := f.GetRows(sheet)
	if err != nil {
		// fallback: first sheet
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = list[0]
		rows, err = f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	var r io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		r = transform.NewReader(r, charmap.Windows1252.NewDecoder())
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return rows, nil
}
