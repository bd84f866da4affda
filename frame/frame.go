package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Column names with special handling during reconciliation.
const (
	ColAircraftName = "Aircraft Name"
	ColGrossWeight  = "Gross Wt. (lbs)"
	ColSaturation   = "Degree of saturation"
	ColCBR          = "CBR"
	ColSoilType     = "Subgrade soil type"
	ColFAACategory  = "Subgrade Categories (FAA)"
)

var ErrNoAircraftSelected = errors.New("no aircraft selected")

// numericFields are coerced to float64 before reindexing. Values that fail
// to parse are passed through unchanged.
var numericFields = []string{ColGrossWeight, ColSaturation, ColCBR}

// Row is one proposed prediction instance keyed by column name.
type Row map[string]any

// Table holds rows under a fixed column order.
type Table struct {
	Columns []string
	Rows    []Row
}

func (t *Table) Len() int { return len(t.Rows) }

// Value returns the cell for a column, nil when missing.
func (t *Table) Value(row int, column string) any {
	if row < 0 || row >= len(t.Rows) {
		return nil
	}
	return t.Rows[row][column]
}

// HasColumn reports whether the table's schema includes the column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// CoerceNumeric applies best-effort float conversion to the known numeric
// fields of a row. The saturation field additionally has a trailing percent
// sign stripped first. The input row is not modified.
func CoerceNumeric(row Row) Row {
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	if v, ok := out[ColSaturation].(string); ok {
		out[ColSaturation] = strings.TrimSpace(strings.ReplaceAll(v, "%", ""))
	}
	for _, k := range numericFields {
		v, ok := out[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val == "" {
				continue
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				out[k] = f
			}
		case int:
			out[k] = float64(val)
		case int64:
			out[k] = float64(val)
		}
	}
	return out
}

// Reindex builds a table whose column order is exactly the given schema.
// Row keys outside the schema are dropped; schema columns missing from a row
// are nil.
func Reindex(rows []Row, columns []string) *Table {
	out := &Table{Columns: append([]string(nil), columns...)}
	for _, r := range rows {
		nr := make(Row, len(columns))
		for _, c := range columns {
			if v, ok := r[c]; ok {
				nr[c] = v
			} else {
				nr[c] = nil
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out
}

// ExpandAircraft produces one row per selected aircraft, holding every other
// field of base constant. When the schema does not declare the aircraft
// column, exactly one row is produced and the selection is ignored. When it
// does and the selection is empty, the submission is invalid.
func ExpandAircraft(base Row, selected []string, schemaHasAircraft bool) ([]Row, error) {
	if !schemaHasAircraft {
		r := make(Row, len(base))
		for k, v := range base {
			r[k] = v
		}
		return []Row{r}, nil
	}
	if len(selected) == 0 {
		return nil, ErrNoAircraftSelected
	}
	rows := make([]Row, 0, len(selected))
	for _, name := range selected {
		r := make(Row, len(base)+1)
		for k, v := range base {
			r[k] = v
		}
		r[ColAircraftName] = name
		rows = append(rows, r)
	}
	return rows, nil
}

// SplitCommaList parses a comma-separated free-text aircraft entry.
func SplitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FormatCell renders a cell for display.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
