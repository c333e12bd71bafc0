// internal/catalog/preview.go
package catalog

import (
	"math"

	"github.com/Annany2002/dataspace-backend/internal/domain"
)

const (
	// PreviewRows is how many rows a load_tables preview carries.
	PreviewRows = 10

	EmptyTableMessage = "No data available (table is empty)."
)

// Records converts the first n rows (all rows when n <= 0) into
// column-keyed records with non-finite floats replaced by nil.
func Records(t *domain.Table, n int) []map[string]any {
	rows := t.Rows
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		rec := make(map[string]any, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				rec[col] = finite(row[i])
			} else {
				rec[col] = nil
			}
		}
		out = append(out, rec)
	}
	return out
}

// Preview returns the first PreviewRows records, or EmptyTableMessage.
func Preview(t *domain.Table) any {
	if len(t.Rows) == 0 {
		return EmptyTableMessage
	}
	return Records(t, PreviewRows)
}

func finite(v any) any {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return nil
		}
	}
	return v
}
