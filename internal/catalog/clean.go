// internal/catalog/clean.go
package catalog

import (
	"fmt"
	"strings"

	"github.com/Annany2002/dataspace-backend/internal/domain"
)

// Cleaner derives the working copy of a freshly fetched table. It must not
// modify its input.
type Cleaner func(raw *domain.Table) *domain.Table

// DefaultCleaner trims string cells, then drops rows whose cells are all
// null and rows that exactly repeat an earlier row.
func DefaultCleaner(raw *domain.Table) *domain.Table {
	out := &domain.Table{
		Columns: append([]string(nil), raw.Columns...),
		Rows:    make([][]any, 0, len(raw.Rows)),
	}
	seen := make(map[string]struct{}, len(raw.Rows))

	for _, row := range raw.Rows {
		cleaned := make([]any, len(row))
		allNull := true
		for i, v := range row {
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
			}
			if v != nil {
				allNull = false
			}
			cleaned[i] = v
		}
		if allNull {
			continue
		}
		key := rowKey(cleaned)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Rows = append(out.Rows, cleaned)
	}
	return out
}

// rowKey includes the dynamic type so int64(1) and "1" stay distinct.
func rowKey(row []any) string {
	var b strings.Builder
	for _, v := range row {
		fmt.Fprintf(&b, "%T:%v\x1f", v, v)
	}
	return b.String()
}
