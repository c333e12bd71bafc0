// internal/catalog/fetch.go
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Annany2002/dataspace-backend/internal/core"
	"github.com/Annany2002/dataspace-backend/internal/domain"
)

// fetchTable runs query and materializes every row. []byte cells become strings.
func fetchTable(ctx context.Context, db *sql.DB, query string) (*domain.Table, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("database error fetching rows: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed processing results: %w", err)
	}
	labels := make([]string, len(columns))
	for i, c := range columns {
		labels[i] = core.NormalizeColumnLabel(c)
	}

	table := &domain.Table{Columns: labels, Rows: make([][]any, 0)}
	for rows.Next() {
		scanArgs := make([]any, len(columns))
		values := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed reading row data: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed processing all rows: %w", err)
	}
	return table, nil
}
