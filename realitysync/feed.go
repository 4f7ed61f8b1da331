package realitysync

import (
	"context"
	"fmt"
	"time"

	"github.com/smartsetter/ssot_backend/config"
	"github.com/smartsetter/ssot_backend/models"
)

const feedBatchSize = 1000

// QueryTableBatches streams a feed table in batches, invoking handle with up
// to feedBatchSize rows at a time. Column values arrive as strings except
// time.Time; the handler decides typing through the RealityRow accessors.
func QueryTableBatches(ctx context.Context, query string, args []any, handle func([]models.RealityRow) error) error {
	rows, err := config.GuardedQuery(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	batch := make([]models.RealityRow, 0, feedBatchSize)
	values := make([]any, len(columns))
	pointers := make([]any, len(columns))
	for i := range values {
		pointers[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(pointers...); err != nil {
			return err
		}
		row := make(models.RealityRow, len(columns))
		for i, column := range columns {
			row[column] = normalizeFeedValue(values[i])
		}
		batch = append(batch, row)

		if len(batch) == feedBatchSize {
			if err := handle(batch); err != nil {
				return err
			}
			batch = make([]models.RealityRow, 0, feedBatchSize)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return handle(batch)
	}
	return nil
}

func normalizeFeedValue(v any) any {
	switch typed := v.(type) {
	case []byte:
		return string(typed)
	case time.Time:
		return typed
	default:
		return v
	}
}

// FullTableQuery selects every row of a feed table.
func FullTableQuery(table string) string {
	return fmt.Sprintf("SELECT * FROM %s", table)
}

// UpdatedSinceQuery selects rows modified after the watermark. The feed
// stamps every row with UpdatedDate.
func UpdatedSinceQuery(table string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE UpdatedDate >= ?", table)
}
