package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/procflow/internal/model"
)

// QuerySource runs SQL in an in-memory DuckDB and maps the result set like a
// CSV file. Any DuckDB reader works as a source, e.g.
//
//	SELECT * FROM read_csv_auto('log.csv') WHERE activity <> 'noise'
type QuerySource struct {
	db *sql.DB
}

// OpenQuerySource starts an in-memory DuckDB.
func OpenQuerySource() (*QuerySource, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}
	return &QuerySource{db: db}, nil
}

// Close releases the database.
func (q *QuerySource) Close() error {
	return q.db.Close()
}

// Query runs query and returns one event per row.
func (q *QuerySource) Query(ctx context.Context, query string, cols Columns) ([]model.Event, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	m, err := newRowMapper(cols, header)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range values {
		ptrs[i] = &values[i]
	}
	rec := make([]string, len(header))

	var events []model.Event
	for row := 2; rows.Next(); row++ {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", row, err)
		}
		for i, v := range values {
			rec[i] = sqlString(v)
		}
		ev, err := m.event(rec, row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return events, nil
}

func sqlString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
