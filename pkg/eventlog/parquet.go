package eventlog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/procflow/internal/model"
)

const parquetBatchSize = 8192

// decodeParquet reads a whole Parquet file through Arrow and maps every
// row with the column mapping used for CSV.
func decodeParquet(ctx context.Context, r io.Reader, cols Columns) ([]model.Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{
		BatchSize: parquetBatchSize,
	}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet table: %w", err)
	}
	defer table.Release()

	schema := table.Schema()
	header := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		header[i] = f.Name
	}
	m, err := newRowMapper(cols, header)
	if err != nil {
		return nil, err
	}

	tr := array.NewTableReader(table, parquetBatchSize)
	defer tr.Release()

	var events []model.Event
	row := 1
	rec := make([]string, len(header))
	for tr.Next() {
		batch := tr.Record()
		for i := 0; i < int(batch.NumRows()); i++ {
			row++
			for c := range rec {
				rec[c] = columnString(batch.Column(c), i)
			}
			ev, err := m.event(rec, row)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

// columnString extracts a string value from an Arrow array at the given row.
func columnString(col arrow.Array, row int) string {
	if col.IsNull(row) {
		return ""
	}
	switch c := col.(type) {
	case *array.String:
		return c.Value(row)
	case *array.LargeString:
		return c.Value(row)
	case *array.Int64:
		return strconv.FormatInt(c.Value(row), 10)
	case *array.Int32:
		return strconv.FormatInt(int64(c.Value(row)), 10)
	case *array.Float64:
		return strconv.FormatFloat(c.Value(row), 'f', -1, 64)
	case *array.Boolean:
		return strconv.FormatBool(c.Value(row))
	case *array.Timestamp:
		unit := c.DataType().(*arrow.TimestampType).Unit
		return c.Value(row).ToTime(unit).UTC().Format(time.RFC3339Nano)
	default:
		return col.ValueStr(row)
	}
}
