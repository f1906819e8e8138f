package eventlog

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/errors"
)

// decodeXLSX reads the first sheet of a workbook; the first row is the header.
func decodeXLSX(r io.Reader, cols Columns) ([]model.Event, error) {
	xl, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer xl.Close()

	sheet := xl.GetSheetName(0)
	if sheet == "" {
		sheets := xl.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New(errors.CodeInvalidFormat, "no sheets found in xlsx file")
		}
		sheet = sheets[0]
	}

	rows, err := xl.Rows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	m, err := newRowMapper(cols, header)
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for row := 2; rows.Next(); row++ {
		rec, err := rows.Columns()
		if err != nil {
			return nil, errors.ParseError("xlsx", row, err)
		}
		if len(rec) == 0 || isBlank(rec) {
			continue
		}
		ev, err := m.event(rec, row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return events, nil
}
