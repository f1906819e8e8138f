package eventlog

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/errors"
)

// decodeCSV reads a delimited file with a header row. A zero delimiter
// means comma.
func decodeCSV(r io.Reader, cols Columns, delimiter rune) ([]model.Event, error) {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	// ReuseRecord shares the backing slice with later reads.
	header = append([]string(nil), header...)

	m, err := newRowMapper(cols, header)
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.ParseError("csv", row, err)
		}
		if isBlank(rec) {
			continue
		}
		ev, err := m.event(rec, row)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if f != "" {
			return false
		}
	}
	return true
}
