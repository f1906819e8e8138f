package eventlog

import (
	"strconv"
	"strings"
	"time"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/errors"
)

// Columns maps tabular column names onto event fields. Each field also
// accepts a list of common aliases (XES-style names, camelCase, snake_case).
type Columns struct {
	CaseID          string `yaml:"case_id"`
	Activity        string `yaml:"activity"`
	Timestamp       string `yaml:"timestamp"`
	Resource        string `yaml:"resource"`
	Department      string `yaml:"department"`
	TimestampFormat string `yaml:"timestamp_format"`
}

// DefaultColumns returns the canonical column names.
func DefaultColumns() Columns {
	return Columns{
		CaseID:     "caseId",
		Activity:   "activity",
		Timestamp:  "timestamp",
		Resource:   "resource",
		Department: "department",
	}
}

var (
	caseIDAliases     = []string{"case_id", "case:concept:name", "Case ID", "CaseID", "caseId"}
	activityAliases   = []string{"activity", "concept:name", "Activity", "event"}
	timestampAliases  = []string{"timestamp", "time:timestamp", "Timestamp", "time"}
	resourceAliases   = []string{"resource", "org:resource", "Resource", "actor"}
	departmentAliases = []string{"department", "org:group", "Department", "dept"}
)

// rowMapper turns string rows into events once the header is known.
// Columns that are not event fields become attributes.
type rowMapper struct {
	cols       Columns
	header     []string
	caseID     int
	activity   int
	timestamp  int
	resource   int
	department int
}

func newRowMapper(cols Columns, header []string) (*rowMapper, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}

	m := &rowMapper{cols: cols, header: header}
	var ok bool
	if m.caseID, ok = findColumnIndex(idx, cols.CaseID, caseIDAliases...); !ok {
		return nil, errors.MissingColumn(cols.CaseID, header)
	}
	if m.activity, ok = findColumnIndex(idx, cols.Activity, activityAliases...); !ok {
		return nil, errors.MissingColumn(cols.Activity, header)
	}
	if m.timestamp, ok = findColumnIndex(idx, cols.Timestamp, timestampAliases...); !ok {
		return nil, errors.MissingColumn(cols.Timestamp, header)
	}
	m.resource, _ = findColumnIndex(idx, cols.Resource, resourceAliases...)
	m.department, _ = findColumnIndex(idx, cols.Department, departmentAliases...)
	return m, nil
}

// findColumnIndex tries the configured name first, then the aliases.
func findColumnIndex(idx map[string]int, name string, aliases ...string) (int, bool) {
	if name != "" {
		if i, ok := idx[name]; ok {
			return i, true
		}
	}
	for _, a := range aliases {
		if i, ok := idx[a]; ok {
			return i, true
		}
	}
	return -1, false
}

// event maps one data row. row is 1-based and counts the header.
func (m *rowMapper) event(cols []string, row int) (model.Event, error) {
	get := func(i int) string {
		if i < 0 || i >= len(cols) {
			return ""
		}
		return strings.TrimSpace(cols[i])
	}

	ev := model.Event{
		CaseID:     get(m.caseID),
		Activity:   get(m.activity),
		Resource:   get(m.resource),
		Department: get(m.department),
	}
	if ev.CaseID == "" {
		return ev, errors.MissingField("caseId", row)
	}
	if ev.Activity == "" {
		return ev, errors.MissingField("activity", row)
	}

	raw := get(m.timestamp)
	ts, err := parseTimestamp(raw, m.cols.TimestampFormat)
	if err != nil {
		return ev, errors.InvalidTimestamp(raw, row)
	}
	ev.Timestamp = ts

	for i, h := range m.header {
		if i == m.caseID || i == m.activity || i == m.timestamp || i == m.resource || i == m.department {
			continue
		}
		if v := get(i); v != "" {
			if ev.Attributes == nil {
				ev.Attributes = make(map[string]any)
			}
			ev.Attributes[strings.TrimSpace(h)] = v
		}
	}
	return ev, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"02.01.2006 15:04:05",
}

var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// parseTimestamp accepts the configured layout, common textual layouts,
// Unix epoch milliseconds and Excel serial dates.
func parseTimestamp(s, layout string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New(errors.CodeInvalidTimestamp, "empty timestamp")
	}
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil && n > 0 {
		// Excel serials are small day counts; anything larger is epoch ms.
		if n < 1e6 {
			return excelEpoch.Add(time.Duration(n * float64(24*time.Hour))).Round(time.Second), nil
		}
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	return time.Time{}, errors.New(errors.CodeInvalidTimestamp, "unrecognised timestamp").WithContext("value", s)
}
