package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/errors"
)

// rawEvent is the wire shape of one JSON event. It accepts the canonical
// camelCase keys, snake_case case ids and the legacy "attrs" map.
type rawEvent struct {
	CaseID      string          `json:"caseId"`
	CaseIDSnake string          `json:"case_id"`
	Activity    string          `json:"activity"`
	Timestamp   json.RawMessage `json:"timestamp"`
	Resource    string          `json:"resource"`
	Department  string          `json:"department"`
	Attributes  map[string]any  `json:"attributes"`
	Attrs       map[string]any  `json:"attrs"`
}

func (r rawEvent) event(row int, layout string) (model.Event, error) {
	ev := model.Event{
		CaseID:      r.CaseID,
		Activity:    r.Activity,
		Resource:    r.Resource,
		Department:  r.Department,
		Attributes:  r.Attributes,
		LegacyAttrs: r.Attrs,
	}
	if ev.CaseID == "" {
		ev.CaseID = r.CaseIDSnake
	}
	if ev.CaseID == "" {
		return ev, errors.MissingField("caseId", row)
	}
	if ev.Activity == "" {
		return ev, errors.MissingField("activity", row)
	}

	raw := string(bytes.TrimSpace(r.Timestamp))
	if raw == "" || raw == "null" {
		return ev, errors.MissingField("timestamp", row)
	}
	if s, err := strconv.Unquote(raw); err == nil {
		raw = s
	}
	ts, err := parseTimestamp(raw, layout)
	if err != nil {
		return ev, errors.InvalidTimestamp(raw, row)
	}
	ev.Timestamp = ts
	return ev, nil
}

// decodeJSON reads either a JSON array of events or a stream of
// concatenated/newline-delimited event objects.
func decodeJSON(r io.Reader, layout string) ([]model.Event, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read json: %w", err)
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var raws []rawEvent
		if err := dec.Decode(&raws); err != nil {
			return nil, errors.ParseError("json", 0, err)
		}
		events := make([]model.Event, 0, len(raws))
		for i, raw := range raws {
			ev, err := raw.event(i+1, layout)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		return events, nil
	}

	var events []model.Event
	for row := 1; ; row++ {
		var raw rawEvent
		if err := dec.Decode(&raw); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.ParseError("jsonl", row, err)
		}
		ev, err := raw.event(row, layout)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
