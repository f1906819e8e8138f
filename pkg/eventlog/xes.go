package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"html"
	"io"
	"strconv"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/errors"
)

// XES standard extension keys.
var (
	xesConceptName = []byte("concept:name")
	xesTimestamp   = []byte("time:timestamp")
	xesOrgResource = []byte("org:resource")
	xesOrgGroup    = []byte("org:group")
)

var (
	xmlTrace   = []byte("trace")
	xmlEvent   = []byte("event")
	xmlString  = []byte("string")
	xmlDate    = []byte("date")
	xmlInt     = []byte("int")
	xmlFloat   = []byte("float")
	xmlBool    = []byte("boolean")
	xmlID      = []byte("id")
	keyPrefix  = []byte(`key="`)
	valuePrefx = []byte(`value="`)
)

type xesState uint8

const (
	xesInit xesState = iota
	xesTrace
	xesEvent
)

// decodeXES reads an IEEE XES log with a streaming tag scanner. The trace
// concept:name is the case id; org:group becomes the department and any
// other event attribute lands in Attributes with its XES type.
func decodeXES(ctx context.Context, r io.Reader, layout string) ([]model.Event, error) {
	reader := bufio.NewReaderSize(r, 64*1024)

	state := xesInit
	var caseID string
	var current *model.Event
	var events []model.Event
	var tsRaw string

	for tag := 1; ; tag++ {
		if tag%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line, err := reader.ReadBytes('>')
		if err != nil && err != io.EOF {
			return nil, errors.ParseError("xes", tag, err)
		}
		line = bytes.TrimSpace(line)
		// skip text between tags
		if i := bytes.IndexByte(line, '<'); i > 0 {
			line = line[i:]
		}

		switch {
		case len(line) == 0:

		case isOpenTag(line, xmlTrace):
			state = xesTrace
			caseID = ""

		case isCloseTag(line, xmlTrace):
			state = xesInit

		case isOpenTag(line, xmlEvent):
			state = xesEvent
			current = &model.Event{CaseID: caseID}
			tsRaw = ""
			if isSelfClosing(line) {
				state = xesTrace
				current = nil
			}

		case isCloseTag(line, xmlEvent):
			if current != nil {
				row := len(events)
				if current.CaseID == "" {
					return nil, errors.MissingField("caseId", row)
				}
				if current.Activity == "" {
					return nil, errors.MissingField("activity", row).WithContext("case", current.CaseID)
				}
				ts, err := parseTimestamp(tsRaw, layout)
				if err != nil {
					return nil, errors.InvalidTimestamp(tsRaw, row).WithContext("case", current.CaseID)
				}
				current.Timestamp = ts
				events = append(events, *current)
				current = nil
			}
			state = xesTrace

		case state == xesTrace && isAttributeTag(line):
			if key, value := xesAttribute(line); bytes.Equal(key, xesConceptName) {
				caseID = html.UnescapeString(string(value))
			}

		case state == xesEvent && isAttributeTag(line):
			key, value := xesAttribute(line)
			if key == nil || value == nil {
				break
			}
			v := html.UnescapeString(string(value))
			switch {
			case bytes.Equal(key, xesConceptName):
				current.Activity = v
			case bytes.Equal(key, xesTimestamp):
				tsRaw = v
			case bytes.Equal(key, xesOrgResource):
				current.Resource = v
			case bytes.Equal(key, xesOrgGroup):
				current.Department = v
			default:
				if current.Attributes == nil {
					current.Attributes = make(map[string]any)
				}
				current.Attributes[string(key)] = typedXESValue(line, v)
			}
		}

		if err == io.EOF {
			break
		}
	}
	return events, nil
}

// typedXESValue converts v according to the attribute element type.
func typedXESValue(line []byte, v string) any {
	switch {
	case bytes.HasPrefix(line[1:], xmlInt):
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case bytes.HasPrefix(line[1:], xmlFloat):
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case bytes.HasPrefix(line[1:], xmlBool):
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return v
}

// isOpenTag checks if line opens element, as in <trace> or <trace ...>.
func isOpenTag(line, element []byte) bool {
	if len(line) < len(element)+2 || line[0] != '<' {
		return false
	}
	if !bytes.HasPrefix(line[1:], element) {
		return false
	}
	next := 1 + len(element)
	if next >= len(line) {
		return true
	}
	c := line[next]
	return c == '>' || c == ' ' || c == '\t' || c == '\n' || c == '/'
}

// isCloseTag checks for </element>.
func isCloseTag(line, element []byte) bool {
	if len(line) < len(element)+3 || line[0] != '<' || line[1] != '/' {
		return false
	}
	return bytes.HasPrefix(line[2:], element)
}

func isSelfClosing(line []byte) bool {
	return len(line) >= 2 && line[len(line)-2] == '/'
}

// isAttributeTag checks if line is an XES attribute element.
func isAttributeTag(line []byte) bool {
	if len(line) < 3 || line[0] != '<' {
		return false
	}
	for _, el := range [][]byte{xmlString, xmlDate, xmlInt, xmlFloat, xmlBool, xmlID} {
		if isOpenTag(line, el) {
			return true
		}
	}
	return false
}

func xesAttribute(line []byte) (key, value []byte) {
	return attrValue(line, keyPrefix), attrValue(line, valuePrefx)
}

func attrValue(line, prefix []byte) []byte {
	idx := bytes.Index(line, prefix)
	if idx < 0 {
		return nil
	}
	start := idx + len(prefix)
	end := bytes.IndexByte(line[start:], '"')
	if end < 0 {
		return nil
	}
	return line[start : start+end]
}
