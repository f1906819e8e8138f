// Package attr resolves grouping values from events.
//
// A Selector is a plain value rather than a closure, so two selectors can be
// compared (duplicate decouple layers) and written to config or JSON.
package attr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/errors"
)

// Unknown is the group value used when a selector finds nothing.
const Unknown = "Unknown"

const (
	rootAttributes = "attributes"
	rootLegacy     = "attrs"
)

// Kind tags the selector variant.
type Kind uint8

const (
	// KindField reads one of the fixed event fields.
	KindField Kind = iota
	// KindPath walks a dotted path through event attributes.
	KindPath
	// KindFallback walks Primary, or Fallback when Primary's root is absent.
	KindFallback
)

// Selector maps an event to a grouping value.
type Selector struct {
	Kind     Kind
	Field    string
	Primary  []string
	Fallback []string
}

var fixedFields = map[string]bool{
	"caseId":     true,
	"activity":   true,
	"resource":   true,
	"department": true,
	"timestamp":  true,
}

// Field selects a fixed event field such as "resource" or "department".
func Field(name string) Selector {
	return Selector{Kind: KindField, Field: name}
}

// WithLegacyFallback selects primary, falling back to fallback when the
// primary root container is absent on the event.
func WithLegacyFallback(primary, fallback []string) Selector {
	return Selector{Kind: KindFallback, Primary: primary, Fallback: fallback}
}

// Path builds a selector from a dotted path. Single-segment fixed field
// names become Field selectors; "attributes.X" also checks "attrs.X".
func Path(path string) Selector {
	segs := strings.Split(path, ".")
	if len(segs) == 1 && fixedFields[segs[0]] {
		return Field(segs[0])
	}
	if len(segs) > 1 && segs[0] == rootAttributes {
		legacy := append([]string{rootLegacy}, segs[1:]...)
		return WithLegacyFallback(segs, legacy)
	}
	return Selector{Kind: KindPath, Primary: segs}
}

// Resolve returns the stringified value selected from ev.
func (s Selector) Resolve(ev model.Event) (string, bool) {
	var v any
	var ok bool

	switch s.Kind {
	case KindField:
		return fieldValue(ev, s.Field)
	case KindPath:
		v, ok, _ = lookup(ev, s.Primary)
	case KindFallback:
		var rootPresent bool
		v, ok, rootPresent = lookup(ev, s.Primary)
		if !rootPresent {
			v, ok, _ = lookup(ev, s.Fallback)
		}
	}

	if !ok {
		return "", false
	}
	return Stringify(v)
}

// Select resolves ev, defaulting to Unknown.
func (s Selector) Select(ev model.Event) string {
	if v, ok := s.Resolve(ev); ok && v != "" {
		return v
	}
	return Unknown
}

// String returns the user-facing path of the selector.
func (s Selector) String() string {
	if s.Kind == KindField {
		return s.Field
	}
	return strings.Join(s.Primary, ".")
}

// Key is a canonical encoding; equal keys mean equal selectors.
func (s Selector) Key() string {
	switch s.Kind {
	case KindField:
		return "field:" + s.Field
	case KindFallback:
		return "fallback:" + strings.Join(s.Primary, ".") + "|" + strings.Join(s.Fallback, ".")
	default:
		return "path:" + strings.Join(s.Primary, ".")
	}
}

// Equal reports whether two selectors pick the same value.
func (s Selector) Equal(o Selector) bool {
	return s.Key() == o.Key()
}

// MarshalText implements encoding.TextMarshaler.
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.Key()), nil
}

// UnmarshalText accepts either a Key or a plain dotted path.
func (s *Selector) UnmarshalText(text []byte) error {
	str := string(text)
	kind, rest, found := strings.Cut(str, ":")
	if !found {
		*s = Path(str)
		return nil
	}

	switch kind {
	case "field":
		*s = Field(rest)
	case "path":
		*s = Selector{Kind: KindPath, Primary: strings.Split(rest, ".")}
	case "fallback":
		primary, fallback, ok := strings.Cut(rest, "|")
		if !ok {
			return errors.New(errors.CodeInvalidLayer, "fallback selector needs primary|fallback").
				WithContext("selector", str)
		}
		*s = WithLegacyFallback(strings.Split(primary, "."), strings.Split(fallback, "."))
	default:
		// timestamps and other paths may legitimately contain ':'
		*s = Path(str)
	}
	return nil
}

// GetValueByPath reads a nested value by dotted path, such as "department",
// "attributes.channel" or the legacy "attrs.channel".
func GetValueByPath(ev model.Event, path string) (any, bool) {
	sel := Path(path)
	switch sel.Kind {
	case KindField:
		v, ok := fieldValue(ev, sel.Field)
		return v, ok
	case KindFallback:
		v, ok, rootPresent := lookup(ev, sel.Primary)
		if !rootPresent {
			v, ok, _ = lookup(ev, sel.Fallback)
		}
		return v, ok
	default:
		v, ok, _ := lookup(ev, sel.Primary)
		return v, ok
	}
}

func fieldValue(ev model.Event, name string) (string, bool) {
	var v string
	switch name {
	case "caseId":
		v = ev.CaseID
	case "activity":
		v = ev.Activity
	case "resource":
		v = ev.Resource
	case "department":
		v = ev.Department
	case "timestamp":
		if ev.Timestamp.IsZero() {
			return "", false
		}
		v = ev.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return v, v != ""
}

// lookup walks segs from one of the event's attribute roots. rootPresent
// reports whether the root container itself exists on the event.
func lookup(ev model.Event, segs []string) (value any, ok bool, rootPresent bool) {
	if len(segs) == 0 {
		return nil, false, false
	}

	var cur map[string]any
	switch segs[0] {
	case rootAttributes:
		cur = ev.Attributes
	case rootLegacy:
		cur = ev.LegacyAttrs
	default:
		if len(segs) == 1 && fixedFields[segs[0]] {
			v, found := fieldValue(ev, segs[0])
			return v, found, true
		}
		return nil, false, false
	}
	if cur == nil {
		return nil, false, false
	}
	if len(segs) == 1 {
		return cur, true, true
	}

	var v any = cur
	for _, key := range segs[1:] {
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, false, true
		}
		v, ok = m[key]
		if !ok || v == nil {
			return nil, false, true
		}
	}
	return v, true, true
}

// Stringify converts a scalar attribute value to its group string.
func Stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}
