// Package index provides bitmap indexes for fast case filtering on event logs.
package index

import (
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/logflow/procflow/internal/model"
	"github.com/logflow/procflow/pkg/attr"
	"github.com/logflow/procflow/pkg/errors"
)

// Indexed column names besides "attributes.<key>".
const (
	ColumnActivity   = "activity"
	ColumnResource   = "resource"
	ColumnDepartment = "department"
)

// CaseIndex maps column -> value -> bitmap of case positions. A case
// matches column=value when any of its events carries that value, so
// "activity=REJECTED" selects every case that was ever rejected.
// The index is immutable once built.
type CaseIndex struct {
	cases   []model.Case
	columns map[string]map[string]*roaring.Bitmap
}

// NewCaseIndex indexes the fixed fields and top-level scalar attributes of
// every event. Legacy "attrs" are indexed under "attributes." only for
// events with no "attributes" map at all, the same fallback attr.Path uses.
func NewCaseIndex(cases []model.Case) *CaseIndex {
	idx := &CaseIndex{
		cases:   cases,
		columns: make(map[string]map[string]*roaring.Bitmap),
	}
	for i, c := range cases {
		pos := uint32(i)
		for _, ev := range c.Events {
			idx.add(ColumnActivity, ev.Activity, pos)
			idx.add(ColumnResource, ev.Resource, pos)
			idx.add(ColumnDepartment, ev.Department, pos)
			attrs := ev.Attributes
			if attrs == nil {
				attrs = ev.LegacyAttrs
			}
			for k, v := range attrs {
				idx.addAttr(k, v, pos)
			}
		}
	}
	return idx
}

func (idx *CaseIndex) addAttr(key string, v any, pos uint32) {
	switch v.(type) {
	case map[string]any, []any:
		// nested values are reachable through decouple paths, not the index
		return
	}
	if s, ok := attr.Stringify(v); ok {
		idx.add("attributes."+key, s, pos)
	}
}

func (idx *CaseIndex) add(column, value string, pos uint32) {
	if value == "" {
		return
	}
	valMap := idx.columns[column]
	if valMap == nil {
		valMap = make(map[string]*roaring.Bitmap)
		idx.columns[column] = valMap
	}
	bm, ok := valMap[value]
	if !ok {
		bm = roaring.New()
		valMap[value] = bm
	}
	bm.Add(pos)
}

// Lookup returns the case positions where column == value.
func (idx *CaseIndex) Lookup(column, value string) *roaring.Bitmap {
	return idx.lookup(column, value).Clone()
}

func (idx *CaseIndex) lookup(column, value string) *roaring.Bitmap {
	if valMap, ok := idx.columns[normalizeColumn(column)]; ok {
		if bm, ok := valMap[value]; ok {
			return bm
		}
	}
	return roaring.New()
}

// Condition selects the cases with an event whose Column equals Value.
type Condition struct {
	Column string
	Value  string
}

// LookupAnd returns case positions matching ALL conditions. No conditions
// match every case. A column may appear more than once.
func (idx *CaseIndex) LookupAnd(conditions []Condition) *roaring.Bitmap {
	if len(conditions) == 0 {
		all := roaring.New()
		all.AddRange(0, uint64(len(idx.cases)))
		return all
	}
	var result *roaring.Bitmap
	for _, c := range conditions {
		bm := idx.lookup(c.Column, c.Value)
		if result == nil {
			result = bm.Clone()
		} else {
			result.And(bm)
		}
	}
	return result
}

// LookupOr returns case positions matching ANY condition.
func (idx *CaseIndex) LookupOr(conditions []Condition) *roaring.Bitmap {
	result := roaring.New()
	for _, c := range conditions {
		result.Or(idx.lookup(c.Column, c.Value))
	}
	return result
}

// Columns returns the indexed column names, sorted.
func (idx *CaseIndex) Columns() []string {
	cols := make([]string, 0, len(idx.columns))
	for col := range idx.columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Cardinality returns the number of distinct values for a column.
func (idx *CaseIndex) Cardinality(column string) int {
	return len(idx.columns[normalizeColumn(column)])
}

// DistinctValues returns the distinct values of a column, sorted.
func (idx *CaseIndex) DistinctValues(column string) []string {
	valMap, ok := idx.columns[normalizeColumn(column)]
	if !ok {
		return nil
	}
	values := make([]string, 0, len(valMap))
	for v := range valMap {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// CaseCount returns the number of indexed cases.
func (idx *CaseIndex) CaseCount() int {
	return len(idx.cases)
}

// Cases returns the cases at the positions in bm, in index order.
func (idx *CaseIndex) Cases(bm *roaring.Bitmap) []model.Case {
	out := make([]model.Case, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		pos := int(it.Next())
		if pos < len(idx.cases) {
			out = append(out, idx.cases[pos])
		}
	}
	return out
}

// Filter keeps the events of cases matching every condition.
func Filter(events []model.Event, conditions []Condition) []model.Event {
	if len(conditions) == 0 {
		return events
	}
	idx := NewCaseIndex(model.GroupCases(events))
	var out []model.Event
	for _, c := range idx.Cases(idx.LookupAnd(conditions)) {
		out = append(out, c.Events...)
	}
	return out
}

// ParseConditions parses COLUMN=VALUE pairs. A column is activity, resource,
// department or attributes.KEY. Order is kept.
func ParseConditions(specs []string) ([]Condition, error) {
	conds := make([]Condition, 0, len(specs))
	for _, spec := range specs {
		col, val, ok := strings.Cut(spec, "=")
		if !ok || col == "" {
			return nil, errors.New(errors.CodeInvalidFormat, "condition must look like COLUMN=VALUE").
				WithContext("condition", spec)
		}
		conds = append(conds, Condition{Column: normalizeColumn(col), Value: val})
	}
	return conds, nil
}

// normalizeColumn maps legacy "attrs.KEY" onto "attributes.KEY".
func normalizeColumn(col string) string {
	if rest, ok := strings.CutPrefix(col, "attrs."); ok {
		return "attributes." + rest
	}
	return col
}
