// Package model defines core data structures for procflow.
package model

import (
	"sort"
	"time"

	"github.com/logflow/procflow/pkg/errors"
)

// Event represents a single process mining event.
// Events are immutable once loaded.
type Event struct {
	// CaseID identifies the process instance (trace).
	CaseID string `json:"caseId"`

	// Activity is the event name/activity label.
	Activity string `json:"activity"`

	// Timestamp is when the activity happened.
	Timestamp time.Time `json:"timestamp"`

	// Resource is the actor/resource performing the activity.
	Resource string `json:"resource,omitempty"`

	// Department is the organisational unit of the resource.
	Department string `json:"department,omitempty"`

	// Attributes holds additional categorical values, possibly nested.
	Attributes map[string]any `json:"attributes,omitempty"`

	// LegacyAttrs holds attributes delivered under the older "attrs" key.
	LegacyAttrs map[string]any `json:"attrs,omitempty"`
}

// Case is the ordered event sequence of one process instance.
type Case struct {
	ID     string
	Events []Event
}

// Activities returns the activity sequence of the case.
func (c Case) Activities() []string {
	out := make([]string, len(c.Events))
	for i, ev := range c.Events {
		out[i] = ev.Activity
	}
	return out
}

// Validate checks that every event has a case id, an activity and a timestamp.
// The first malformed event fails the whole log.
func Validate(events []Event) error {
	for i, ev := range events {
		if ev.CaseID == "" {
			return errors.MissingField("caseId", i)
		}
		if ev.Activity == "" {
			return errors.MissingField("activity", i).WithContext("case", ev.CaseID)
		}
		if ev.Timestamp.IsZero() {
			return errors.MissingField("timestamp", i).WithContext("case", ev.CaseID)
		}
	}
	return nil
}

// GroupCases partitions events by case id. Cases appear in order of first
// appearance in events; each case is stable-sorted by timestamp, so events
// sharing a timestamp keep their input order.
func GroupCases(events []Event) []Case {
	index := make(map[string]int)
	var cases []Case

	for _, ev := range events {
		i, ok := index[ev.CaseID]
		if !ok {
			i = len(cases)
			index[ev.CaseID] = i
			cases = append(cases, Case{ID: ev.CaseID})
		}
		cases[i].Events = append(cases[i].Events, ev)
	}

	for i := range cases {
		evs := cases[i].Events
		sort.SliceStable(evs, func(a, b int) bool {
			return evs[a].Timestamp.Before(evs[b].Timestamp)
		})
	}

	return cases
}
