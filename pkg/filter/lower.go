package filter

import (
	"sort"

	"eventmon/pkg/events"
)

// FromFilter lowers a structured EventFilter into an expression:
// present fields are AND-ed together, a value set within one field is
// OR-ed, and a time range becomes TimeAfter AND TimeBefore. An empty
// filter lowers to nil, which matches everything.
func FromFilter(f *events.EventFilter) Expr {
	if f == nil {
		return nil
	}
	var conj []Expr

	if len(f.Domains) > 0 {
		alts := make([]Expr, 0, len(f.Domains))
		for _, d := range f.Domains {
			alts = append(alts, Domain(d))
		}
		conj = append(conj, anyOf(alts))
	}
	if len(f.EventTypes) > 0 {
		alts := make([]Expr, 0, len(f.EventTypes))
		for _, t := range f.EventTypes {
			alts = append(alts, EventType(t))
		}
		conj = append(conj, anyOf(alts))
	}
	if f.MinSeverity != nil {
		conj = append(conj, MinSeverity(*f.MinSeverity))
	}
	if f.TimeRange != nil {
		conj = append(conj, And{
			Left:  TimeAfter(f.TimeRange.Start),
			Right: TimeBefore(f.TimeRange.End),
		})
	}
	if f.CorrelationID != "" {
		conj = append(conj, Correlation(f.CorrelationID))
	}
	if f.SubjectPattern != "" {
		conj = append(conj, Regex{Field: "subject", Pattern: f.SubjectPattern})
	}
	if len(f.Metadata) > 0 {
		keys := make([]string, 0, len(f.Metadata))
		for k := range f.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			conj = append(conj, Metadata{Key: k, Value: f.Metadata[k]})
		}
	}

	return allOf(conj)
}

func allOf(exprs []Expr) Expr {
	if len(exprs) == 0 {
		return nil
	}
	e := exprs[0]
	for _, next := range exprs[1:] {
		e = And{Left: e, Right: next}
	}
	return e
}

func anyOf(exprs []Expr) Expr {
	e := exprs[0]
	for _, next := range exprs[1:] {
		e = Or{Left: e, Right: next}
	}
	return e
}
