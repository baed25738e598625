package filter

import (
	"fmt"
	"strings"
	"time"

	"eventmon/pkg/events"
)

// ParseError reports malformed filter DSL input.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse filter %q: %s", e.Input, e.Reason)
}

// Parse parses the filter DSL. Examples:
//
//	domain:workflow AND type:started
//	severity:error OR severity:warning
//	timestamp>2024-01-01 AND domain:ai
//	subject~billing\..*
//
// The parser splits on the left-most top-level " AND " first, then
// " OR ", both left-associative, with no parenthesized grouping.
// Because the AND split is tried first, "a OR b AND c" parses as
// And(Or(a, b), c). Stored alert rules depend on this exact behavior.
func Parse(input string) (Expr, error) {
	s := strings.TrimSpace(input)

	if i := strings.Index(s, " AND "); i >= 0 {
		left, err := Parse(s[:i])
		if err != nil {
			return nil, err
		}
		right, err := Parse(s[i+5:])
		if err != nil {
			return nil, err
		}
		return And{Left: left, Right: right}, nil
	}

	if i := strings.Index(s, " OR "); i >= 0 {
		left, err := Parse(s[:i])
		if err != nil {
			return nil, err
		}
		right, err := Parse(s[i+4:])
		if err != nil {
			return nil, err
		}
		return Or{Left: left, Right: right}, nil
	}

	if strings.HasPrefix(s, "NOT ") {
		inner, err := Parse(s[4:])
		if err != nil {
			return nil, err
		}
		return Not{Expr: inner}, nil
	}

	return parseLeaf(s)
}

// parseLeaf parses a single condition. The delimiter trial order is
// ':', '>', '<', '~'.
func parseLeaf(s string) (Expr, error) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		field, value := s[:i], s[i+1:]
		switch field {
		case "domain":
			return Domain(value), nil
		case "type":
			return EventType(value), nil
		case "severity":
			sev, err := events.ParseSeverity(value)
			if err != nil {
				return nil, &ParseError{Input: s, Reason: err.Error()}
			}
			return MinSeverity(sev), nil
		case "correlation":
			return Correlation(value), nil
		default:
			// Any other field is a metadata equality condition.
			return Metadata{Key: field, Value: value}, nil
		}
	}

	if i := strings.IndexByte(s, '>'); i >= 0 {
		field, value := s[:i], s[i+1:]
		if field != "timestamp" {
			return nil, &ParseError{Input: s, Reason: "only timestamp supports >"}
		}
		t, err := parseTime(value)
		if err != nil {
			return nil, &ParseError{Input: s, Reason: err.Error()}
		}
		return TimeAfter(t), nil
	}

	if i := strings.IndexByte(s, '<'); i >= 0 {
		field, value := s[:i], s[i+1:]
		if field != "timestamp" {
			return nil, &ParseError{Input: s, Reason: "only timestamp supports <"}
		}
		t, err := parseTime(value)
		if err != nil {
			return nil, &ParseError{Input: s, Reason: err.Error()}
		}
		return TimeBefore(t), nil
	}

	if i := strings.IndexByte(s, '~'); i >= 0 {
		return Regex{Field: s[:i], Pattern: s[i+1:]}, nil
	}

	return nil, &ParseError{Input: s, Reason: "no condition delimiter"}
}

// parseTime accepts RFC3339 or a bare YYYY-MM-DD date (UTC midnight).
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", v)
}
