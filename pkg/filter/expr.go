// Package filter implements the event filter expression language: a
// small AST, a text parser, and an evaluator shared by ad-hoc queries
// and alert rules.
package filter

import (
	"reflect"
	"regexp"
	"time"

	"eventmon/pkg/events"
)

// Expr is a node of the filter expression tree.
type Expr interface {
	isExpr()
}

// And matches when both children match.
type And struct {
	Left, Right Expr
}

// Or matches when either child matches.
type Or struct {
	Left, Right Expr
}

// Not inverts its single child.
type Not struct {
	Expr Expr
}

// Domain matches the event domain exactly.
type Domain string

// EventType matches the event type exactly.
type EventType string

// MinSeverity matches events at or above the level.
type MinSeverity events.Severity

// TimeAfter matches events at or after the instant.
type TimeAfter time.Time

// TimeBefore matches events at or before the instant.
type TimeBefore time.Time

// Correlation matches a present correlation id exactly. Events without
// a correlation id never match.
type Correlation string

// Metadata matches a metadata value by deep exact equality, no type
// coercion.
type Metadata struct {
	Key   string
	Value interface{}
}

// Regex matches a regex against one of the fields domain, type, or
// subject. An invalid pattern or unknown field evaluates to false.
type Regex struct {
	Field   string
	Pattern string
}

func (And) isExpr()         {}
func (Or) isExpr()          {}
func (Not) isExpr()         {}
func (Domain) isExpr()      {}
func (EventType) isExpr()   {}
func (MinSeverity) isExpr() {}
func (TimeAfter) isExpr()   {}
func (TimeBefore) isExpr()  {}
func (Correlation) isExpr() {}
func (Metadata) isExpr()    {}
func (Regex) isExpr()       {}

// Evaluate applies the expression to an event. It is pure and total:
// every node evaluates to true or false, never an error. A nil
// expression matches everything (the vacuous conjunction).
func Evaluate(e Expr, ev *events.MonitoredEvent) bool {
	switch x := e.(type) {
	case nil:
		return true
	case And:
		return Evaluate(x.Left, ev) && Evaluate(x.Right, ev)
	case Or:
		return Evaluate(x.Left, ev) || Evaluate(x.Right, ev)
	case Not:
		return !Evaluate(x.Expr, ev)
	case Domain:
		return ev.Domain == string(x)
	case EventType:
		return ev.EventType == string(x)
	case MinSeverity:
		return ev.Severity >= events.Severity(x)
	case TimeAfter:
		return !ev.Timestamp.Before(time.Time(x))
	case TimeBefore:
		return !ev.Timestamp.After(time.Time(x))
	case Correlation:
		return ev.CorrelationID != "" && ev.CorrelationID == string(x)
	case Metadata:
		v, ok := ev.Metadata[x.Key]
		return ok && reflect.DeepEqual(v, x.Value)
	case Regex:
		re, err := regexp.Compile(x.Pattern)
		if err != nil {
			return false
		}
		switch x.Field {
		case "domain":
			return re.MatchString(ev.Domain)
		case "type":
			return re.MatchString(ev.EventType)
		case "subject":
			return re.MatchString(ev.Subject)
		}
		return false
	}
	return false
}
