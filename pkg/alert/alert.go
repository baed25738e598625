// Package alert evaluates alert rules against monitored events and
// dispatches their actions under throttling.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eventmon/pkg/events"
	"eventmon/pkg/filter"
)

// ActionKind selects the side effect taken when a rule fires.
type ActionKind string

const (
	ActionLog     ActionKind = "log"
	ActionEmail   ActionKind = "email"
	ActionWebhook ActionKind = "webhook"
	ActionCommand ActionKind = "command"
)

// Action describes a rule's side effect. Severity applies to log
// actions; Target is the email address, webhook URL, or shell command.
type Action struct {
	Kind     ActionKind      `json:"kind"`
	Severity events.Severity `json:"severity,omitempty"`
	Target   string          `json:"target,omitempty"`
}

// Rule is one configured alert. LastTriggered is mutated only by the
// engine while it holds the rule-set lock.
type Rule struct {
	ID            string
	Name          string
	Filter        filter.Expr
	Action        Action
	Throttle      time.Duration
	LastTriggered time.Time
}

// Sink receives fired rules for asynchronous action dispatch. Send must
// not block.
type Sink interface {
	Send(rule Rule, ev *events.MonitoredEvent)
}

// Engine holds the rule set. One lock covers the whole set so two
// concurrent events cannot fire the same throttled rule twice.
type Engine struct {
	mu     sync.Mutex
	rules  []*Rule
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(sink Sink, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{sink: sink, logger: logger, now: time.Now}
}

// AddRule registers a rule, assigning an id when absent, and returns
// the id.
func (e *Engine) AddRule(r Rule) string {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	e.mu.Lock()
	e.rules = append(e.rules, &r)
	e.mu.Unlock()
	return r.ID
}

// RemoveRule deletes a rule by id.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// SetRules replaces the whole rule set.
func (e *Engine) SetRules(rules []Rule) {
	next := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		r := r
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		next = append(next, &r)
	}
	e.mu.Lock()
	e.rules = next
	e.mu.Unlock()
}

// Rules returns a copy of the rule set.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, *r)
	}
	return out
}

// Check evaluates every rule against the event. A matching rule inside
// its throttle window is silently suppressed; missed alerts are not
// queued. Fired actions are handed to the sink and the number fired is
// returned.
func (e *Engine) Check(ev *events.MonitoredEvent) int {
	now := e.now()

	e.mu.Lock()
	var fired []Rule
	for _, r := range e.rules {
		if !filter.Evaluate(r.Filter, ev) {
			continue
		}
		if r.Throttle > 0 && !r.LastTriggered.IsZero() && now.Sub(r.LastTriggered) < r.Throttle {
			continue
		}
		r.LastTriggered = now
		fired = append(fired, *r)
	}
	e.mu.Unlock()

	for _, r := range fired {
		if e.sink != nil {
			e.sink.Send(r, ev)
		}
	}
	return len(fired)
}
