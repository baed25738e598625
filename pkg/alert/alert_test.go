package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventmon/pkg/events"
	"eventmon/pkg/filter"
)

type recordingSink struct {
	fired []string
}

func (s *recordingSink) Send(rule Rule, ev *events.MonitoredEvent) {
	s.fired = append(s.fired, rule.Name)
}

func failedWorkflow() *events.MonitoredEvent {
	return &events.MonitoredEvent{
		ID:        "ev-1",
		Timestamp: time.Now().UTC(),
		Domain:    "workflow",
		EventType: "failed",
		Severity:  events.SeverityError,
		Subject:   "alchemist.workflow.failed",
	}
}

func TestCheckFiresMatchingRule(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, nil)
	e.AddRule(Rule{
		Name:   "workflow failures",
		Filter: filter.And{Left: filter.Domain("workflow"), Right: filter.EventType("failed")},
		Action: Action{Kind: ActionLog, Severity: events.SeverityError},
	})

	assert.Equal(t, 1, e.Check(failedWorkflow()))
	assert.Equal(t, []string{"workflow failures"}, sink.fired)

	assert.Equal(t, 0, e.Check(&events.MonitoredEvent{Domain: "workflow", EventType: "started"}))
	assert.Len(t, sink.fired, 1)
}

func TestThrottleSuppressesWithinWindow(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, nil)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	e.now = func() time.Time { return now }

	e.AddRule(Rule{
		Name:     "noisy",
		Filter:   filter.Domain("workflow"),
		Action:   Action{Kind: ActionLog},
		Throttle: time.Minute,
	})

	assert.Equal(t, 1, e.Check(failedWorkflow()))

	// Half-way through the window: suppressed, not queued.
	now = t0.Add(30 * time.Second)
	assert.Equal(t, 0, e.Check(failedWorkflow()))

	// Past the window: fires again.
	now = t0.Add(2 * time.Minute)
	assert.Equal(t, 1, e.Check(failedWorkflow()))

	assert.Equal(t, []string{"noisy", "noisy"}, sink.fired)
}

func TestZeroThrottleAlwaysFires(t *testing.T) {
	sink := &recordingSink{}
	e := NewEngine(sink, nil)
	e.AddRule(Rule{Name: "every time", Filter: filter.Domain("workflow"), Action: Action{Kind: ActionLog}})

	e.Check(failedWorkflow())
	e.Check(failedWorkflow())
	assert.Len(t, sink.fired, 2)
}

func TestAddRemoveRules(t *testing.T) {
	e := NewEngine(nil, nil)
	id := e.AddRule(Rule{Name: "a", Filter: filter.Domain("workflow"), Action: Action{Kind: ActionLog}})
	require.NotEmpty(t, id)
	require.Len(t, e.Rules(), 1)

	assert.False(t, e.RemoveRule("no-such-id"))
	assert.True(t, e.RemoveRule(id))
	assert.Empty(t, e.Rules())
}

func TestSetRulesReplaces(t *testing.T) {
	e := NewEngine(nil, nil)
	e.AddRule(Rule{Name: "old", Filter: filter.Domain("workflow"), Action: Action{Kind: ActionLog}})

	e.SetRules([]Rule{
		{Name: "new-1", Filter: filter.Domain("billing"), Action: Action{Kind: ActionLog}},
		{Name: "new-2", Filter: filter.Domain("camera"), Action: Action{Kind: ActionLog}},
	})

	rules := e.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "new-1", rules[0].Name)
	assert.NotEmpty(t, rules[0].ID)
}
