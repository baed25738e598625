package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventmon/pkg/alert"
	"eventmon/pkg/events"
	"eventmon/pkg/filter"
	"eventmon/pkg/stats"
)

type chanSource struct {
	ch chan Message
}

func (s *chanSource) Messages() <-chan Message { return s.ch }

type fakeStore struct {
	appended []*events.MonitoredEvent
	err      error
}

func (f *fakeStore) Append(ctx context.Context, ev *events.MonitoredEvent) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, ev)
	return nil
}

type countingSink struct {
	n int
}

func (s *countingSink) Send(rule alert.Rule, ev *events.MonitoredEvent) { s.n++ }

func runPipeline(t *testing.T, m *Monitor, msgs []Message) {
	t.Helper()
	src := &chanSource{ch: make(chan Message, len(msgs))}
	for _, msg := range msgs {
		src.ch <- msg
	}
	close(src.ch)
	require.NoError(t, m.Run(context.Background(), src))
}

func TestPipelineEndToEnd(t *testing.T) {
	store := &fakeStore{}
	agg := stats.New()
	sink := &countingSink{}
	engine := alert.NewEngine(sink, nil)
	engine.AddRule(alert.Rule{
		Name:   "billing events",
		Filter: filter.Domain("billing"),
		Action: alert.Action{Kind: alert.ActionLog},
	})

	var notified []*events.MonitoredEvent
	m := New(Options{
		Store:      store,
		Stats:      agg,
		Alerts:     engine,
		BufferSize: 10,
		Notify:     func(ev *events.MonitoredEvent) { notified = append(notified, ev) },
	})

	runPipeline(t, m, []Message{
		{Subject: "alchemist.billing.invoice_paid", Payload: []byte(`{"amount": 1}`)},
		{Subject: "alchemist.workflow.started", Payload: []byte(`{}`)},
	})

	require.Len(t, store.appended, 2)
	assert.Equal(t, "billing", store.appended[0].Domain)

	s := agg.Snapshot()
	assert.Equal(t, uint64(2), s.TotalCount)
	assert.Equal(t, uint64(1), s.ByDomain["billing"])

	assert.Equal(t, 1, sink.n)
	assert.Len(t, notified, 2)
	assert.Len(t, m.RecentEvents(0), 2)
}

// A failing store must not stop ingestion: stats, alerts and the buffer
// still see the event.
func TestPipelineContinuesPastStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	agg := stats.New()
	m := New(Options{Store: store, Stats: agg, BufferSize: 10})

	runPipeline(t, m, []Message{
		{Subject: "alchemist.billing.invoice_paid", Payload: []byte(`{}`)},
		{Subject: "alchemist.workflow.started", Payload: []byte(`{}`)},
	})

	assert.Empty(t, store.appended)
	assert.Equal(t, uint64(2), agg.Snapshot().TotalCount)
	assert.Len(t, m.RecentEvents(0), 2)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m := New(Options{BufferSize: 1})
	src := &chanSource{ch: make(chan Message)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, src) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run loop did not stop")
	}
}

func TestClearBuffer(t *testing.T) {
	m := New(Options{BufferSize: 10})
	runPipeline(t, m, []Message{{Subject: "alchemist.billing.paid", Payload: []byte(`{}`)}})
	require.Len(t, m.RecentEvents(0), 1)
	m.ClearBuffer()
	assert.Empty(t, m.RecentEvents(0))
}
