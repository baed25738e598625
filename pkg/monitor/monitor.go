// Package monitor runs the ingestion pipeline: raw bus messages are
// normalized, persisted, counted, checked against alert rules, and kept
// in a bounded in-memory buffer for live readers.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"eventmon/pkg/alert"
	"eventmon/pkg/events"
	"eventmon/pkg/stats"
)

// Message is one raw event off the bus.
type Message struct {
	Subject string
	Payload []byte
}

// Source delivers raw messages. The channel closing ends the run loop.
type Source interface {
	Messages() <-chan Message
}

// EventStore persists normalized events.
type EventStore interface {
	Append(ctx context.Context, ev *events.MonitoredEvent) error
}

// Options wires the pipeline's collaborators. Store, Stats and Alerts
// may each be nil; the corresponding stage is skipped.
type Options struct {
	Store        EventStore
	Stats        *stats.Aggregator
	Alerts       *alert.Engine
	BufferSize   int
	StoreTimeout time.Duration
	// Notify, when set, receives every normalized event after the
	// pipeline stages have run.
	Notify func(ev *events.MonitoredEvent)
	Logger *zap.Logger
}

type Monitor struct {
	opts   Options
	buffer *Buffer
	logger *zap.Logger
}

func New(opts Options) *Monitor {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		opts:   opts,
		buffer: NewBuffer(opts.BufferSize),
		logger: logger,
	}
}

// Run consumes the source until its channel closes or the context is
// cancelled. Store failures are logged and never stop the loop.
func (m *Monitor) Run(ctx context.Context, src Source) error {
	m.logger.Info("event monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("event monitor stopped", zap.Error(ctx.Err()))
			return ctx.Err()
		case msg, ok := <-src.Messages():
			if !ok {
				m.logger.Info("event source closed")
				return nil
			}
			m.process(ctx, msg)
		}
	}
}

func (m *Monitor) process(ctx context.Context, msg Message) {
	start := time.Now()
	ev := Normalize(msg)

	if m.opts.Store != nil {
		storeCtx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
		err := m.opts.Store.Append(storeCtx, ev)
		cancel()
		if err != nil {
			m.logger.Error("failed to store event",
				zap.String("subject", msg.Subject),
				zap.ByteString("payload", payloadPrefix(msg.Payload)),
				zap.Error(err))
		}
	}

	if m.opts.Stats != nil {
		m.opts.Stats.Record(ev, float64(time.Since(start).Microseconds())/1000.0)
	}
	if m.opts.Alerts != nil {
		m.opts.Alerts.Check(ev)
	}
	m.buffer.Push(ev)
	if m.opts.Notify != nil {
		m.opts.Notify(ev)
	}
}

// SetNotify installs the post-pipeline hook. Call before Run.
func (m *Monitor) SetNotify(fn func(ev *events.MonitoredEvent)) {
	m.opts.Notify = fn
}

// RecentEvents returns up to n of the newest buffered events.
func (m *Monitor) RecentEvents(n int) []*events.MonitoredEvent {
	return m.buffer.Recent(n)
}

// ClearBuffer empties the live buffer; the durable store is untouched.
func (m *Monitor) ClearBuffer() {
	m.buffer.Clear()
}

func payloadPrefix(p []byte) []byte {
	const max = 128
	if len(p) <= max {
		return p
	}
	return p[:max]
}
