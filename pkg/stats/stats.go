// Package stats maintains running aggregates for the ingestion
// pipeline: total and breakdown counters, a rolling per-minute history,
// and an exponentially smoothed processing latency.
package stats

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"eventmon/pkg/events"
)

// emaAlpha is the smoothing factor for the processing-time average.
const emaAlpha = 0.1

// minuteSlots is the length of the rolling per-minute history.
const minuteSlots = 60

// Snapshot is a consistent copy of the aggregates, safe to hand to
// readers.
type Snapshot struct {
	TotalCount          uint64                     `json:"total_count"`
	ByDomain            map[string]uint64          `json:"by_domain"`
	ByType              map[string]uint64          `json:"by_type"`
	BySeverity          map[events.Severity]uint64 `json:"by_severity"`
	EventsPerMinute     []uint64                   `json:"events_per_minute"`
	AvgProcessingTimeMs float64                    `json:"avg_processing_time_ms"`
}

// Aggregator accumulates event statistics. Record is called by the
// single ingestion task and TickMinute by the minute ticker; Snapshot
// may be called from anywhere.
type Aggregator struct {
	mu            sync.RWMutex
	totalCount    uint64
	byDomain      map[string]uint64
	byType        map[string]uint64
	bySeverity    map[events.Severity]uint64
	perMinute     []uint64
	avgMs         float64
	lastTickCount uint64
}

func New() *Aggregator {
	return &Aggregator{
		byDomain:   make(map[string]uint64),
		byType:     make(map[string]uint64),
		bySeverity: make(map[events.Severity]uint64),
		perMinute:  make([]uint64, 0, minuteSlots),
	}
}

// Record counts one event and folds its processing latency into the
// moving average. Called exactly once per normalized event.
func (a *Aggregator) Record(ev *events.MonitoredEvent, processingMs float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalCount++
	a.byDomain[ev.Domain]++
	a.byType[ev.EventType]++
	a.bySeverity[ev.Severity]++
	a.avgMs = (1-emaAlpha)*a.avgMs + emaAlpha*processingMs
}

// TickMinute closes the current minute: the delta against the last
// tick's baseline is appended to the rolling history, evicting the
// oldest slot when full.
func (a *Aggregator) TickMinute() {
	a.mu.Lock()
	defer a.mu.Unlock()
	thisMinute := a.totalCount - a.lastTickCount
	if len(a.perMinute) >= minuteSlots {
		a.perMinute = a.perMinute[1:]
	}
	a.perMinute = append(a.perMinute, thisMinute)
	a.lastTickCount = a.totalCount
}

// Snapshot returns a deep copy of the current aggregates.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := Snapshot{
		TotalCount:          a.totalCount,
		ByDomain:            make(map[string]uint64, len(a.byDomain)),
		ByType:              make(map[string]uint64, len(a.byType)),
		BySeverity:          make(map[events.Severity]uint64, len(a.bySeverity)),
		EventsPerMinute:     append([]uint64(nil), a.perMinute...),
		AvgProcessingTimeMs: a.avgMs,
	}
	for k, v := range a.byDomain {
		s.ByDomain[k] = v
	}
	for k, v := range a.byType {
		s.ByType[k] = v
	}
	for k, v := range a.bySeverity {
		s.BySeverity[k] = v
	}
	return s
}

// RunTicker invokes TickMinute on the interval until the context is
// cancelled.
func (a *Aggregator) RunTicker(ctx context.Context, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if logger != nil {
				logger.Debug("statistics ticker stopped")
			}
			return
		case <-ticker.C:
			a.TickMinute()
		}
	}
}
