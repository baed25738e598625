package store

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventmon/pkg/events"
)

func TestBuildQueryEmptyFilter(t *testing.T) {
	q, args := buildQuery(&events.EventFilter{})
	assert.Equal(t, `SELECT id, timestamp, domain, event_type, severity, subject, correlation_id, payload, metadata FROM events WHERE 1=1 ORDER BY timestamp DESC LIMIT 1000`, q)
	assert.Empty(t, args)
}

func TestBuildQueryAllFields(t *testing.T) {
	min := events.SeverityWarning
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	f := &events.EventFilter{
		Domains:        []string{"workflow", "billing"},
		EventTypes:     []string{"started"},
		MinSeverity:    &min,
		TimeRange:      &events.TimeRange{Start: start, End: end},
		CorrelationID:  "req-42",
		SubjectPattern: `billing\..*`,
	}
	q, args := buildQuery(f)

	assert.Contains(t, q, "domain = ANY($1)")
	assert.Contains(t, q, "event_type = ANY($2)")
	assert.Contains(t, q, "severity = ANY($3)")
	assert.Contains(t, q, "timestamp >= $4 AND timestamp <= $5")
	assert.Contains(t, q, "correlation_id = $6")
	assert.Contains(t, q, "subject ~ $7")
	assert.Contains(t, q, "ORDER BY timestamp DESC LIMIT 1000")

	require.Len(t, args, 7)
	assert.Equal(t, pq.Array([]string{"workflow", "billing"}), args[0])
	assert.Equal(t, pq.Array([]string{"warning", "error", "critical"}), args[2])
	assert.Equal(t, start.Unix(), args[3])
	assert.Equal(t, end.Unix(), args[4])
	assert.Equal(t, "req-42", args[5])
}

func TestSeverityNamesAtLeast(t *testing.T) {
	assert.Equal(t,
		[]string{"debug", "info", "warning", "error", "critical"},
		severityNamesAtLeast(events.SeverityDebug))
	assert.Equal(t, []string{"critical"}, severityNamesAtLeast(events.SeverityCritical))
}

func TestRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(-30*24*time.Hour).Unix(), retentionCutoff(now, 30*24*time.Hour))
	assert.Equal(t, now.Unix(), retentionCutoff(now, 0))
}

func TestMatchesMetadata(t *testing.T) {
	ev := &events.MonitoredEvent{
		Metadata: map[string]interface{}{"region": "eu-west", "attempt": float64(2)},
	}
	assert.True(t, matchesMetadata(ev, nil))
	assert.True(t, matchesMetadata(ev, map[string]interface{}{"region": "eu-west"}))
	assert.False(t, matchesMetadata(ev, map[string]interface{}{"region": "us-east"}))
	assert.False(t, matchesMetadata(ev, map[string]interface{}{"missing": "x"}))
	// No type coercion.
	assert.False(t, matchesMetadata(ev, map[string]interface{}{"attempt": "2"}))
}
