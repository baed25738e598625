// Package store persists monitored events in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"eventmon/pkg/events"
)

// queryLimit caps every historical query. Callers needing more page by
// time range.
const queryLimit = 1000

// Store is the durable append-only event log. Safe for concurrent
// readers and a single concurrent writer.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init idempotently creates the events table and its indices.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			timestamp BIGINT NOT NULL,
			domain TEXT NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			subject TEXT NOT NULL,
			correlation_id TEXT,
			payload TEXT NOT NULL,
			metadata TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_domain ON events(domain)`,
		`CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_severity ON events(severity)`,
		`CREATE INDEX IF NOT EXISTS idx_events_correlation_id ON events(correlation_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store init: %w", err)
		}
	}
	return nil
}

// Append inserts one event. Failures are surfaced to the caller; the
// ingestion loop logs and continues.
func (s *Store) Append(ctx context.Context, ev *events.MonitoredEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("store append: encode payload: %w", err)
	}
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("store append: encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, domain, event_type, severity, subject, correlation_id, payload, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
	`, ev.ID, ev.Timestamp.Unix(), ev.Domain, ev.EventType, ev.Severity.String(),
		ev.Subject, ev.CorrelationID, string(payload), string(metadata))
	if err != nil {
		return fmt.Errorf("store append: %w", err)
	}
	return nil
}

// Query returns events matching the filter, newest first, capped at
// 1000 rows. Metadata equality constraints are applied after the scan.
func (s *Store) Query(ctx context.Context, f *events.EventFilter) ([]events.MonitoredEvent, error) {
	if f == nil {
		f = &events.EventFilter{}
	}
	query, args := buildQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store query: %w", err)
	}
	defer rows.Close()

	var out []events.MonitoredEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable event row", zap.Error(err))
			continue
		}
		if !matchesMetadata(ev, f.Metadata) {
			continue
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store query: %w", err)
	}
	return out, nil
}

// buildQuery conjoins the present filter fields into a parameterized
// statement. Minimum severity becomes an IN list of qualifying level
// names; a lexicographic severity >= comparison would order the levels
// incorrectly.
func buildQuery(f *events.EventFilter) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(`SELECT id, timestamp, domain, event_type, severity, subject, correlation_id, payload, metadata FROM events WHERE 1=1`)
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Domains) > 0 {
		fmt.Fprintf(&b, " AND domain = ANY(%s)", arg(pq.Array(f.Domains)))
	}
	if len(f.EventTypes) > 0 {
		fmt.Fprintf(&b, " AND event_type = ANY(%s)", arg(pq.Array(f.EventTypes)))
	}
	if f.MinSeverity != nil {
		fmt.Fprintf(&b, " AND severity = ANY(%s)", arg(pq.Array(severityNamesAtLeast(*f.MinSeverity))))
	}
	if f.TimeRange != nil {
		fmt.Fprintf(&b, " AND timestamp >= %s AND timestamp <= %s",
			arg(f.TimeRange.Start.Unix()), arg(f.TimeRange.End.Unix()))
	}
	if f.CorrelationID != "" {
		fmt.Fprintf(&b, " AND correlation_id = %s", arg(f.CorrelationID))
	}
	if f.SubjectPattern != "" {
		fmt.Fprintf(&b, " AND subject ~ %s", arg(f.SubjectPattern))
	}

	fmt.Fprintf(&b, " ORDER BY timestamp DESC LIMIT %d", queryLimit)
	return b.String(), args
}

func severityNamesAtLeast(min events.Severity) []string {
	var names []string
	for s := min; s <= events.SeverityCritical; s++ {
		names = append(names, s.String())
	}
	return names
}

func scanEvent(rows *sql.Rows) (*events.MonitoredEvent, error) {
	var (
		ev       events.MonitoredEvent
		ts       int64
		severity string
		corr     sql.NullString
		payload  []byte
		metadata []byte
	)
	if err := rows.Scan(&ev.ID, &ts, &ev.Domain, &ev.EventType, &severity,
		&ev.Subject, &corr, &payload, &metadata); err != nil {
		return nil, err
	}
	sev, err := events.ParseSeverity(severity)
	if err != nil {
		return nil, err
	}
	ev.Severity = sev
	ev.Timestamp = time.Unix(ts, 0).UTC()
	ev.CorrelationID = corr.String
	if err := json.Unmarshal(payload, &ev.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &ev, nil
}

func matchesMetadata(ev *events.MonitoredEvent, want map[string]interface{}) bool {
	for k, v := range want {
		got, ok := ev.Metadata[k]
		if !ok || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}

// retentionCutoff is the oldest epoch-second timestamp a sweep at now
// keeps.
func retentionCutoff(now time.Time, maxAge time.Duration) int64 {
	return now.Add(-maxAge).Unix()
}

// EnforceRetention deletes events older than maxAge and reports how
// many rows were removed.
func (s *Store) EnforceRetention(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := retentionCutoff(time.Now(), maxAge)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store retention: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RunRetention sweeps on a fixed interval until the context is
// cancelled. Sweep errors are logged, never fatal.
func (s *Store) RunRetention(ctx context.Context, every, maxAge time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.EnforceRetention(ctx, maxAge)
			if err != nil {
				s.logger.Error("retention sweep failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("retention sweep", zap.Int64("deleted", n))
			}
		}
	}
}
