// Package events provides the canonical monitored event model and filters.
package events

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Severity is an event urgency level. Levels are totally ordered:
// debug < info < warning < error < critical.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the lowercase level name used on every surface
// (wire, store, DSL, export).
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// ParseSeverity parses a level name (case-insensitive).
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "debug":
		return SeverityDebug, nil
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityInfo, fmt.Errorf("invalid severity %q", s)
}

// MarshalText implements encoding.TextMarshaler, which also covers JSON
// map keys.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Severity) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	v, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MonitoredEvent is one observed event, immutable once created by the
// ingestion loop.
type MonitoredEvent struct {
	ID            string                 `json:"id" yaml:"id"`
	Timestamp     time.Time              `json:"timestamp" yaml:"timestamp"`
	Domain        string                 `json:"domain" yaml:"domain"`
	EventType     string                 `json:"event_type" yaml:"event_type"`
	Severity      Severity               `json:"severity" yaml:"severity"`
	Subject       string                 `json:"subject" yaml:"subject"`
	CorrelationID string                 `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	Payload       interface{}            `json:"payload" yaml:"payload"`
	Metadata      map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// TimeRange is an inclusive time interval.
type TimeRange struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// EventFilter describes a structured historical query. All present
// fields are conjunctive.
type EventFilter struct {
	// Domains restricts to any of these domains.
	Domains []string `json:"domains,omitempty" yaml:"domains,omitempty"`
	// EventTypes restricts to any of these event types.
	EventTypes []string `json:"event_types,omitempty" yaml:"event_types,omitempty"`
	// MinSeverity keeps events at or above this level.
	MinSeverity *Severity `json:"min_severity,omitempty" yaml:"min_severity,omitempty"`
	// TimeRange keeps events inside the inclusive interval.
	TimeRange *TimeRange `json:"time_range,omitempty" yaml:"time_range,omitempty"`
	// CorrelationID keeps events with this exact correlation id.
	CorrelationID string `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	// SubjectPattern keeps events whose subject matches this regex.
	SubjectPattern string `json:"subject_pattern,omitempty" yaml:"subject_pattern,omitempty"`
	// Metadata keeps events whose metadata values equal these exactly.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
