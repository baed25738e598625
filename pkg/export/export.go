// Package export writes event sets to JSON, CSV, or YAML.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"eventmon/pkg/events"
)

// Format selects an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, csv, yaml, or yml (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// Write encodes the events to w in the given format.
func Write(w io.Writer, format Format, evs []*events.MonitoredEvent) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(evs)
	case FormatCSV:
		return writeCSV(w, evs)
	case FormatYAML:
		data, err := yaml.Marshal(evs)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteFile exports to a file, validating the format before touching
// the filesystem.
func WriteFile(path string, format Format, evs []*events.MonitoredEvent) error {
	switch format {
	case FormatJSON, FormatCSV, FormatYAML:
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Write(f, format, evs); err != nil {
		return err
	}
	return f.Close()
}

func writeCSV(w io.Writer, evs []*events.MonitoredEvent) error {
	cw := csv.NewWriter(w)
	header := []string{"id", "timestamp", "domain", "event_type", "severity", "subject", "correlation_id", "payload"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, ev := range evs {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		row := []string{
			ev.ID,
			ev.Timestamp.UTC().Format(time.RFC3339),
			ev.Domain,
			ev.EventType,
			ev.Severity.String(),
			ev.Subject,
			ev.CorrelationID,
			string(payload),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
