package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"eventmon/pkg/events"
)

func sampleEvents() []*events.MonitoredEvent {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*events.MonitoredEvent{
		{
			ID:            "ev-1",
			Timestamp:     ts,
			Domain:        "billing",
			EventType:     "invoice_paid",
			Severity:      events.SeverityInfo,
			Subject:       "alchemist.billing.invoice_paid",
			CorrelationID: "req-1",
			Payload:       map[string]interface{}{"amount": 42.5},
		},
		{
			ID:        "ev-2",
			Timestamp: ts.Add(time.Minute),
			Domain:    "workflow",
			EventType: "failed",
			Severity:  events.SeverityError,
			Subject:   "alchemist.workflow.failed",
			Payload:   map[string]interface{}{"raw": "boom"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"json": FormatJSON, "CSV": FormatCSV, "yaml": FormatYAML, "yml": FormatYAML,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleEvents()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,timestamp,domain,event_type,severity,subject,correlation_id,payload", lines[0])
	assert.Contains(t, lines[1], "ev-1,2026-03-01T12:00:00Z,billing,invoice_paid,info")
	assert.Contains(t, lines[2], ",error,")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleEvents()))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "billing", decoded[0]["domain"])
	assert.Equal(t, "error", decoded[1]["severity"])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, sampleEvents()))

	var decoded []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "workflow", decoded[1]["domain"])
}

func TestWriteFileRejectsFormatBeforeIO(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	err := WriteFile(path, Format("xml"), sampleEvents())
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, WriteFile(path, FormatJSON, sampleEvents()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "invoice_paid")
}
