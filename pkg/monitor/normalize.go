package monitor

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventmon/pkg/events"
)

// Normalize turns a raw bus message into a MonitoredEvent. The subject
// is split on dots: the second segment is the domain and the third the
// event type, "unknown" when absent. Any valid JSON payload is kept
// as-is; a JSON object may additionally carry correlation_id and
// severity hints. Text that fails to parse as JSON is wrapped as
// {"raw": <text>}.
func Normalize(msg Message) *events.MonitoredEvent {
	ev := &events.MonitoredEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Domain:    "unknown",
		EventType: "unknown",
		Severity:  events.SeverityInfo,
		Subject:   msg.Subject,
		Metadata:  map[string]interface{}{},
	}

	parts := strings.Split(msg.Subject, ".")
	if len(parts) > 1 && parts[1] != "" {
		ev.Domain = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		ev.EventType = parts[2]
	}

	var payload interface{}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		ev.Payload = map[string]interface{}{"raw": string(msg.Payload)}
		return ev
	}
	ev.Payload = payload

	// Hints only apply to object payloads; arrays, scalars and null
	// are kept as-is.
	if obj, ok := payload.(map[string]interface{}); ok {
		if cid, ok := obj["correlation_id"].(string); ok {
			ev.CorrelationID = cid
		}
		if raw, ok := obj["severity"].(string); ok {
			if sev, err := events.ParseSeverity(raw); err == nil {
				ev.Severity = sev
			}
		}
	}
	return ev
}
