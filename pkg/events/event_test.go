package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityDebug < SeverityInfo)
	assert.True(t, SeverityInfo < SeverityWarning)
	assert.True(t, SeverityWarning < SeverityError)
	assert.True(t, SeverityError < SeverityCritical)
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"debug":    SeverityDebug,
		"info":     SeverityInfo,
		"warning":  SeverityWarning,
		"error":    SeverityError,
		"critical": SeverityCritical,
		"ERROR":    SeverityError,
		"Critical": SeverityCritical,
	}
	for in, want := range cases {
		got, err := ParseSeverity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSeverity("fatal")
	assert.Error(t, err)
}

func TestSeverityJSON(t *testing.T) {
	b, err := json.Marshal(SeverityWarning)
	require.NoError(t, err)
	assert.Equal(t, `"warning"`, string(b))

	var s Severity
	require.NoError(t, json.Unmarshal([]byte(`"critical"`), &s))
	assert.Equal(t, SeverityCritical, s)

	// Severity is usable as a JSON map key.
	m := map[Severity]uint64{SeverityError: 3}
	b, err = json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":3}`, string(b))
}
