package telemetry

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SavinovAleksandr/dss/config"
)

func TestLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.LoggingSettings{Level: "debug", Format: "json"}, &buf)
	l.With("rgm1", "Normal", "scn1").BudgetExhausted("mdp", 100)

	out := buf.String()
	require.Contains(t, out, `"solver":"mdp"`)
	require.Contains(t, out, `"iterations":100`)
	require.Contains(t, out, `"regime":"rgm1"`)
}

func TestLoggerDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(config.LoggingSettings{Level: "bogus", Format: "json"}, &buf)
	l.Debug("should be suppressed")
	require.Empty(t, buf.String())

	l.Info("should appear")
	require.Contains(t, buf.String(), "should appear")
}
