package adapters

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlogLoggerJSON(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := NewSlogLogger(buf, "json", "info")
	require.NoError(t, err)

	l.Debug("hidden")
	l.With("node", "node0").Info("connected block", "height", 7)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "connected block", rec["msg"])
	require.Equal(t, "node0", rec["node"])
	require.Equal(t, float64(7), rec["height"])
}

func TestSlogLoggerText(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := NewSlogLogger(buf, "text", "debug")
	require.NoError(t, err)

	l.Warn("reorg", "depth", 3)
	require.Contains(t, buf.String(), "WARN")
	require.Contains(t, buf.String(), "reorg")
	require.Contains(t, buf.String(), "depth=3")
}

func TestSlogLoggerRejectsUnknownSettings(t *testing.T) {
	_, err := NewSlogLogger(new(bytes.Buffer), "xml", "info")
	require.Error(t, err)
	_, err = NewSlogLogger(new(bytes.Buffer), "json", "loud")
	require.Error(t, err)
}
