package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("production", "warn", &buf)

	l.Info().Msg("dropped")
	l.Warn().Str("user_id", "2").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "forum", line["service"])
	assert.Equal(t, "2", line["user_id"])
	assert.Contains(t, line, "time")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("production", "chatty", &buf)
	l.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
	l.Info().Msg("shown")
	assert.NotEmpty(t, buf.String())
}
