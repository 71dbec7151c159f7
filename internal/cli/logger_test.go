package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger(LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("table", "book").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "book", entry["table"])
	assert.Equal(t, "kept", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestInitLogger_Level(t *testing.T) {
	tcs := []struct {
		in   string
		want zerolog.Level
	}{
		{in: "debug", want: zerolog.DebugLevel},
		{in: "error", want: zerolog.ErrorLevel},
		{in: "", want: zerolog.InfoLevel},
		{in: "loud", want: zerolog.InfoLevel},
	}
	for _, tc := range tcs {
		tc := tc
		t.Run(tc.in, func(t *testing.T) {
			var buf bytes.Buffer
			logger := InitLogger(LogConfig{Level: tc.in}, &buf)
			assert.Equal(t, tc.want, logger.GetLevel())
		})
	}
}
