package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "WARN"})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "shown", entry["message"])
}

func TestAsPrintf(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "debug"})
	require.NoError(t, err)

	AsPrintf(logger, zerolog.DebugLevel).Printf("polled %d times", 3)

	assert.Contains(t, buf.String(), `"message":"polled 3 times"`)
	assert.Contains(t, buf.String(), `"level":"debug"`)
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Console: true, NoColor: true})
	require.NoError(t, err)

	logger.Info().Str("url", "http://localhost").Msg("starting")

	assert.Contains(t, buf.String(), "INF")
	assert.Contains(t, buf.String(), "starting")
	assert.Contains(t, buf.String(), "url=http://localhost")
}
