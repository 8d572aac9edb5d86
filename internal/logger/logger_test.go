package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONToStdoutAndFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "svc.log")

	require.NoError(t, Init(Options{Level: "debug", File: file, MaxSizeMB: 1, Stdout: &buf}))
	t.Cleanup(Close)

	log.Info().Str("job_id", "j-1").Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "contractedit", line["service"])
	assert.Equal(t, "j-1", line["job_id"])

	Close()
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
}

func TestInitFallsBackToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "chatty", Stdout: &buf}))
	t.Cleanup(Close)

	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestForJobTagsLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Service: "edit-test", Stdout: &buf}))
	t.Cleanup(Close)

	l := ForJob("abc")
	l.Warn().Msg("slow chunk")

	assert.Contains(t, buf.String(), `"job_id":"abc"`)
	assert.Contains(t, buf.String(), `"service":"edit-test"`)
}
