package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	outMu.Lock()
	prev := out
	out = buf
	outMu.Unlock()
	t.Cleanup(func() {
		outMu.Lock()
		out = prev
		format = ""
		outMu.Unlock()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})
	return buf
}

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer func() { assert.NoError(t, os.Unsetenv("APP_ENV")) }()
	captureOutput(t)
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerJSONComponent(t *testing.T) {
	buf := captureOutput(t)
	require.NoError(t, Configure(Config{Level: "info", Format: "json"}))
	l := New("session")
	l.Debugf("hidden")
	l.Infof("peer %s", "10.0.0.2")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "session", rec["component"])
	assert.Equal(t, "peer 10.0.0.2", rec["message"])
	assert.Equal(t, "info", rec["level"])
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Level: "debug"}.Validate())
	assert.Error(t, Config{Level: "loud"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
	assert.Error(t, Configure(Config{Level: "nope"}))
}
