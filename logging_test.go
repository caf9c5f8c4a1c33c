package saw

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	l := NewNoOpLogger()
	require.False(t, l.IsEnabled(LevelError))
	l.Log(LogEntry{Level: LevelError, Message: "should be dropped"})
}

func TestDefaultLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelWarn, &buf)
	require.False(t, l.IsEnabled(LevelInfo))
	require.True(t, l.IsEnabled(LevelError))

	l.Log(LogEntry{Level: LevelInfo, Category: "test", Message: "ignored"})
	require.Equal(t, 0, buf.Len())

	l.Log(LogEntry{Level: LevelError, Category: "test", Message: "reported", Err: errors.New("boom")})
	require.Greater(t, buf.Len(), 0)
}

func TestDefaultLoggerWritesJSONToNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelDebug, &buf)
	l.Log(LogEntry{Level: LevelInfo, Category: "poll", Message: "hello", Fields: map[string]any{"n": 3}})

	line := strings.TrimSpace(buf.String())
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	require.Equal(t, "poll", decoded["category"])
	require.Equal(t, "INFO", decoded["level"])
}

func TestDefaultLoggerSetLevelIsLive(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelError, &buf)
	require.False(t, l.IsEnabled(LevelWarn))
	l.SetLevel(LevelWarn)
	require.True(t, l.IsEnabled(LevelWarn))
}

func TestLogLevelString(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "ERROR", LevelError.String())
}
