package saw

import (
	"errors"
	"testing"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// TestLogifaceLoggerForwardsFields exercises the NewLogifaceLogger adapter
// end to end: a Log call flows through logiface/stumpy and the category,
// fields and error all land in the encoded event.
func TestLogifaceLoggerForwardsFields(t *testing.T) {
	var captured string
	writer := logiface.WriterFunc[*stumpy.Event](func(e *stumpy.Event) error {
		captured = string(e.Bytes())
		return nil
	})

	logger := &logifaceLogger{
		l: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithTimeField("")),
			stumpy.L.WithWriter(writer),
		),
	}

	require.True(t, logger.IsEnabled(LevelError))

	logger.Log(LogEntry{
		Level:    LevelError,
		Category: "poll",
		Message:  "event port wait failed",
		Err:      errors.New("boom"),
		Fields:   map[string]any{"attempt": 3},
	})

	require.Contains(t, captured, `"category":"poll"`)
	require.Contains(t, captured, `"err":"boom"`)
	require.Contains(t, captured, "event port wait failed")
}

func TestToLogifaceLevelMapping(t *testing.T) {
	require.Equal(t, logiface.LevelDebug, toLogifaceLevel(LevelDebug))
	require.Equal(t, logiface.LevelError, toLogifaceLevel(LevelError))
	require.Equal(t, logiface.LevelInformational, toLogifaceLevel(LevelInfo))
}
