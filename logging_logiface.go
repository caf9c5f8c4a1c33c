package saw

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// logifaceLogger adapts a github.com/joeycumines/logiface logger (backed
// here by stumpy, logiface's own reference JSON encoder) to [Logger], for
// callers who want their saw loop's log entries flowing into the same
// structured-logging pipeline as the rest of their service.
type logifaceLogger struct {
	l *logiface.Logger[*stumpy.Event]
}

// NewLogifaceLogger wires the loop's structured logging onto a
// logiface-backed pipeline, using stumpy as the concrete event encoder.
func NewLogifaceLogger(options ...stumpy.Option) Logger {
	return &logifaceLogger{
		l: stumpy.L.New(stumpy.L.WithStumpy(options...)),
	}
}

func (a *logifaceLogger) IsEnabled(level LogLevel) bool {
	return a.l.Level() >= toLogifaceLevel(level)
}

func (a *logifaceLogger) Log(entry LogEntry) {
	b := a.l.Build(toLogifaceLevel(entry.Level))
	if b == nil {
		return
	}
	b = b.Str("category", entry.Category)
	for k, v := range entry.Fields {
		b = b.Interface(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
