package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	providerMu     sync.RWMutex
	globalProvider LoggerProvider = NewZerologProvider(os.Stderr, LevelInfo)
)

// SetProvider replaces the process-wide provider.
func SetProvider(p LoggerProvider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	globalProvider = p
}

// GetLogger returns the default logger of the process-wide provider.
func GetLogger() Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider.GetLogger()
}

// GetLoggerWithName returns a logger tagged with ComponentKey=name.
func GetLoggerWithName(name string) Logger {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return globalProvider.GetLoggerWithName(name)
}

// ZerologProvider is a LoggerProvider writing JSON lines through zerolog.
// The level is shared by every logger it has handed out, so SetLevel takes
// effect for existing loggers as well.
type ZerologProvider struct {
	base  zerolog.Logger
	level *atomic.Int64
}

// NewZerologProvider creates a provider writing to w.
func NewZerologProvider(w io.Writer, level Level) *ZerologProvider {
	lv := &atomic.Int64{}
	lv.Store(int64(level))
	return &ZerologProvider{
		base:  zerolog.New(w).With().Timestamp().Logger(),
		level: lv,
	}
}

// GetLogger implements LoggerProvider.
func (p *ZerologProvider) GetLogger() Logger {
	return &zerologLogger{zl: p.base, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	return &zerologLogger{zl: p.base.With().Str(ComponentKey, name).Logger(), level: p.level}
}

// SetLevel implements LoggerProvider.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.Store(int64(level))
}

type zerologLogger struct {
	zl    zerolog.Logger
	level *atomic.Int64
}

func (l *zerologLogger) Debug(msg string, fields ...any) { l.log(LevelDebug, msg, fields) }
func (l *zerologLogger) Info(msg string, fields ...any)  { l.log(LevelInfo, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields ...any)  { l.log(LevelWarn, msg, fields) }
func (l *zerologLogger) Error(msg string, fields ...any) { l.log(LevelError, msg, fields) }

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Interface(fmt.Sprint(fields[i]), fields[i+1])
	}
	return &zerologLogger{zl: ctx.Logger(), level: l.level}
}

func (l *zerologLogger) Enabled(_ context.Context, level Level) bool {
	return level >= Level(l.level.Load())
}

func (l *zerologLogger) log(level Level, msg string, fields []any) {
	if !l.Enabled(context.Background(), level) {
		return
	}
	var e *zerolog.Event
	switch level {
	case LevelDebug:
		e = l.zl.Debug()
	case LevelWarn:
		e = l.zl.Warn()
	case LevelError:
		e = l.zl.Error()
	default:
		e = l.zl.Info()
	}
	appendFields(e, fields).Msg(msg)
}

// appendFields adds key/value pairs to e. Errors are logged by message and,
// when they carry one, by their cockroachdb stack trace; values implementing
// zerolog.LogObjectMarshaler are nested as objects.
func appendFields(e *zerolog.Event, fields []any) *zerolog.Event {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		switch v := fields[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
			if obj, ok := v.(zerolog.LogObjectMarshaler); ok {
				e = e.Object(key+"_detail", obj)
			}
			if st := extractStacktrace(v); st != "" {
				e = e.Str(StacktraceAttrKey, st)
			}
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}
