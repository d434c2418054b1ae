package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// sink is the buffer shared by a TestLogger and every logger derived from it.
type sink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	s.buf.Write(line)
	s.buf.WriteByte('\n')
	s.mu.Unlock()
}

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// TestLogger records one JSON object per call in memory.
type TestLogger struct {
	out   *sink
	level Level
	bound []any
}

// NewTestLogger returns a logger capturing entries at level and above, and
// the buffer the entries are written to.
//
//	logger, buf := log.NewTestLogger(log.LevelDebug)
//	logger.Info("tuning started", log.GridSizeKey, 30)
//	fmt.Println(buf.String())
func NewTestLogger(level Level) (*TestLogger, *bytes.Buffer) {
	s := &sink{}
	return &TestLogger{out: s, level: level}, &s.buf
}

func (t *TestLogger) Debug(msg string, fields ...any) { t.record(LevelDebug, msg, fields) }
func (t *TestLogger) Info(msg string, fields ...any)  { t.record(LevelInfo, msg, fields) }
func (t *TestLogger) Warn(msg string, fields ...any)  { t.record(LevelWarn, msg, fields) }
func (t *TestLogger) Error(msg string, fields ...any) { t.record(LevelError, msg, fields) }

// With returns a logger that adds fields to every entry and writes to the
// same buffer.
func (t *TestLogger) With(fields ...any) Logger {
	bound := make([]any, 0, len(t.bound)+len(fields))
	bound = append(bound, t.bound...)
	bound = append(bound, fields...)
	return &TestLogger{out: t.out, level: t.level, bound: bound}
}

func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	return level >= t.level
}

func (t *TestLogger) record(level Level, msg string, fields []any) {
	if level < t.level {
		return
	}
	entry := map[string]any{"level": level.String(), "message": msg}
	put := func(kv []any) {
		for i := 0; i+1 < len(kv); i += 2 {
			v := kv[i+1]
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			entry[fmt.Sprint(kv[i])] = v
		}
	}
	put(t.bound)
	put(fields)

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":%q,"message":%q,"marshal_error":%q}`, level.String(), msg, err.Error()))
	}
	t.out.write(line)
}

// GetLogEntries decodes every captured line.
func (t *TestLogger) GetLogEntries() ([]map[string]any, error) {
	var entries []map[string]any
	for _, line := range strings.Split(t.out.String(), "\n") {
		if line == "" {
			continue
		}
		var e map[string]any
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ContainsMessage reports whether any captured entry mentions message.
func (t *TestLogger) ContainsMessage(message string) bool {
	return strings.Contains(t.out.String(), message)
}

// ContainsField reports whether some entry has key == value after a JSON
// round trip, so numbers must be given as float64.
func (t *TestLogger) ContainsField(key string, value any) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, e := range entries {
		if v, ok := e[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Find returns the first entry whose message is msg.
func (t *TestLogger) Find(msg string) (map[string]any, bool) {
	entries, err := t.GetLogEntries()
	if err != nil {
		return nil, false
	}
	for _, e := range entries {
		if e["message"] == msg {
			return e, true
		}
	}
	return nil, false
}

// Clear drops everything captured so far.
func (t *TestLogger) Clear() {
	t.out.mu.Lock()
	t.out.buf.Reset()
	t.out.mu.Unlock()
}

// TestLoggerProvider hands out TestLoggers sharing one buffer.
type TestLoggerProvider struct {
	root *TestLogger
}

// NewTestLoggerProvider returns a provider and the buffer its loggers write to.
func NewTestLoggerProvider(level Level) (*TestLoggerProvider, *bytes.Buffer) {
	root, buf := NewTestLogger(level)
	return &TestLoggerProvider{root: root}, buf
}

func (p *TestLoggerProvider) GetLogger() Logger { return p.root }

func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.root.With(ComponentKey, name)
}

func (p *TestLoggerProvider) SetLevel(level Level) { p.root.level = level }

// Logger returns the root logger, for assertions.
func (p *TestLoggerProvider) Logger() *TestLogger { return p.root }

// Capture installs a TestLoggerProvider as the process-wide provider for the
// duration of tb and returns its root logger. Tests using it must not run in
// parallel with other tests that log.
func Capture(tb testing.TB, level Level) *TestLogger {
	tb.Helper()
	p, _ := NewTestLoggerProvider(level)

	providerMu.Lock()
	prev := globalProvider
	globalProvider = p
	providerMu.Unlock()

	tb.Cleanup(func() { SetProvider(prev) })
	return p.root
}
