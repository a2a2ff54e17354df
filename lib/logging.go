package snapring

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zlog = zap.NewNop()

// SetLogger installs the logger used by the whole package.
func SetLogger(l *zap.Logger) {
	zlog = l
}

// LogEntry is one captured log line, kept for the JSON run log and the API
// summary.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// SessionRecorder buffers every log entry emitted during one invocation.
type SessionRecorder struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewSessionRecorder() *SessionRecorder {
	return &SessionRecorder{}
}

func (r *SessionRecorder) append(e LogEntry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

func (r *SessionRecorder) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Counts returns how many error and warning entries were recorded.
func (r *SessionRecorder) Counts() (errors, warnings int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		switch e.Level {
		case "ERROR":
			errors++
		case "WARNING":
			warnings++
		}
	}
	return
}

// recorderCore is a zapcore.Core that tees entries into a SessionRecorder.
type recorderCore struct {
	zapcore.LevelEnabler
	rec *SessionRecorder
}

func (c *recorderCore) With([]zapcore.Field) zapcore.Core { return c }

func (c *recorderCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *recorderCore) Write(ent zapcore.Entry, _ []zapcore.Field) error {
	c.rec.append(LogEntry{
		Timestamp: ent.Time,
		Level:     levelTag(ent.Level),
		Message:   ent.Message,
	})
	return nil
}

func (c *recorderCore) Sync() error { return nil }

func levelTag(l zapcore.Level) string {
	switch l {
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.ErrorLevel, zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "ERROR"
	case zapcore.DebugLevel:
		return "DEBUG"
	}
	return "INFO"
}

// NewSessionLogger builds a console logger that also records every entry in
// rec.
func NewSessionLogger(rec *SessionRecorder, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	console, err := cfg.Build()
	if err != nil {
		console = zap.NewNop()
	}

	tee := zapcore.NewTee(console.Core(), &recorderCore{LevelEnabler: level, rec: rec})
	return zap.New(tee)
}
