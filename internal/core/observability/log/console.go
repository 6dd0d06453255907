package log

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Severity is what the editor log panel shows next to an entry.
type Severity uint8

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "normal"
	}
}

// Entry is one line of the console panel.
type Entry struct {
	Time     time.Time
	Severity Severity
	Logger   string
	Message  string
	Fields   map[string]any
}

// Console is a zapcore.Core that keeps the most recent entries in memory
// so presentation layers can render a log panel.
type Console struct {
	shared *consoleBuffer
	fields []zapcore.Field
	enab   zapcore.LevelEnabler
}

type consoleBuffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
}

// NewConsole returns a console core holding at most capacity entries.
func NewConsole(capacity int) *Console {
	if capacity <= 0 {
		capacity = 512
	}
	return &Console{
		shared: &consoleBuffer{capacity: capacity},
		enab:   zapcore.DebugLevel,
	}
}

func (c *Console) Enabled(level zapcore.Level) bool {
	return c.enab.Enabled(level)
}

func (c *Console) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &Console{shared: c.shared, fields: merged, enab: c.enab}
}

func (c *Console) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *Console) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	e := Entry{
		Time:     ent.Time,
		Severity: severityOf(ent.Level),
		Logger:   ent.LoggerName,
		Message:  ent.Message,
		Fields:   enc.Fields,
	}

	b := c.shared
	b.mu.Lock()
	if len(b.entries) == b.capacity {
		copy(b.entries, b.entries[1:])
		b.entries = b.entries[:len(b.entries)-1]
	}
	b.entries = append(b.entries, e)
	b.mu.Unlock()
	return nil
}

func (c *Console) Sync() error { return nil }

// Entries returns a snapshot, oldest first.
func (c *Console) Entries() []Entry {
	b := c.shared
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Count returns how many retained entries have the given severity.
func (c *Console) Count(s Severity) int {
	b := c.shared
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.entries {
		if e.Severity == s {
			n++
		}
	}
	return n
}

func (c *Console) Clear() {
	b := c.shared
	b.mu.Lock()
	b.entries = b.entries[:0]
	b.mu.Unlock()
}

func severityOf(level zapcore.Level) Severity {
	switch {
	case level >= zapcore.ErrorLevel:
		return SeverityError
	case level == zapcore.WarnLevel:
		return SeverityWarning
	default:
		return SeverityNormal
	}
}
