package logging

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// lineTimeLayout is the timestamp layout of the file sink. The adapter's
// log query endpoint parses these lines back, so the layout must stay in
// step with its regex.
const lineTimeLayout = "2006-01-02 15:04:05"

// lineLevel renders zap levels with the names the wire protocol uses.
func lineLevel(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARNING"
	case zapcore.ErrorLevel:
		return "ERROR"
	default:
		return strings.ToUpper(l.String())
	}
}

// lineCore is a zapcore.Core that writes plain "timestamp [LEVEL] message"
// lines, appending structured fields as key=value pairs.
type lineCore struct {
	level  zapcore.LevelEnabler
	out    io.Writer
	fields []zapcore.Field
}

func newLineCore(level zapcore.LevelEnabler, out io.Writer) zapcore.Core {
	return &lineCore{level: level, out: out}
}

func (c *lineCore) Enabled(l zapcore.Level) bool { return c.level.Enabled(l) }

func (c *lineCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &lineCore{level: c.level, out: c.out}
	clone.fields = append(append([]zapcore.Field(nil), c.fields...), fields...)
	return clone
}

func (c *lineCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *lineCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	var b strings.Builder
	b.WriteString(ent.Time.Format(lineTimeLayout))
	b.WriteString(" [")
	b.WriteString(lineLevel(ent.Level))
	b.WriteString("] ")
	b.WriteString(ent.Message)

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	for _, k := range sortedKeys(enc.Fields) {
		fmt.Fprintf(&b, " %s=%v", k, enc.Fields[k])
	}
	b.WriteByte('\n')

	_, err := io.WriteString(c.out, b.String())
	return err
}

func (c *lineCore) Sync() error {
	if s, ok := c.out.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatEntryTime renders a timestamp in the file sink layout. Shared with
// tests and the log query parser.
func FormatEntryTime(t time.Time) string {
	return t.Format(lineTimeLayout)
}
