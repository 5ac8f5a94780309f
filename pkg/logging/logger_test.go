package logging

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)

	_, err = ParseLevel("nope")
	assert.Error(t, err)
}

func TestLineCoreFormat(t *testing.T) {
	var sb strings.Builder
	core := newLineCore(zapcore.DebugLevel, &sb)

	ts := time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC)
	err := core.Write(zapcore.Entry{
		Time:    ts,
		Level:   zapcore.WarnLevel,
		Message: "order rejected",
	}, []zapcore.Field{zap.String("symbol", "MHI2507")})
	require.NoError(t, err)

	line := strings.TrimSuffix(sb.String(), "\n")
	assert.Equal(t, "2025-07-01 09:30:00 [WARNING] order rejected symbol=MHI2507", line)

	// the layout must stay parseable by the log query regex
	re := regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) \[(\w+)\] (.*)$`)
	assert.True(t, re.MatchString(line))
}

func TestRotatingWriterRotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotatingWriter(dir, "engine", 30)
	require.NoError(t, err)
	defer w.Close()

	day1 := time.Date(2025, 7, 1, 23, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return day1 }
	w.day = day1.Format("2006-01-02")

	_, err = w.Write([]byte("first day line\n"))
	require.NoError(t, err)

	day2 := day1.Add(2 * time.Minute)
	w.now = func() time.Time { return day2 }

	_, err = w.Write([]byte("second day line\n"))
	require.NoError(t, err)

	dated, err := os.ReadFile(filepath.Join(dir, "engine.log.2025-07-01"))
	require.NoError(t, err)
	assert.Equal(t, "first day line\n", string(dated))

	current, err := os.ReadFile(filepath.Join(dir, "engine.log"))
	require.NoError(t, err)
	assert.Equal(t, "second day line\n", string(current))
}

func TestRotatingWriterPrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRotatingWriter(dir, "engine", 7)
	require.NoError(t, err)
	defer w.Close()

	stale := filepath.Join(dir, "engine.log.2020-01-01")
	require.NoError(t, os.WriteFile(stale, []byte("old\n"), 0o644))
	fresh := filepath.Join(dir, "engine.log.2025-06-30")
	require.NoError(t, os.WriteFile(fresh, []byte("recent\n"), 0o644))

	w.now = func() time.Time { return time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC) }
	w.prune()

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}

func TestZapLoggerWithField(t *testing.T) {
	logger, err := NewZapLogger("DEBUG")
	require.NoError(t, err)

	child := logger.WithField("engine", "mhi_a")
	require.NotNil(t, child)
	child.Info("started")
}
