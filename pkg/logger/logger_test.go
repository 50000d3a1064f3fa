package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})

	log.With(Component("progress")).Info("recomputed",
		StudentID("s1"), CourseID("c1"), Percentage(50),
		Latency(1500*time.Millisecond), Err(errors.New("boom")))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "recomputed", entry["message"])
	assert.Equal(t, "progress", entry["component"])
	assert.Equal(t, "s1", entry["student_id"])
	assert.Equal(t, float64(50), entry["percentage"])
	assert.Equal(t, "1.5s", entry["latency"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry["timestamp"])
}

func TestLoggerNilErrorAddsNoField(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf}).Info("ok", Err(nil))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0], "error")
}

func TestLoggerLevelIsSharedWithDerived(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelWarn})
	child := log.With(Component("saga"))

	child.Debug("hidden")
	child.Info("hidden")
	child.Warn("shown")
	assert.Len(t, decodeLines(t, &buf), 1)

	log.SetLevel(LevelDebug)
	child.Debug("now shown")
	assert.Len(t, decodeLines(t, &buf), 2)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("Error"))
	assert.Equal(t, LevelInfo, ParseLevel("fatal"), "levels that exit are not configurable")
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().With(Component("x")).Error("discarded", Err(errors.New("boom")))
	})
}
