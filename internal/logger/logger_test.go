package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlog_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, FormatJSON, InfoLevel)

	l.Info("connected", "port", "/dev/ttyUSB0", "firmware", 31)
	out := buf.String()

	assert.Contains(t, out, `"msg":"connected"`)
	assert.Contains(t, out, `"port":"/dev/ttyUSB0"`)
	assert.Contains(t, out, `"firmware":31`)
	assert.Contains(t, out, `"ts":`)
}

func TestNewSlog_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, FormatJSON, WarnLevel)

	l.Debug("debug line")
	l.Info("info line")
	assert.Empty(t, buf.String())

	l.Warn("warn line")
	assert.Contains(t, buf.String(), "warn line")
	assert.Equal(t, WarnLevel, l.Level())

	l.SetLevel(DebugLevel)
	l.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
	assert.Equal(t, DebugLevel, l.Level())
}

func TestSlogLogger_WithSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, FormatJSON, InfoLevel)
	child := l.With("component", "reader")

	l.SetLevel(ErrorLevel)
	child.Info("suppressed")
	assert.Empty(t, buf.String())

	child.Error("read failed")
	assert.Contains(t, buf.String(), `"component":"reader"`)
}

func TestNewSlog_Console(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlog(&buf, FormatConsole, InfoLevel)

	l.Info("speed", "wpm", 22)
	out := buf.String()
	assert.True(t, strings.Contains(out, "speed"), "console output %q", out)
	assert.True(t, strings.Contains(out, "22"), "console output %q", out)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, InfoLevel, ParseLevel("info"))
	assert.Equal(t, WarnLevel, ParseLevel("warn"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "debug", DebugLevel.String())
	assert.Equal(t, "error", ErrorLevel.String())
	assert.Equal(t, "unknown", Level(42).String())
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	child := r.With("component", "port")

	r.Info("hello", "a", 1)
	child.Warn("no firmware version", "bytes", 2)

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, InfoLevel, entries[0].Level)

	warns := r.Find(WarnLevel, "firmware")
	require.Len(t, warns, 1)
	v, ok := warns[0].Value("component")
	assert.True(t, ok)
	assert.Equal(t, "port", v)
	v, ok = warns[0].Value("bytes")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	r.SetLevel(ErrorLevel)
	child.Info("dropped")
	assert.Len(t, r.Entries(), 2)
}

func TestDefault(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	r := NewRecorder()
	SetDefault(r)
	SetDefault(nil)

	Info("via package")
	assert.Len(t, r.Find(InfoLevel, "via package"), 1)
}
