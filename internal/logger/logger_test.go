package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput routes logger output to a buffer until the returned
// cleanup runs.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.Lock()
	origOutput, origColor := output, useColor
	mu.Unlock()
	origLevel := GetLevel()
	origFormat, _ := currentFormat.Load().(string)

	InitWithWriter(buf, "INFO", "text", false)

	t.Cleanup(func() {
		InitWithWriter(origOutput, origLevel.String(), origFormat, origColor)
	})
	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{"DEBUG", []string{"debug msg", "info msg", "warn msg", "error msg"}, nil},
		{"INFO", []string{"info msg", "warn msg", "error msg"}, []string{"debug msg"}},
		{"WARN", []string{"warn msg", "error msg"}, []string{"debug msg", "info msg"}},
		{"ERROR", []string{"error msg"}, []string{"debug msg", "info msg", "warn msg"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug msg")
			Info("info msg")
			Warn("warn msg")
			Error("error msg")

			out := buf.String()
			for _, s := range tt.visible {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.hidden {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevelIgnoresUnknownNames(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("WARN")
	SetLevel("LOUD")

	Info("hidden")
	Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, LevelWarn, GetLevel())
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("warning")
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t)

	Info("file received", "path", "docs/a.txt", "size", 42, "note", "two words")

	line := buf.String()
	assert.Contains(t, line, "[INFO] file received")
	assert.Contains(t, line, "path=docs/a.txt")
	assert.Contains(t, line, "size=42")
	assert.Contains(t, line, `note="two words"`)
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetFormat("json")

	Warn("disk low", "free", uint64(1024))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "disk low", rec["msg"])
	assert.EqualValues(t, 1024, rec["free"])
}

func TestContextFieldsArePrefixed(t *testing.T) {
	buf := captureOutput(t)

	lc := NewLogContext("sess-1", "127.0.0.1:5000").WithStream(4).WithCommand("put", "a.txt")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "command done", KeyWritten, 7)

	line := buf.String()
	assert.Contains(t, line, "session_id=sess-1")
	assert.Contains(t, line, "client_addr=127.0.0.1:5000")
	assert.Contains(t, line, "stream_id=4")
	assert.Contains(t, line, "cmd=put")
	assert.Contains(t, line, "path=a.txt")
	assert.Less(t, strings.Index(line, "session_id"), strings.Index(line, "written=7"))
}

func TestContextWithoutLogContext(t *testing.T) {
	buf := captureOutput(t)

	InfoCtx(context.Background(), "plain")

	assert.Contains(t, buf.String(), "plain")
	assert.NotContains(t, buf.String(), "session_id")
}

func TestLogContextCloneIsIndependent(t *testing.T) {
	base := NewLogContext("s", "addr")
	derived := base.WithCommand("get", "x")

	assert.Empty(t, base.Command)
	assert.Equal(t, "get", derived.Command)
	assert.Nil(t, (*LogContext)(nil).Clone())
	assert.Zero(t, (*LogContext)(nil).DurationMs())
}

func TestWithGroupPrefixesKeys(t *testing.T) {
	buf := captureOutput(t)

	With("component", "engine").WithGroup("req").Info("x", "id", 1)

	assert.Contains(t, buf.String(), "component=engine")
	assert.Contains(t, buf.String(), "req.id=1")
}

func TestErrAttr(t *testing.T) {
	assert.True(t, Err(nil).Equal(Err(nil)))
	assert.Equal(t, KeyError, Err(assert.AnError).Key)
}
