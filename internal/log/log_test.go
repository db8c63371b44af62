package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelWarn)
	Info("hidden")
	Warn("shown", "markers", 600)
	Error("failed", errors.New("boom"), "feed", "events")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown markers=600")
	assert.Contains(t, out, "[ERROR] failed err=boom feed=events")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestFormatKVsIgnoresOddTrailer(t *testing.T) {
	assert.Equal(t, " a=1 b=x", formatKVs("a", 1, "b", "x", "dangling"))
	assert.Equal(t, " b=2", formatKVs(3, "skipped", "b", 2))
}

func TestFormatValueQuoting(t *testing.T) {
	assert.Equal(t, ` summary="Showing 2 events" empty="" range=2025-09-01..2025-09-15`,
		formatKVs("summary", "Showing 2 events", "empty", "", "range", "2025-09-01..2025-09-15"))
	assert.Equal(t, ` err="feed unavailable: tags"`, formatKVs("err", errors.New("feed unavailable: tags")))
}

func TestErrorWithoutErr(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stderr) })

	Error("reload skipped", nil, "reason", "busy")
	assert.Contains(t, buf.String(), "[ERROR] reload skipped reason=busy")
	assert.NotContains(t, buf.String(), "err=")
}
