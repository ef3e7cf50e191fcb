package cli

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("shown", "table", "notes")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "table=notes")
	assert.NotContains(t, out, "\x1b[", "non-terminal writers get no color")
}
