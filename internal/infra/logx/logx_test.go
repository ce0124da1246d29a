package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONToStderrWithRunID(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: "debug", Format: "json"}, &buf)

	ctx := WithRunID(context.Background(), "01RUN")
	l := FromCtx(ctx)
	l.Info().Str("phase", "segment").Msg("done")

	var ev map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &ev))
	assert.Equal(t, "01RUN", ev["run_id"])
	assert.Equal(t, "av1q", ev["svc"])
	assert.Equal(t, "segment", ev["phase"])
}

func TestSetup_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(Config{Level: "warn", Format: "json"}, &buf)
	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())
}

func TestConfig_Merge(t *testing.T) {
	c := Config{Level: "info", Format: "console"}.Merge(Config{Level: "DEBUG"})
	assert.Equal(t, "debug", c.Level)
	assert.Equal(t, "console", c.Format)
}

func TestLineWriter_Pipe(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf).Level(zerolog.DebugLevel)

	lw := NewLineWriter(base, map[string]string{"proc": "ffmpeg"}, zerolog.DebugLevel)
	last := lw.Pipe(strings.NewReader("line one\nline two\n\n"))

	assert.Equal(t, "line two", last)
	assert.Equal(t, 3, strings.Count(buf.String(), `"proc":"ffmpeg"`))
}
