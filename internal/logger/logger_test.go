package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test", "debug")
	l.Debug().Str("user", "u1").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "test", entry["role"])
	assert.Equal(t, "u1", entry["user"])
	assert.Equal(t, "hello", entry["message"])
	assert.Contains(t, entry, "func")
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "test", "warn")
	l.Info().Msg("hidden")
	assert.Empty(t, buf.String())
	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	l = New(&buf, "test", "bogus")
	l.Debug().Msg("hidden")
	l.Info().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "ctx", "info")
	ctx := l.WithContext(context.Background())

	FromContext(ctx).Info().Msg("from ctx")
	assert.Contains(t, buf.String(), "from ctx")

	assert.NotNil(t, FromContext(context.Background()))
	Nop().Info().Msg("discarded")
}
