package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLoggerCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := &Logger{zap.New(core)}

	ctx := NewContext(context.Background(), base.With(IntField("job_id", 7)))
	base.InfoContext(ctx, "scoped")
	base.InfoContext(context.Background(), "plain")
	base.DebugContext(ctx, "dropped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "scoped", entries[0].Message)
	assert.Equal(t, int64(7), entries[0].ContextMap()["job_id"])
	assert.Empty(t, entries[1].ContextMap())
}

func TestNew(t *testing.T) {
	log, err := New("INFO", "console")
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = New("loud", "json")
	assert.Error(t, err)
}
