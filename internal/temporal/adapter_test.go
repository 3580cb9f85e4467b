package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapAdapterFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter := NewZapAdapter(zap.New(core))

	adapter.Info("Activity started", "ActivityType", "ExploreSubQuestion", "Attempt", 2)
	adapter.Error("Activity failed", "Error", errors.New("boom"), 42, "answer", "dangling")
	adapter.With("WorkflowID", "wf-1").Warn("Retrying", "Handler", func() {})

	entries := logs.All()
	require.Len(t, entries, 3)

	first := entries[0].ContextMap()
	assert.Equal(t, "temporal", first["component"])
	assert.Equal(t, "ExploreSubQuestion", first["ActivityType"])
	assert.EqualValues(t, 2, first["Attempt"])

	second := entries[1].ContextMap()
	assert.Equal(t, "boom", second["Error"])
	assert.Equal(t, "answer", second["42"])
	assert.Equal(t, "dangling", second["extra"])

	third := entries[2].ContextMap()
	assert.Equal(t, "wf-1", third["WorkflowID"])
	assert.Equal(t, "<func>", third["Handler"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
}
