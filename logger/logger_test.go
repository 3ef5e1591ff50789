package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/notify/sym"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		level      string
		wantErr    bool
	}{
		{name: "JSON output mode", jsonOutput: true, level: "info"},
		{name: "Console output mode", jsonOutput: false, level: ""},
		{name: "Debug level", jsonOutput: false, level: "DEBUG"},
		{name: "Unknown level", jsonOutput: false, level: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := Logger
			t.Cleanup(func() { Logger = prev; JSONOutput = false })

			err := Initialize(tt.jsonOutput, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				assert.Same(t, prev, Logger, "failed init must not replace the logger")
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel(" warn ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0, zapcore.WarnLevel))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1, zapcore.WarnLevel))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2, zapcore.WarnLevel))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(5, zapcore.WarnLevel))
}

func TestSymbolLoggers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	AddTimerSymbol(base).Infow("scan started")
	AddDBSymbol(base).Infow("migrated")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, sym.Timer, entries[0].ContextMap()[FieldSymbol])
	assert.Equal(t, sym.DB, entries[1].ContextMap()[FieldSymbol])
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithTimerName(context.Background(), "purge-notifications-timer")
	FromContext(ctx, base).Infow("executing")
	FromContext(context.Background(), base).Infow("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "purge-notifications-timer", entries[0].ContextMap()[FieldTimerName])
	assert.NotContains(t, entries[1].ContextMap(), FieldTimerName)
}
