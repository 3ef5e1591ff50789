package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/notify/sym"
)

func encodeLine(t *testing.T, enc zapcore.Encoder, ent zapcore.Entry, fields ...zapcore.Field) string {
	t.Helper()
	buf, err := enc.EncodeEntry(ent, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestConsoleEncoderLayout(t *testing.T) {
	enc := newConsoleEncoder(false)
	ent := zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    time.Date(2026, 3, 2, 13, 4, 35, 0, time.UTC),
		Message: "Timer rescheduled",
	}

	line := encodeLine(t, enc, ent,
		zap.String(FieldSymbol, sym.Timer),
		zap.String(FieldOutcome, "rescheduled"),
		zap.String(FieldTimerName, "purge-notifications-timer"),
		zap.Int64(FieldDurationMS, 12),
	)
	assert.Equal(t, "13:04:35  ꩜  Timer rescheduled  purge-notifications-timer rescheduled  duration_ms=12\n", line)
}

func TestConsoleEncoderKeepsContextFields(t *testing.T) {
	enc := newConsoleEncoder(false)
	enc.AddString(FieldSymbol, sym.DB)

	clone := enc.Clone()
	clone.AddString(FieldComponent, "store")

	ent := zapcore.Entry{Level: zapcore.WarnLevel, Time: time.Unix(0, 0).UTC(), Message: "Slow query", LoggerName: "db.sqlite"}
	line := encodeLine(t, clone, ent, zap.Error(errors.New("database is locked")))

	assert.Contains(t, line, "WARN  d.sqlite  ⊔  Slow query")
	assert.Contains(t, line, "component=store")
	assert.Contains(t, line, "error=database is locked")
	assert.NotContains(t, encodeLine(t, enc, ent), "component=", "clones must not leak fields back")
}

func TestConsoleEncoderColor(t *testing.T) {
	enc := newConsoleEncoder(true)
	ent := zapcore.Entry{Level: zapcore.ErrorLevel, Time: time.Unix(0, 0).UTC(), Message: "boom"}

	line := encodeLine(t, enc, ent)
	assert.Contains(t, line, colorRedBg)
	assert.Contains(t, line, colorReset)
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "t.ticker", abbreviateName("timer.ticker"))
	assert.Equal(t, "timer", abbreviateName("timer"))
}
