package logger

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/teranos/notify/sym"
)

// Everforest palette: muted greens for routine work, warm colors for trouble
const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorFg     = "\x1b[38;5;223m"
	colorGreen  = "\x1b[38;5;108m"
	colorTime   = "\x1b[38;5;107m"
	colorDeep   = "\x1b[38;5;65m"
	colorAqua   = "\x1b[38;5;109m"
	colorOrange = "\x1b[38;5;208m"
	colorYellow = "\x1b[38;5;179m"
	colorRed    = "\x1b[38;5;167m"
	colorRedBg  = "\x1b[48;5;52m"
	colorWarnBg = "\x1b[48;5;58m"
)

var bufferPool = buffer.NewPool()

// leadFields are printed first, in this order, as bare values
var leadFields = []string{FieldTimerName, FieldOutcome, FieldMessageID, FieldUserID}

// consoleEncoder renders one compact line per entry:
//
//	13:04:35  WARN  timer  ꩜  Handler reported errors  purge-notifications-timer soft_failure  errors=1
//
// Context fields added with With() are kept alongside the entry's own fields.
type consoleEncoder struct {
	*zapcore.MapObjectEncoder
	color bool
}

func newConsoleEncoder(color bool) *consoleEncoder {
	return &consoleEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder(), color: color}
}

func (enc *consoleEncoder) Clone() zapcore.Encoder {
	clone := newConsoleEncoder(enc.color)
	for k, v := range enc.Fields {
		clone.Fields[k] = v
	}
	return clone
}

func (enc *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	all := enc.Clone().(*consoleEncoder)
	for _, f := range fields {
		f.AddTo(all.MapObjectEncoder)
	}
	values := all.Fields

	line := bufferPool.Get()
	line.AppendString(enc.paint(colorTime, ent.Time.Format("15:04:05")))

	if ent.Level != zapcore.InfoLevel {
		line.AppendString("  ")
		line.AppendString(enc.level(ent.Level))
	}
	if ent.LoggerName != "" {
		line.AppendString("  ")
		line.AppendString(enc.paint(colorOrange, abbreviateName(ent.LoggerName)))
	}
	if s, ok := values[FieldSymbol].(string); ok {
		line.AppendString("  ")
		line.AppendString(enc.paint(symbolColor(s), s))
		delete(values, FieldSymbol)
	}

	line.AppendString("  ")
	line.AppendString(enc.paint(colorFg, ent.Message))

	var lead []string
	for _, key := range leadFields {
		if v, ok := values[key]; ok {
			lead = append(lead, enc.paint(colorAqua, formatValue(v)))
			delete(values, key)
		}
	}
	if len(lead) > 0 {
		line.AppendString("  ")
		line.AppendString(strings.Join(lead, " "))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		color := colorDeep
		if k == FieldError {
			color = colorRed
		}
		line.AppendString("  ")
		line.AppendString(enc.paint(color, k+"="+formatValue(values[k])))
	}

	line.AppendString("\n")
	return line, nil
}

func (enc *consoleEncoder) paint(color, s string) string {
	if !enc.color {
		return s
	}
	return color + s + colorReset
}

func (enc *consoleEncoder) level(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return enc.paint(colorDeep, "DEBUG")
	case zapcore.WarnLevel:
		if !enc.color {
			return "WARN"
		}
		return colorBold + colorWarnBg + colorYellow + "WARN" + colorReset
	default:
		if !enc.color {
			return l.CapitalString()
		}
		return colorBold + colorRedBg + colorRed + l.CapitalString() + colorReset
	}
}

func symbolColor(s string) string {
	switch s {
	case sym.Close:
		return colorOrange
	case sym.AM, sym.DB:
		return colorAqua
	default:
		return colorGreen
	}
}

// abbreviateName shortens component names: timer.ticker -> t.ticker
func abbreviateName(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) > 1 && parts[0] != "" {
		return string(parts[0][0]) + "." + strings.Join(parts[1:], ".")
	}
	return name
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case time.Duration:
		return val.String()
	case float64:
		if val == math.Trunc(val) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.3f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
