package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	l *zap.Logger
}

// NewZapLogger builds a production zap logger at the given level with ISO8601
// timestamps.
func NewZapLogger(level string) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logging: invalid zap level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logging: build zap logger: %w", err)
	}
	return &ZapLogger{l: l}, nil
}

// WrapZap adapts an existing zap logger (zaptest, zap.NewNop, ...).
func WrapZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l}
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func (z *ZapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, toZap(fields)...) }
func (z *ZapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, toZap(fields)...) }
func (z *ZapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, toZap(fields)...) }
func (z *ZapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, toZap(fields)...) }

func (z *ZapLogger) With(fields ...Field) Logger {
	return &ZapLogger{l: z.l.With(toZap(fields)...)}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.l.Sync()
}

// New picks a backend by name: "zap" or "stdout" (default).
func New(backend, level, component string) (Logger, error) {
	switch backend {
	case "zap":
		z, err := NewZapLogger(level)
		if err != nil {
			return nil, err
		}
		if component == "" {
			return z, nil
		}
		return z.With(Field{Key: "component", Value: component}), nil
	case "", "stdout":
		s := NewStdoutLogger(component)
		s.SetLevel(level)
		return s, nil
	default:
		return nil, fmt.Errorf("logging: unknown backend %q", backend)
	}
}
