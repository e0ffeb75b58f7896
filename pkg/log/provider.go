package log

import (
	"context"
	"log/slog"
)

// slogLogger adapts *slog.Logger to the Logger interface. The logger is
// resolved lazily so that SetupLogger calls made after a component grabbed
// its logger still take effect.
type slogLogger struct {
	fields []any
}

func (l *slogLogger) base() *slog.Logger {
	if len(l.fields) == 0 {
		return slog.Default()
	}
	return slog.Default().With(l.fields...)
}

func (l *slogLogger) log(level slog.Level, msg string, fields ...any) {
	ctx := context.Background()
	if level < levelVar.Level() {
		return
	}
	logger := l.base()
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.Log(ctx, level, msg, fields...)
}

func (l *slogLogger) Debug(msg string, fields ...any) { l.log(slog.LevelDebug, msg, fields...) }
func (l *slogLogger) Info(msg string, fields ...any)  { l.log(slog.LevelInfo, msg, fields...) }
func (l *slogLogger) Warn(msg string, fields ...any)  { l.log(slog.LevelWarn, msg, fields...) }

func (l *slogLogger) Error(msg string, fields ...any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttr(err)}, fields[1:]...)
		}
	}
	l.log(slog.LevelError, msg, fields...)
}

func (l *slogLogger) With(fields ...any) Logger {
	merged := make([]any, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &slogLogger{fields: merged}
}

func (l *slogLogger) Enabled(ctx context.Context, level Level) bool {
	lv := slog.Level(level)
	return lv >= levelVar.Level() && l.base().Enabled(ctx, lv)
}

// SlogProvider hands out loggers backed by the process default slog handler.
type SlogProvider struct{}

// GetLogger implements LoggerProvider.GetLogger.
func (SlogProvider) GetLogger() Logger {
	return &slogLogger{}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (SlogProvider) GetLoggerWithName(name string) Logger {
	return &slogLogger{fields: []any{ComponentKey, name}}
}

// SetLevel implements LoggerProvider.SetLevel.
func (SlogProvider) SetLevel(level Level) {
	levelVar.Set(slog.Level(level))
}

var defaultProvider LoggerProvider = SlogProvider{}

// GetLogger returns a logger from the default provider.
func GetLogger() Logger {
	return defaultProvider.GetLogger()
}

// GetLoggerWithName returns a component logger from the default provider.
func GetLoggerWithName(name string) Logger {
	return defaultProvider.GetLoggerWithName(name)
}

// SetLevel sets the minimum level of the default provider.
func SetLevel(level Level) {
	defaultProvider.SetLevel(level)
}
