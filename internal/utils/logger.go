// Package utils provides utility functions used throughout the scope daemon.
package utils

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger that takes key/value pairs instead of zap fields.
type Logger struct {
	*zap.Logger
}

// LoggerOptions configures the logger instance.
type LoggerOptions struct {
	// Development switches to the colored console encoder.
	Development bool
	// Level sets the minimum enabled logging level
	Level zapcore.Level
	// Encoding is either "json" or "console". Development forces "console".
	Encoding string
	// OutputPaths defines where logs are written (e.g., stdout, file)
	OutputPaths []string
	// ErrorOutputPaths defines where internal logger errors are written
	ErrorOutputPaths []string
}

// DefaultLoggerOptions returns the default logger configuration.
func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		Level:            zapcore.InfoLevel,
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// NewLogger creates a new structured logger with the provided options.
// If no options are provided, default options are used.
func NewLogger(opts ...LoggerOptions) *Logger {
	options := DefaultLoggerOptions()
	if len(opts) > 0 {
		options = opts[0]
	}
	if len(options.OutputPaths) == 0 {
		options.OutputPaths = []string{"stdout"}
	}
	if len(options.ErrorOutputPaths) == 0 {
		options.ErrorOutputPaths = []string{"stderr"}
	}

	encoding := options.Encoding
	if encoding != "console" {
		encoding = "json"
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(options.Level),
		Development: options.Development,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      options.OutputPaths,
		ErrorOutputPaths: options.ErrorOutputPaths,
	}

	if options.Development {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.Sampling = nil
	}

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		fallback := zap.NewExample()
		fallback.Error("Failed to create logger", zap.Error(err))
		return &Logger{fallback}
	}

	return &Logger{logger}
}

// NewNopLogger returns a logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	return &Logger{zap.NewNop()}
}

// ParseLevel converts a config string into a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Info logs a message at info level with structured context.
func (l *Logger) Info(msg string, fields ...any) {
	l.Logger.Info(msg, toZapFields(fields)...)
}

// Error logs a message at error level. err may be nil.
func (l *Logger) Error(msg string, err error, fields ...any) {
	zapFields := toZapFields(fields)
	if err != nil {
		zapFields = append(zapFields, zap.Error(err))
	}
	l.Logger.Error(msg, zapFields...)
}

// Warn logs a message at warn level with structured context.
func (l *Logger) Warn(msg string, fields ...any) {
	l.Logger.Warn(msg, toZapFields(fields)...)
}

// Debug logs a message at debug level with structured context.
func (l *Logger) Debug(msg string, fields ...any) {
	l.Logger.Debug(msg, toZapFields(fields)...)
}

// Fatal logs a message at fatal level and then calls os.Exit(1).
func (l *Logger) Fatal(msg string, err error, fields ...any) {
	zapFields := toZapFields(fields)
	if err != nil {
		zapFields = append(zapFields, zap.Error(err))
	}
	l.Logger.Fatal(msg, zapFields...)
}

// With creates a new Logger with additional structured context.
func (l *Logger) With(fields ...any) *Logger {
	return &Logger{l.Logger.With(toZapFields(fields)...)}
}

// Named adds a sub-scope to the logger's name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{l.Logger.Named(name)}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() {
	_ = l.Logger.Sync()
}

// toZapFields converts alternating key/value pairs into zap fields.
// A trailing key without a value gets a placeholder.
func toZapFields(fields []any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}

	if len(fields)%2 != 0 {
		fields = append(fields, "MISSING_VALUE")
	}

	result := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = "INVALID_KEY"
		}

		switch v := fields[i+1].(type) {
		case string:
			result = append(result, zap.String(key, v))
		case int:
			result = append(result, zap.Int(key, v))
		case int64:
			result = append(result, zap.Int64(key, v))
		case uint:
			result = append(result, zap.Uint(key, v))
		case uint64:
			result = append(result, zap.Uint64(key, v))
		case float64:
			result = append(result, zap.Float64(key, v))
		case bool:
			result = append(result, zap.Bool(key, v))
		case time.Duration:
			result = append(result, zap.Duration(key, v))
		case error:
			result = append(result, zap.NamedError(key, v))
		default:
			result = append(result, zap.Any(key, v))
		}
	}
	return result
}

// GlobalLogger is the process-wide logger used where no component logger is at hand.
var GlobalLogger *Logger

func init() {
	GlobalLogger = NewLogger(LoggerOptions{
		Development: os.Getenv("SCOPE_ENV") != "production",
		Level:       zapcore.InfoLevel,
	})
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	return GlobalLogger
}

// SetLogger replaces the global logger, typically once the configuration is loaded.
func SetLogger(l *Logger) {
	if l != nil {
		GlobalLogger = l
	}
}
