package utils

import (
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger backed by zap.
type Logger struct {
	base  *zap.Logger
	level zap.AtomicLevel
}

// NewLogger creates a logger writing to stdout. Format is "json" or "text".
func NewLogger(level, format string) *Logger {
	atomic := zap.NewAtomicLevelAt(parseLogLevel(level))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	encoder := zapcore.NewJSONEncoder(encoderConfig)
	if strings.ToLower(format) == "text" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atomic)
	return &Logger{
		base:  zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		level: atomic,
	}
}

// NewLoggerWithCore wraps an existing zap core. Used by tests to observe output.
func NewLoggerWithCore(core zapcore.Core) *Logger {
	return &Logger{
		base:  zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

// parseLogLevel parses string log level to a zap level
func parseLogLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// Named returns a child logger with the given name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{base: l.base.Named(name), level: l.level}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(parseLogLevel(level))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// Debug logs a debug message
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.base.Debug(message, toFields(context...)...)
}

// Info logs an info message
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.base.Info(message, toFields(context...)...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.base.Warn(message, toFields(context...)...)
}

// Error logs an error message
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	fields := toFields(context...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	l.base.Error(message, fields...)
}

// WithTraceID adds trace ID to log entry
func (l *Logger) WithTraceID(traceID string) *LoggerWithContext {
	return &LoggerWithContext{logger: l, traceID: traceID}
}

// WithSource adds source information to log entry
func (l *Logger) WithSource(source string) *LoggerWithContext {
	return &LoggerWithContext{logger: l, source: source}
}

// LoggerWithContext represents a logger with additional context
type LoggerWithContext struct {
	logger  *Logger
	traceID string
	source  string
	context map[string]interface{}
}

// WithSource adds source information to log entry (for LoggerWithContext)
func (lwc *LoggerWithContext) WithSource(source string) *LoggerWithContext {
	return &LoggerWithContext{logger: lwc.logger, traceID: lwc.traceID, source: source, context: lwc.context}
}

// WithTraceID adds trace ID to log entry (for LoggerWithContext)
func (lwc *LoggerWithContext) WithTraceID(traceID string) *LoggerWithContext {
	return &LoggerWithContext{logger: lwc.logger, traceID: traceID, source: lwc.source, context: lwc.context}
}

// WithContext adds context to the logger
func (lwc *LoggerWithContext) WithContext(context map[string]interface{}) *LoggerWithContext {
	merged := make(map[string]interface{}, len(lwc.context)+len(context))
	for k, v := range lwc.context {
		merged[k] = v
	}
	for k, v := range context {
		merged[k] = v
	}
	return &LoggerWithContext{logger: lwc.logger, traceID: lwc.traceID, source: lwc.source, context: merged}
}

// Debug logs a debug message with context
func (lwc *LoggerWithContext) Debug(message string, context ...map[string]interface{}) {
	lwc.logger.base.Debug(message, lwc.fields(context...)...)
}

// Info logs an info message with context
func (lwc *LoggerWithContext) Info(message string, context ...map[string]interface{}) {
	lwc.logger.base.Info(message, lwc.fields(context...)...)
}

// Warn logs a warning message with context
func (lwc *LoggerWithContext) Warn(message string, context ...map[string]interface{}) {
	lwc.logger.base.Warn(message, lwc.fields(context...)...)
}

// Error logs an error message with context
func (lwc *LoggerWithContext) Error(message string, err error, context ...map[string]interface{}) {
	fields := lwc.fields(context...)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	lwc.logger.base.Error(message, fields...)
}

func (lwc *LoggerWithContext) fields(context ...map[string]interface{}) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if lwc.traceID != "" {
		fields = append(fields, zap.String("trace_id", lwc.traceID))
	}
	if lwc.source != "" {
		fields = append(fields, zap.String("source", lwc.source))
	}
	all := make([]map[string]interface{}, 0, len(context)+1)
	if len(lwc.context) > 0 {
		all = append(all, lwc.context)
	}
	all = append(all, context...)
	return append(fields, toFields(all...)...)
}

// toFields merges context maps into zap fields with stable key order.
func toFields(context ...map[string]interface{}) []zap.Field {
	merged := make(map[string]interface{})
	for _, ctx := range context {
		for k, v := range ctx {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, merged[k]))
	}
	return fields
}

var (
	globalLogger *Logger
	globalMu     sync.Mutex
)

// InitLogger initializes the global logger
func InitLogger(level, format string) *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = NewLogger(level, format)
	return globalLogger
}

// SetLogger replaces the global logger.
func SetLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger("info", "json")
	}
	return globalLogger
}

// RequestLogger returns a logger carrying the request's trace ID.
func RequestLogger(c *fiber.Ctx, logger *Logger, source string) *LoggerWithContext {
	return logger.WithTraceID(GetTraceID(c)).WithSource(source)
}
