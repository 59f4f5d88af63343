package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is one of debug, info, warn or error. Anything else logs at info.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) slogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel
	ServiceName string
	Environment string
	Version     string
	Output      io.Writer
	AddSource   bool
}

// DefaultConfig logs JSON at info to stdout. ENVIRONMENT and VERSION fill the
// base attributes.
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Level:       LevelInfo,
		ServiceName: serviceName,
		Environment: envOr("ENVIRONMENT", "development"),
		Version:     envOr("VERSION", "unknown"),
		Output:      os.Stdout,
	}
}

// Logger is a JSON slog.Logger that always carries service, environment and
// version, plus helpers for the records this service emits.
type Logger struct {
	*slog.Logger
}

func New(config *Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       config.Level.slogLevel(),
		AddSource:   config.AddSource,
		ReplaceAttr: utcTime,
	})
	return &Logger{Logger: slog.New(handler).With(
		"service", config.ServiceName,
		"environment", config.Environment,
		"version", config.Version,
	)}
}

// NewNop discards every record
func NewNop() *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithContext adds the request, correlation, trace and user ids found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		return l.with(attrs...)
	}
	return l
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.with(flatten(nil, fields)...)
}

func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithContainer scopes records to one plan container
func (l *Logger) WithContainer(planID, containerID string) *Logger {
	return l.with("planId", planID, "containerId", containerID)
}

// Event logs a business event
func (l *Logger) Event(ctx context.Context, eventType string, data map[string]any) {
	l.WithContext(ctx).Info("Business event", flatten([]any{"eventType", eventType}, data)...)
}

// Audit logs a mutating workflow action: unseal, reseal, start destuff,
// record result or complete.
func (l *Logger) Audit(ctx context.Context, action, resource, resourceID string, details map[string]any) {
	attrs := []any{"auditAction", action, "resource", resource, "resourceId", resourceID}
	l.WithContext(ctx).Info("Audit event", flatten(attrs, details)...)
}

// CollaboratorCall logs an upstream call at Debug, or Warn when it failed
func (l *Logger) CollaboratorCall(ctx context.Context, service, operation string, duration time.Duration, err error) {
	level := slog.LevelDebug
	attrs := []any{
		"collaborator", service,
		"operation", operation,
		"durationMs", duration.Milliseconds(),
		"success", err == nil,
	}
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", err.Error())
	}
	l.WithContext(ctx).Log(ctx, level, "Collaborator call", attrs...)
}

// KafkaConsume logs one consumed message at Debug
func (l *Logger) KafkaConsume(ctx context.Context, topic, eventType string, partition int, offset int64) {
	l.WithContext(ctx).Debug("Kafka consume",
		"topic", topic,
		"eventType", eventType,
		"partition", partition,
		"offset", offset,
	)
}

// SetDefault installs l as the slog default
func (l *Logger) SetDefault() {
	slog.SetDefault(l.Logger)
}

func flatten(attrs []any, fields map[string]any) []any {
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return attrs
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
