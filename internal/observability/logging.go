// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
)

// GlobalLogger is the default logger instance for the application.
var GlobalLogger = NewLogger(os.Getenv("APP_ENV"))

// NewLogger builds a JSON logger for production and a console logger
// everywhere else. It never returns nil.
func NewLogger(env string) *zap.Logger {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// ContextKey is the type of request-scoped values carried for logging and tracing.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	UserIDKey    ContextKey = "user_id"
	TraceIDKey   ContextKey = "trace_id"
)

// ContextFields returns the request, user and trace IDs stored in ctx as zap fields.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	for _, key := range []ContextKey{RequestIDKey, UserIDKey, TraceIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			fields = append(fields, zap.String(string(key), v))
		}
	}
	return fields
}

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableRepoLogging bool
	EnableWSLogging   bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableRepoLogging: true,
	EnableWSLogging:   true,
}

// RepoLogger provides structured logging for repository operations.
type RepoLogger struct {
	tableName string
}

// NewRepoLogger creates a new RepoLogger for the given table.
func NewRepoLogger(tableName string) *RepoLogger {
	return &RepoLogger{tableName: tableName}
}

func (l *RepoLogger) fields(ctx context.Context, operation string, extra []zap.Field) []zap.Field {
	fields := append([]zap.Field{
		zap.String("table", l.tableName),
		zap.String("operation", operation),
	}, ContextFields(ctx)...)
	return append(fields, extra...)
}

// LogWrite logs a successful repository write at debug level.
func (l *RepoLogger) LogWrite(ctx context.Context, operation string, extra ...zap.Field) {
	if !Config.EnableRepoLogging {
		return
	}
	GlobalLogger.Debug("repository write", l.fields(ctx, operation, extra)...)
}

// LogError logs a repository error.
func (l *RepoLogger) LogError(ctx context.Context, err error, operation string, extra ...zap.Field) {
	if !Config.EnableRepoLogging {
		return
	}
	GlobalLogger.Error("repository error", l.fields(ctx, operation, append(extra, zap.Error(err)))...)
}

// WSLogger provides structured logging for WebSocket operations.
type WSLogger struct {
	hubName string
}

// NewWSLogger creates a new WSLogger for the given hub.
func NewWSLogger(hubName string) *WSLogger {
	return &WSLogger{hubName: hubName}
}

// LogConnect logs a WebSocket connection event.
func (l *WSLogger) LogConnect(userID string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.Info("websocket connected",
		zap.String("hub", l.hubName),
		zap.String("user_id", userID),
	)
}

// LogDisconnect logs a WebSocket disconnection event.
func (l *WSLogger) LogDisconnect(userID, reason string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.Info("websocket disconnected",
		zap.String("hub", l.hubName),
		zap.String("user_id", userID),
		zap.String("reason", reason),
	)
}

// LogError logs a WebSocket error event.
func (l *WSLogger) LogError(userID string, err error, eventType string) {
	if !Config.EnableWSLogging {
		return
	}
	GlobalLogger.Warn("websocket error",
		zap.String("hub", l.hubName),
		zap.String("user_id", userID),
		zap.String("event_type", eventType),
		zap.Error(err),
	)
}
