package middleware

import (
	"context"
	"time"

	"devconnector/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Logger is the global structured logger instance used throughout the application.
var Logger = observability.GlobalLogger

const (
	RequestIDKey = observability.RequestIDKey
	UserIDKey    = observability.UserIDKey
	TraceIDKey   = observability.TraceIDKey
)

// FromContext returns Logger decorated with the request, user and trace IDs
// found in ctx.
func FromContext(ctx context.Context) *zap.Logger {
	fields := observability.ContextFields(ctx)
	if len(fields) == 0 {
		return Logger
	}
	return Logger.With(fields...)
}

// ContextMiddleware injects request ID, user ID and trace ID from Fiber locals
// into the request context so service layers can log with them.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		if rid, ok := c.Locals("requestid").(string); ok {
			ctx = context.WithValue(ctx, RequestIDKey, rid)
		}
		// Only populated when this runs after AuthRequired.
		if uid, ok := c.Locals("userID").(string); ok {
			ctx = context.WithValue(ctx, UserIDKey, uid)
		}
		if tid, ok := c.Locals("traceID").(string); ok {
			ctx = context.WithValue(ctx, TraceIDKey, tid)
		}

		c.SetUserContext(ctx)
		return c.Next()
	}
}

// StructuredLogger returns a Fiber middleware for logging requests using zap
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Response().StatusCode()),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user_agent", c.Get("User-Agent")),
		}
		// AuthRequired runs after this middleware, so pick the user up here.
		if uid, ok := CurrentUserID(c); ok {
			fields = append(fields, zap.String("user_id", uid))
		}

		log := FromContext(c.UserContext())
		if err != nil {
			fields = append(fields, zap.Error(err))
			log.Error("request failed", fields...)
		} else {
			log.Info("request processed", fields...)
		}

		return err
	}
}
