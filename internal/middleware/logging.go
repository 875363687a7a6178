package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/octobees/leadgen/internal/logger"
)

// Logging writes one structured access log entry per HTTP request.
// Server errors log at error level, client errors at warn.
func Logging(log *zap.Logger) echo.MiddlewareFunc {
	log = logger.OrNop(log)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			level := zapcore.InfoLevel
			switch {
			case status >= 500:
				level = zapcore.ErrorLevel
			case status >= 400:
				level = zapcore.WarnLevel
			}

			fields := []zap.Field{
				zap.String("request_id", RequestIDFromContext(c)),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", latency),
			}
			if subject := SubjectFromContext(c); subject != "" {
				fields = append(fields, zap.String("subject", subject))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			if ce := log.Check(level, "http request"); ce != nil {
				ce.Write(fields...)
			}

			return err
		}
	}
}
