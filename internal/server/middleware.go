package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/samvad-hq/samvad-news-feed/internal/logger"
)

// RequestLogger logs one structured line per request through log.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	log = logger.Ensure(log)
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogLatency:  true,
		LogURI:      true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]any{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
				log.ErrorObj("request failed", "http_request", fields)
				return nil
			}
			log.InfoObj("request", "http_request", fields)
			return nil
		},
	})
}
