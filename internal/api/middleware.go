package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

const tokenHeader = "X-WA-Rotator-Token"

// authorize accepts the token as a query parameter, a dedicated header or a
// bearer token. An empty token disables the check.
func authorize(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" || requestToken(c.Request()) == token {
				return next(c)
			}
			return c.JSON(http.StatusUnauthorized, Response{Success: false, Message: "unauthorized"})
		}
	}
}

func requestToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if t := r.Header.Get(tokenHeader); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func securityHeaders(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")
		return next(c)
	}
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			ev := logger.Info()
			if v.Status >= http.StatusInternalServerError {
				ev = logger.Error().Err(v.Error)
			} else if v.Status >= http.StatusBadRequest {
				ev = logger.Warn()
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency.Round(time.Microsecond)).
				Str("remote", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

// errorHandler renders framework errors in the {success, message} envelope.
func errorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		} else {
			logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unhandled error")
		}
		if err := c.JSON(code, Response{Success: false, Message: msg}); err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}

func fail(c echo.Context, code int, msg string) error {
	return c.JSON(code, Response{Success: false, Message: msg})
}
