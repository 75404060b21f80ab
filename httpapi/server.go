// Package httpapi wires the cache/stream/webhook/sync/refresh/user core
// into an Echo HTTP server: the standard middleware stack, the six core
// endpoints of spec.md §6, and the two authenticated message routes C12
// needs to be exercised end-to-end.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"erpcache.eve.dev/apierrors"
	"erpcache.eve.dev/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// NewEchoServer builds an Echo instance with the standard middleware
// stack: request logging, panic recovery, body size limit, CORS, request
// id, and (if configured) a global rate limiter.
func NewEchoServer(cfg config.ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Debug
	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.Recover())

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	e.Use(middleware.RequestID())

	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	return e
}

// StartServer starts e with the timeouts from cfg, blocking until the
// server stops or errors.
func StartServer(e *echo.Echo, cfg config.ServerConfig) error {
	s := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return e.StartServer(s)
}

// GracefulShutdown shuts e down within timeout.
func GracefulShutdown(e *echo.Echo, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return e.Shutdown(ctx)
}

// ErrorResponse is the standard JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CustomHTTPErrorHandler translates an *apierrors.Error into its mapped
// HTTP status and an *echo.HTTPError into its own code; any other error is
// answered with 500.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	var apiErr *apierrors.Error
	status := http.StatusInternalServerError
	message := err.Error()

	if apierrors.As(err, &apiErr) {
		status = apiErr.Status()
		message = apiErr.Message
	} else if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, ErrorResponse{Error: http.StatusText(status), Message: message})
}
