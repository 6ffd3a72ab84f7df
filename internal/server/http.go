// Package server is the HTTP surface over the dispatcher.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default request body cap. PDF uploads are the largest legitimate payload.
const defaultBodyLimit int64 = 32 << 20

// Config holds server options.
type Config struct {
	// BodySizeLimit caps request bodies in bytes (default 32MB).
	BodySizeLimit int64
	// MetricsEnabled exposes /metrics.
	MetricsEnabled bool
}

// Server wraps the Echo instance.
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// New builds the route table around a handler.
func New(handler *Handler, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.Round(time.Millisecond).String(),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	bodyLimit := defaultBodyLimit
	if cfg != nil && cfg.BodySizeLimit > 0 {
		bodyLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodyLimit, 10)))

	e.GET("/health", handler.Health)
	if cfg != nil && cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	e.POST("/api/chat", handler.Chat)
	e.POST("/api/image", handler.Image)
	e.POST("/api/pdf", handler.PDF)
	e.GET("/api/history", handler.History)
	e.GET("/api/models/:provider", handler.Models)
	e.GET("/api/apis", handler.APIs)

	return &Server{echo: e, handler: handler}
}

// Start listens on addr.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server run under httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
