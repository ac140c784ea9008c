// Package api exposes the HTTP control surface: session lifecycle, agent
// profile CRUD, session records, health probes, and Prometheus metrics.
//
// The surface is deliberately thin. Handlers translate between JSON and the
// session, profilestore, and record packages; all conversation logic lives
// behind them.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vanivoice/vani/internal/agent/profilestore"
	"github.com/vanivoice/vani/internal/health"
	"github.com/vanivoice/vani/internal/observe"
	"github.com/vanivoice/vani/internal/record"
)

// Server is the HTTP control surface.
type Server struct {
	e        *echo.Echo
	log      *slog.Logger
	metrics  *observe.Metrics
	manager  *Manager
	profiles profilestore.Store
	records  record.Store
	health   *health.Handler
}

// Option is a functional option for configuring a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics sets the metrics instance used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the health handler serving /healthz and /readyz. Defaults
// to a handler with no readiness checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// New builds the server and registers every route.
func New(manager *Manager, profiles profilestore.Store, records record.Store, opts ...Option) *Server {
	s := &Server{
		log:      slog.Default(),
		manager:  manager,
		profiles: profiles,
		records:  records,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(observe.Middleware(s.metrics))

	s.health.Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/sessions", s.createSession)
	v1.GET("/sessions/:id", s.getSession)
	v1.POST("/sessions/:id/text", s.sendSessionText)
	v1.DELETE("/sessions/:id", s.endSession)

	v1.GET("/records", s.listRecords)
	v1.GET("/records/:id", s.getRecord)
	v1.DELETE("/records/:id", s.deleteRecord)

	v1.GET("/agents", s.listAgents)
	v1.POST("/agents", s.createAgent)
	v1.GET("/agents/:id", s.getAgent)
	v1.PUT("/agents/:id", s.updateAgent)
	v1.DELETE("/agents/:id", s.deleteAgent)

	s.e = e
	return s
}

// Handler returns the underlying http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start serves on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.log.Info("http server listening", "addr", addr)
	return s.e.Start(addr)
}

// StartTLS serves TLS on addr and blocks until the server stops.
func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	s.log.Info("https server listening", "addr", addr)
	return s.e.StartTLS(addr, certFile, keyFile)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// errorHandler renders every error as {"error": string}.
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}
	if err := c.JSON(code, map[string]string{"error": msg}); err != nil {
		s.log.Warn("error response write failed", "err", err)
	}
}
