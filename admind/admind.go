// Package admind serves the read-only admin surface over HTTP: liveness,
// JSON views of the latest server snapshot, and Prometheus metrics.
// Handlers only ever read published snapshots, never live server state.
package admind

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/presbrey/ircserv/config"
	"github.com/presbrey/ircserv/irc"
	"github.com/presbrey/ircserv/metrics"
)

// StateSource yields point-in-time views of the IRC server.
type StateSource interface {
	Snapshot() *irc.Snapshot
}

// Server is the admin HTTP server.
type Server struct {
	config  *config.Config
	source  StateSource
	metrics *metrics.Metrics

	echoServer *echo.Echo
	onceSetup  sync.Once
}

// New creates an admin server around a state source.
func New(cfg *config.Config, source StateSource, m *metrics.Metrics) *Server {
	return &Server{
		config:  cfg,
		source:  source,
		metrics: m,
	}
}

func (s *Server) setup() {
	s.onceSetup.Do(func() {
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(middleware.Recover())
		e.Use(s.observe)

		s.echoServer = e
		s.setupRoutes()
	})
}

// Start serves the admin API until Shutdown is called.
func (s *Server) Start() error {
	s.setup()
	err := s.echoServer.Start(s.config.AdminAddr())
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.setup()
	return s.echoServer.Shutdown(ctx)
}

// Handler returns the configured routes as an http.Handler.
func (s *Server) Handler() http.Handler {
	s.setup()
	return s.echoServer
}

// ListenerAddr reports the bound address, or nil before Start.
func (s *Server) ListenerAddr() net.Addr {
	s.setup()
	return s.echoServer.ListenerAddr()
}

// observe records request count and latency per route. Unmatched paths
// share one route label, so cardinality stays bounded.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		status := c.Response().Status
		if err != nil {
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				status = httpErr.Code
			} else {
				status = http.StatusInternalServerError
			}
		}

		method := c.Request().Method
		path := c.Path()
		s.metrics.HTTPRequests.WithLabelValues(strconv.Itoa(status), method, path).Inc()
		s.metrics.HTTPDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		return err
	}
}
