package admind

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes sets up the Echo routes
func (s *Server) setupRoutes() {
	s.echoServer.GET("/healthz", s.handleHealthz)

	api := s.echoServer.Group("/api")
	api.GET("/status", s.handleAPIStatus)
	api.GET("/channels", s.handleAPIChannels)
	api.GET("/clients", s.handleAPIClients)

	if s.config.Admin.Metrics {
		s.echoServer.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
			s.metrics.Registry(),
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		)))
	}
}

// handleHealthz reports liveness
func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
	})
}

// handleAPIStatus returns server-wide counts and uptime
func (s *Server) handleAPIStatus(c echo.Context) error {
	snap := s.source.Snapshot()

	registered := 0
	for _, client := range snap.Clients {
		if client.Registered {
			registered++
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"server":     snap.ServerName,
		"started_at": snap.StartTime,
		"taken_at":   snap.TakenAt,
		"uptime":     time.Since(snap.StartTime).Round(time.Second).String(),
		"clients":    len(snap.Clients),
		"registered": registered,
		"channels":   len(snap.Channels),
	})
}

// handleAPIChannels returns the channel list from the latest snapshot
func (s *Server) handleAPIChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.source.Snapshot().Channels)
}

// handleAPIClients returns the client list from the latest snapshot
func (s *Server) handleAPIClients(c echo.Context) error {
	return c.JSON(http.StatusOK, s.source.Snapshot().Clients)
}
