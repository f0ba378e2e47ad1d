// Package metrics collects server counters on a private Prometheus
// registry. The event loop updates collectors inline; the admin surface
// serves the registry at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors. Each instance owns
// its registry so several servers can coexist in one process without
// duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	// ConnectionsAccepted counts accepted connections
	ConnectionsAccepted prometheus.Counter

	// ConnectionsClosed counts torn-down connections
	ConnectionsClosed prometheus.Counter

	// CurrentConnections tracks live connections
	CurrentConnections prometheus.Gauge

	// RegisteredClients tracks connections past registration
	RegisteredClients prometheus.Gauge

	// ChannelsCurrent tracks live channels
	ChannelsCurrent prometheus.Gauge

	// MessagesReceived counts inbound protocol lines
	MessagesReceived prometheus.Counter

	// MessagesSent counts outbound protocol lines
	MessagesSent prometheus.Counter

	// Commands counts dispatched commands by name
	Commands *prometheus.CounterVec

	// HTTPRequests counts admin requests by method, route, and status
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration observes admin request latency by route
	HTTPDuration *prometheus.HistogramVec
}

// New creates a metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircserv_connections_accepted_total",
			Help: "Connections accepted since start",
		}),
		ConnectionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircserv_connections_closed_total",
			Help: "Connections torn down since start",
		}),
		CurrentConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircserv_connections_current",
			Help: "Connections currently open",
		}),
		RegisteredClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircserv_clients_registered",
			Help: "Clients past the registration handshake",
		}),
		ChannelsCurrent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircserv_channels_current",
			Help: "Channels currently in the registry",
		}),
		MessagesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircserv_messages_received_total",
			Help: "Protocol lines received from clients",
		}),
		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircserv_messages_sent_total",
			Help: "Protocol lines queued for clients",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircserv_commands_total",
			Help: "Dispatched commands by name",
		}, []string{"command"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircserv_http_requests_total",
			Help: "Admin HTTP requests by method, route, and status code",
		}, []string{"code", "method", "path"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ircserv_http_request_duration_seconds",
			Help:    "Admin HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Registry returns the registry backing this metric set.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
