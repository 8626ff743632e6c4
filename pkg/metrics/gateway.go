package metrics

import "github.com/prometheus/client_golang/prometheus"

// GatewayMetrics tracks live sockets and push delivery.
type GatewayMetrics struct {
	connections prometheus.Gauge
	pushes      *prometheus.CounterVec
	evictions   prometheus.Counter
}

// NewGatewayMetrics registers the gateway metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connections",
		Help: "Live WebSocket connections held by this instance.",
	})
	pushes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_pushes_total",
		Help: "Pushes by delivery outcome (delivered, queued, failed).",
	}, []string{"outcome"})
	evictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_evictions_total",
		Help: "Connections evicted after missing liveness pings.",
	})
	reg.MustRegister(connections, pushes, evictions)
	return &GatewayMetrics{connections: connections, pushes: pushes, evictions: evictions}
}

func (g *GatewayMetrics) ConnectionOpened() {
	if g == nil || g.connections == nil {
		return
	}
	g.connections.Inc()
}

func (g *GatewayMetrics) ConnectionClosed() {
	if g == nil || g.connections == nil {
		return
	}
	g.connections.Dec()
}

func (g *GatewayMetrics) Push(outcome string) {
	if g == nil || g.pushes == nil {
		return
	}
	g.pushes.WithLabelValues(outcome).Inc()
}

func (g *GatewayMetrics) Evicted() {
	if g == nil || g.evictions == nil {
		return
	}
	g.evictions.Inc()
}
