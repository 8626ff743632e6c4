package metrics

import "github.com/prometheus/client_golang/prometheus"

// Delivery outcomes recorded by the bus subscriber.
const (
	OutcomeAck     = "ack"
	OutcomeNack    = "nack"
	OutcomeDropped = "dropped"
)

// BusMetrics counts message bus traffic.
type BusMetrics struct {
	deliveries *prometheus.CounterVec
	publishes  *prometheus.CounterVec
}

// NewBusMetrics registers the bus metrics on the provided registerer.
func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	if reg == nil {
		return &BusMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_total",
		Help: "Messages consumed from the bus by outcome.",
	}, []string{"queue", "outcome"})
	publishes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_publish_total",
		Help: "Messages published to the bus by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(deliveries, publishes)
	return &BusMetrics{deliveries: deliveries, publishes: publishes}
}

// ObserveDelivery counts a consumed message.
func (b *BusMetrics) ObserveDelivery(queue, outcome string) {
	if b == nil || b.deliveries == nil {
		return
	}
	b.deliveries.WithLabelValues(normalizeLabel(queue), outcome).Inc()
}

// ObservePublish counts a publish attempt.
func (b *BusMetrics) ObservePublish(ok bool) {
	if b == nil || b.publishes == nil {
		return
	}
	outcome := "confirmed"
	if !ok {
		outcome = "failed"
	}
	b.publishes.WithLabelValues(outcome).Inc()
}
