package metrics

import "github.com/prometheus/client_golang/prometheus"

// RoutingMetrics exposes counters/histograms for webhook routing flows.
type RoutingMetrics struct {
	decisionsTotal *prometheus.CounterVec
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewRoutingMetrics(reg prometheus.Registerer) *RoutingMetrics {
	m := &RoutingMetrics{
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldline",
			Subsystem: "routing",
			Name:      "decisions_total",
			Help:      "Routing decisions by destination",
		}, []string{"destination"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldline",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound provider webhooks",
		}, []string{"event_type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldline",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound provider sends",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fieldline",
			Subsystem: "routing",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.decisionsTotal, m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *RoutingMetrics) ObserveDecision(destination string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(destination).Inc()
}

func (m *RoutingMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *RoutingMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *RoutingMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}
