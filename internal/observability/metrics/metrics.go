package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for the chat, payment and analysis flows.
type BotMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	paymentEvents   *prometheus.CounterVec
	analysisTotal   *prometheus.CounterVec
	analysisLatency prometheus.Histogram
	sweptTotal      *prometheus.CounterVec
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diagnostico",
			Subsystem: "whatsapp",
			Name:      "inbound_events_total",
			Help:      "Total inbound WhatsApp events by message type",
		}, []string{"type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diagnostico",
			Subsystem: "whatsapp",
			Name:      "outbound_total",
			Help:      "Total outbound WhatsApp sends by kind",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "diagnostico",
			Subsystem: "http",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		paymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diagnostico",
			Subsystem: "payments",
			Name:      "events_total",
			Help:      "Payment provider events by outcome and handling result",
		}, []string{"outcome", "result"}),
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diagnostico",
			Subsystem: "analysis",
			Name:      "deliveries_total",
			Help:      "Analysis delivery attempts by outcome",
		}, []string{"outcome"}),
		analysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "diagnostico",
			Subsystem: "analysis",
			Name:      "model_latency_seconds",
			Help:      "Latency of the image analysis model call",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		sweptTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "diagnostico",
			Subsystem: "housekeeping",
			Name:      "removed_total",
			Help:      "Items removed by housekeeping sweeps",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency, m.paymentEvents,
		m.analysisTotal, m.analysisLatency, m.sweptTotal)
	return m
}

func (m *BotMetrics) ObserveInbound(msgType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(msgType, status).Inc()
}

func (m *BotMetrics) ObserveOutbound(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *BotMetrics) ObserveWebhookLatency(source string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(source).Observe(seconds)
}

func (m *BotMetrics) ObservePaymentEvent(outcome, result string) {
	if m == nil {
		return
	}
	m.paymentEvents.WithLabelValues(outcome, result).Inc()
}

func (m *BotMetrics) ObserveAnalysis(outcome string) {
	if m == nil {
		return
	}
	m.analysisTotal.WithLabelValues(outcome).Inc()
}

func (m *BotMetrics) ObserveAnalysisLatency(seconds float64) {
	if m == nil {
		return
	}
	m.analysisLatency.Observe(seconds)
}

func (m *BotMetrics) AddSwept(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptTotal.WithLabelValues(kind).Add(float64(n))
}
