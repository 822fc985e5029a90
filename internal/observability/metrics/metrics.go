package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics exposes counters/histograms for prompt initiation and
// provider callback reconciliation.
type PaymentMetrics struct {
	promptsTotal    *prometheus.CounterVec
	callbacksTotal  *prometheus.CounterVec
	gatewayLatency  *prometheus.HistogramVec
	callbackLatency *prometheus.HistogramVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	m := &PaymentMetrics{
		promptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doorstep",
			Subsystem: "payments",
			Name:      "stk_prompts_total",
			Help:      "Total STK push prompts attempted",
		}, []string{"subject", "result"}),
		callbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doorstep",
			Subsystem: "payments",
			Name:      "callbacks_total",
			Help:      "Total IntaSend callbacks by outcome",
		}, []string{"state", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doorstep",
			Subsystem: "payments",
			Name:      "gateway_latency_seconds",
			Help:      "Latency of outbound STK push calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		callbackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "doorstep",
			Subsystem: "payments",
			Name:      "callback_latency_seconds",
			Help:      "Latency of callback reconciliation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.promptsTotal, m.callbacksTotal, m.gatewayLatency, m.callbackLatency)
	return m
}

// ObservePrompt records one initiation attempt; subject is appointment or subscription.
func (m *PaymentMetrics) ObservePrompt(subject, result string, seconds float64) {
	if m == nil {
		return
	}
	m.promptsTotal.WithLabelValues(subject, result).Inc()
	m.gatewayLatency.WithLabelValues(result).Observe(seconds)
}

func (m *PaymentMetrics) ObserveCallback(state, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.callbacksTotal.WithLabelValues(state, outcome).Inc()
	m.callbackLatency.WithLabelValues(state).Observe(seconds)
}
