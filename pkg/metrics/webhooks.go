package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics tracks webhook ingestion outcomes and the reconciliation
// backlog of payments stuck in a pending state.
type WebhookMetrics struct {
	accepted    *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	agedPending prometheus.Gauge
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	accepted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_accepted_total",
		Help: "Webhook deliveries that passed the ingestion guard.",
	}, []string{"provider"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_rejected_total",
		Help: "Webhook deliveries rejected by the ingestion guard, by reason.",
	}, []string{"provider", "reason"})
	agedPending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "payments_aged_pending",
		Help: "Attempts pending past the aged-alert threshold at last sweep.",
	})
	reg.MustRegister(accepted, rejected, agedPending)
	return &WebhookMetrics{
		accepted:    accepted,
		rejected:    rejected,
		agedPending: agedPending,
	}
}

// IncAccepted increments the accepted counter for the provider.
func (w *WebhookMetrics) IncAccepted(provider string) {
	if w == nil || w.accepted == nil {
		return
	}
	w.accepted.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncRejected increments the rejection counter for the provider and reason.
func (w *WebhookMetrics) IncRejected(provider, reason string) {
	if w == nil || w.rejected == nil {
		return
	}
	w.rejected.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

// SetAgedPending records the size of the aged pending backlog.
func (w *WebhookMetrics) SetAgedPending(count int) {
	if w == nil || w.agedPending == nil {
		return
	}
	w.agedPending.Set(float64(count))
}

// normalizeLabel keeps label cardinality bounded; an empty value becomes
// "unknown" rather than a blank series.
func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
