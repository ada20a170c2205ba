package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WAIncomingMessages  *prometheus.CounterVec
	WAOutgoingMessages  *prometheus.CounterVec
	CheckoutTransitions *prometheus.CounterVec
	ReconcilePasses     *prometheus.CounterVec
	OrdersConfirmed     *prometheus.CounterVec
	StoreLatency        *prometheus.HistogramVec
	Errors              *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WAIncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_incoming_messages_total",
				Help:      "Total incoming WhatsApp messages processed.",
			}, []string{"type"}),
			WAOutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_outgoing_messages_total",
				Help:      "Total outgoing WhatsApp messages sent.",
			}, []string{"type"}),
			CheckoutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_transitions_total",
				Help:      "Checkout state transitions by trigger and outcome.",
			}, []string{"trigger", "outcome"}),
			ReconcilePasses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inventory_reconcile_passes_total",
				Help:      "Reconciliation passes grouped by verdict outcome.",
			}, []string{"outcome"}),
			OrdersConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_confirmed_total",
				Help:      "Orders finalized, by payment method.",
			}, []string{"payment_method"}),
			StoreLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Latency distribution for persistence operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op", "status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WAIncomingMessages,
			metricsInstance.WAOutgoingMessages,
			metricsInstance.CheckoutTransitions,
			metricsInstance.ReconcilePasses,
			metricsInstance.OrdersConfirmed,
			metricsInstance.StoreLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
