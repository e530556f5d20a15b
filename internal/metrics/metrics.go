package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WAIncomingMessages *prometheus.CounterVec
	WAOutgoingMessages *prometheus.CounterVec
	TGIncomingEvents   *prometheus.CounterVec
	TGOutgoingMessages *prometheus.CounterVec
	OrdersCreated      *prometheus.CounterVec
	OrderTransitions   *prometheus.CounterVec
	RaceLost           *prometheus.CounterVec
	SweeperRuns        prometheus.Counter
	SweeperCancelled   *prometheus.CounterVec
	SendLatency        *prometheus.HistogramVec
	Errors             *prometheus.CounterVec
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
			}, []string{"type", "status"}),
			TGIncomingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_incoming_events_total",
				Help:      "Total incoming Telegram updates by kind.",
			}, []string{"kind"}),
			TGOutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tg_outgoing_messages_total",
				Help:      "Total outgoing Telegram messages sent.",
			}, []string{"kind", "status"}),
			OrdersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_created_total",
				Help:      "Total orders created by service type.",
			}, []string{"type"}),
			OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "order_transitions_total",
				Help:      "Total order status transitions applied.",
			}, []string{"type", "to"}),
			RaceLost: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "race_lost_total",
				Help:      "Provider actions rejected because another actor won the claim.",
			}, []string{"action"}),
			SweeperRuns: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeper_runs_total",
				Help:      "Total sweeper passes.",
			}),
			SweeperCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweeper_cancelled_total",
				Help:      "Orders expired by the sweeper per service type.",
			}, []string{"type"}),
			SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_duration_seconds",
				Help:      "Latency distribution for outbound messaging API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"channel", "status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WAIncomingMessages,
			metricsInstance.WAOutgoingMessages,
			metricsInstance.TGIncomingEvents,
			metricsInstance.TGOutgoingMessages,
			metricsInstance.OrdersCreated,
			metricsInstance.OrderTransitions,
			metricsInstance.RaceLost,
			metricsInstance.SweeperRuns,
			metricsInstance.SweeperCancelled,
			metricsInstance.SendLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
