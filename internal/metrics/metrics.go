// Package metrics holds the Prometheus collectors of the inventory service.
//
// Collectors live on a private registry so tests can construct components
// repeatedly without duplicate-registration panics. Handler exposes it.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inventory"

var (
	// RemoteAttempts counts every outbound call to the products service.
	RemoteAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "products_client",
			Name:      "attempts_total",
			Help:      "Outbound products service attempts by operation and outcome.",
		},
		[]string{"op", "outcome"}, // outcome: ok | not_found | retryable | hard | protocol
	)

	RemoteExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "products_client",
			Name:      "retries_exhausted_total",
			Help:      "Calls that failed after the whole retry budget.",
		},
		[]string{"op"},
	)

	Purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "purchases_total",
			Help:      "Purchase attempts by outcome.",
		},
		[]string{"outcome"}, // ok | insufficient | not_found | duplicate | invalid | error
	)

	LowStockAlerts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "low_stock_alerts_total",
		Help:      "LOW_STOCK_ALERT events emitted.",
	})

	EnrichmentFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "enrichment_failures_total",
		Help:      "Views returned with a partial product descriptor.",
	})

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events handed to a sink, by sink and outcome.",
		},
		[]string{"sink", "outcome"}, // outcome: ok | error | dropped
	)
)

var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	Registry.MustRegister(
		RemoteAttempts,
		RemoteExhausted,
		Purchases,
		LowStockAlerts,
		EnrichmentFailures,
		EventsPublished,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
