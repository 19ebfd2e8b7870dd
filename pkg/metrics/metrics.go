package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tick metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zonekeeper_ticks_total",
			Help: "Total number of completed reconciliation ticks",
		},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "zonekeeper_tick_duration_seconds",
			Help:    "Duration of one fetch/classify/reconcile tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FetchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "zonekeeper_fetch_failures_total",
			Help: "Total number of ticks aborted because the fleet snapshot failed",
		},
	)

	// Fleet metrics
	NodesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zonekeeper_nodes_total",
			Help: "Total number of nodes in the last fleet snapshot",
		},
	)

	NodesHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zonekeeper_nodes_healthy",
			Help: "Number of healthy nodes in the last fleet snapshot",
		},
	)

	NodesThrottled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "zonekeeper_nodes_throttled",
			Help: "Number of (node, zone) pairs currently throttled by load",
		},
	)

	// DNS metrics
	RecordsDesired = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "zonekeeper_records_desired",
			Help: "Number of records the engine wants published, per zone",
		},
		[]string{"zone"},
	)

	DNSOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zonekeeper_dns_operations_total",
			Help: "Total DNS provider operations by action and status",
		},
		[]string{"action", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		TickDuration,
		FetchFailuresTotal,
		NodesTotal,
		NodesHealthy,
		NodesThrottled,
		RecordsDesired,
		DNSOperationsTotal,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts the metrics endpoint on the given address. Blocks.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
