// Package metrics registers the process counters and serves /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"instrument"},
	)
	TicksDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_dropped_total", Help: "Ticks dropped before the pipeline"},
		[]string{"reason"},
	)
	BarsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "bars_total", Help: "Completed time bars"},
	)
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "decisions_total", Help: "Decisions emitted by the engine"},
		[]string{"action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted to the gateway"},
		[]string{"side"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "reconnects_total", Help: "Feed reconnect attempts"},
	)
	DispatchDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dispatch_dropped_total", Help: "Messages dropped by the saturated dispatch queue"},
	)
	TradesUnrecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "trades_unrecorded_total", Help: "Confirmed orders the trade store failed to persist"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, TicksDroppedTotal, BarsTotal, DecisionsTotal,
		OrdersTotal, ReconnectsTotal, DispatchDroppedTotal, TradesUnrecordedTotal,
	)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
