package metrics

import (
	"net/http"
	"time"

	"github.com/dnldd/trends/engine"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the rebalancing activity of the service.
type Metrics struct {
	registry       *prometheus.Registry
	TicksTotal     prometheus.Counter
	DecisionsTotal *prometheus.CounterVec
	ActionsTotal   *prometheus.CounterVec
	PortfolioValue prometheus.Gauge
}

// NewMetrics initializes and registers the service metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "trends_ticks_total", Help: "Count of market ticks processed"},
		),
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "trends_decisions_total", Help: "Tick decisions by outcome"},
			[]string{"outcome"},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "trends_actions_total", Help: "Portfolio actions emitted"},
			[]string{"market", "kind"},
		),
		PortfolioValue: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "trends_portfolio_value", Help: "Paper portfolio value at last prices"},
		),
	}

	m.registry.MustRegister(m.TicksTotal, m.DecisionsTotal, m.ActionsTotal, m.PortfolioValue)

	return m
}

// Registry returns the registry the service metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDecision records the provided decision.
func (m *Metrics) ObserveDecision(decision engine.Decision) {
	m.TicksTotal.Inc()
	m.DecisionsTotal.WithLabelValues(decision.Outcome.String()).Inc()
	for idx := range decision.Actions {
		action := decision.Actions[idx]
		m.ActionsTotal.WithLabelValues(action.Market, action.Kind.String()).Inc()
	}
}

// Serve exposes the metrics on the provided address.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: time.Second * 5}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
