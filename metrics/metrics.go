// Package metrics exposes the agent's Prometheus collectors:
//
//   - tradeagent_cycles_total{outcome}        cycles by outcome (ok|skipped|failed|busy)
//   - tradeagent_cycle_seconds                cycle duration
//   - tradeagent_signals_total{call}          prediction calls received
//   - tradeagent_orders_total{mode,action,type} order legs submitted
//   - tradeagent_fills_total{kind}            classified fills (entry|exit)
//   - tradeagent_reconcile_corrections_total  local state overwritten by broker truth
//   - tradeagent_commands_total{command,result} manual commands handled
//   - tradeagent_position_size                current local position size
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	cycles      *prometheus.CounterVec
	cycleTime   prometheus.Histogram
	signals     *prometheus.CounterVec
	orders      *prometheus.CounterVec
	fills       *prometheus.CounterVec
	corrections prometheus.Counter
	commands    *prometheus.CounterVec
	position    prometheus.Gauge
}

// New registers the agent collectors, plus the Go and process collectors,
// on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeagent_cycles_total",
				Help: "Trade cycles by outcome",
			},
			[]string{"outcome"},
		),
		cycleTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradeagent_cycle_seconds",
				Help:    "Trade cycle duration",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeagent_signals_total",
				Help: "Prediction calls received from the signal service",
			},
			[]string{"call"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeagent_orders_total",
				Help: "Order legs submitted",
			},
			[]string{"mode", "action", "type"},
		),
		fills: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeagent_fills_total",
				Help: "Fills that changed the trade state",
			},
			[]string{"kind"},
		),
		corrections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradeagent_reconcile_corrections_total",
				Help: "Times the local trade state was overwritten by the broker position report",
			},
		),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeagent_commands_total",
				Help: "Manual commands handled",
			},
			[]string{"command", "result"},
		),
		position: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradeagent_position_size",
				Help: "Locally tracked position size (0 when flat)",
			},
		),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles, m.cycleTime, m.signals, m.orders, m.fills,
		m.corrections, m.commands, m.position,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Cycle(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		m.cycleTime.Observe(seconds)
	}
}

func (m *Metrics) Signal(call string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(call).Inc()
}

func (m *Metrics) Order(mode, action, orderType string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(mode, action, orderType).Inc()
}

func (m *Metrics) Fill(kind string) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(kind).Inc()
}

func (m *Metrics) Correction() {
	if m == nil {
		return
	}
	m.corrections.Inc()
}

func (m *Metrics) Command(name, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, result).Inc()
}

func (m *Metrics) PositionSize(size float64) {
	if m == nil {
		return
	}
	m.position.Set(size)
}
