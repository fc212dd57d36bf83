// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the simulation engine.
type Metrics struct {
	TicksTotal      *prometheus.CounterVec // labels: mode
	TradesTotal     *prometheus.CounterVec // labels: side
	TradesRejected  *prometheus.CounterVec // labels: side
	AlertsTriggered prometheus.Counter
	ReplayPosition  prometheus.Gauge
	WindowSize      prometheus.Gauge
	StreamClients   prometheus.Gauge
}

// New registers and returns all engine metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantstream_ticks_total",
			Help: "Total price ticks processed (by mode)",
		}, []string{"mode"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantstream_trades_total",
			Help: "Total paper trades executed (by side)",
		}, []string{"side"}),
		TradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quantstream_trades_rejected_total",
			Help: "Total paper trades rejected (by side)",
		}, []string{"side"}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quantstream_alerts_triggered_total",
			Help: "Total price alerts that fired",
		}),
		ReplayPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantstream_replay_position",
			Help: "Current index into the historical table",
		}),
		WindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantstream_window_size",
			Help: "Points currently held in the sliding price window",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quantstream_stream_clients",
			Help: "Connected WebSocket stream clients",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.TradesTotal,
		m.TradesRejected,
		m.AlertsTriggered,
		m.ReplayPosition,
		m.WindowSize,
		m.StreamClients,
	)
	return m
}
