// Package metrics holds the Prometheus instrumentation shared by the
// pipeline services. All series are registered against a private
// registry and preseeded to zero so dashboards and alert rules see
// every series from the first scrape, not from the first event.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	reg *prometheus.Registry

	TicksTotal            prometheus.Counter
	StaleTotal            prometheus.Counter
	HeartbeatAge          prometheus.Gauge
	StrategyCycles        prometheus.Counter
	StrategyCyclesSkipped prometheus.Counter
	OrderProposals        prometheus.Counter
	SafetyHalted          prometheus.Counter

	ErrorsTotal       *prometheus.CounterVec // labels: component
	MessagesReceived  *prometheus.CounterVec // labels: component, stream
	MessagesPublished *prometheus.CounterVec // labels: component, stream
	ReconnectAttempts *prometheus.CounterVec // labels: component, stream

	// Pipeline internals, unlabeled.
	CandlesTotal    prometheus.Counter
	LateTicksTotal  prometheus.Counter
	RingBufDropped  prometheus.Counter
	FanoutDrops     *prometheus.CounterVec // labels: subscriber
	ChannelFillPct  *prometheus.GaugeVec   // labels: channel_name
	SQLiteCommitDur prometheus.Histogram
	RedisWriteDur   prometheus.Histogram
}

// New registers and returns all metrics on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdata_ticks_total",
			Help: "Total market data ticks accepted by the ingest pipeline",
		}),
		StaleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdata_stale_total",
			Help: "Times the market data feed was observed stale",
		}),
		HeartbeatAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heartbeat_age_seconds",
			Help: "Seconds since the last market data event",
		}),
		StrategyCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strategy_cycles_total",
			Help: "Strategy evaluation cycles run",
		}),
		StrategyCyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "strategy_cycles_skipped_total",
			Help: "Strategy cycles skipped (halted, outside entry window)",
		}),
		OrderProposals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_proposals_total",
			Help: "Order proposals emitted by the allocator",
		}),
		SafetyHalted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safety_halted_total",
			Help: "Transitions into the halted state",
		}),

		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Errors by component",
		}, []string{"component"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_received_total",
			Help: "Messages received by component and stream",
		}, []string{"component", "stream"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_published_total",
			Help: "Messages published by component and stream",
		}, []string{"component", "stream"}),
		ReconnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconnect_attempts_total",
			Help: "Reconnect attempts by component and stream",
		}, []string{"component", "stream"}),

		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdata_candles_total",
			Help: "Final candles emitted across all timeframes",
		}),
		LateTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdata_late_ticks_total",
			Help: "Ticks dropped behind the event-time watermark",
		}),
		RingBufDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketdata_ringbuf_dropped_total",
			Help: "Ticks dropped on ring buffer overflow",
		}),
		FanoutDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketdata_fanout_drops_total",
			Help: "Candles dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelFillPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_channel_fill_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "store_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisWriteDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "store_redis_write_duration_seconds",
			Help:    "Redis write latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.reg.MustRegister(
		m.TicksTotal,
		m.StaleTotal,
		m.HeartbeatAge,
		m.StrategyCycles,
		m.StrategyCyclesSkipped,
		m.OrderProposals,
		m.SafetyHalted,
		m.ErrorsTotal,
		m.MessagesReceived,
		m.MessagesPublished,
		m.ReconnectAttempts,
		m.CandlesTotal,
		m.LateTicksTotal,
		m.RingBufDropped,
		m.FanoutDrops,
		m.ChannelFillPct,
		m.SQLiteCommitDur,
		m.RedisWriteDur,
	)

	return m
}

// Registry exposes the private registry for the HTTP handler and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Preseed materializes labeled series at zero for the given component
// and its streams. Unlabeled series appear at zero on registration;
// vectors only exist once a label set is touched.
func (m *Metrics) Preseed(component string, streams ...string) {
	m.ErrorsTotal.WithLabelValues(component).Add(0)
	for _, s := range streams {
		m.MessagesReceived.WithLabelValues(component, s).Add(0)
		m.MessagesPublished.WithLabelValues(component, s).Add(0)
		m.ReconnectAttempts.WithLabelValues(component, s).Add(0)
	}
}
