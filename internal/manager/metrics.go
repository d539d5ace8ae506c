package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatcher's prometheus collectors.
type Metrics struct {
	messages        *prometheus.CounterVec
	dispatchLatency prometheus.Histogram
	connected       prometheus.Gauge
	queueDepth      prometheus.Gauge
	connectAttempts prometheus.Counter
	retries         prometheus.Counter
	configSaveFails prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mqttmgr_messages_total",
				Help: "Messages processed by the connection dispatcher, by kind.",
			},
			[]string{"kind"},
		),
		dispatchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mqttmgr_dispatch_duration_seconds",
				Help:    "Time spent applying one dispatcher message.",
				Buckets: prometheus.DefBuckets,
			},
		),
		connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mqttmgr_broker_connected",
				Help: "Broker connection state (1=connected, 0=disconnected).",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mqttmgr_queue_depth",
				Help: "Messages waiting in the dispatcher queue.",
			},
		),
		connectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mqttmgr_connect_attempts_total",
				Help: "Broker clients started by connect orders.",
			},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mqttmgr_retry_timer_fires_total",
				Help: "Reconnect orders issued by the retry timer.",
			},
		),
		configSaveFails: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mqttmgr_config_save_failures_total",
				Help: "Failed attempts to persist the connection profile.",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.messages,
			m.dispatchLatency,
			m.connected,
			m.queueDepth,
			m.connectAttempts,
			m.retries,
			m.configSaveFails,
		)
	}
	return m
}

func (m *Metrics) observeMessage(kind Kind, took time.Duration, flags Flags, queued int) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind.String()).Inc()
	m.dispatchLatency.Observe(took.Seconds())
	if flags.Has(FlagBrokerConnected) {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
	m.queueDepth.Set(float64(queued))
}

func (m *Metrics) connectAttempt() {
	if m != nil {
		m.connectAttempts.Inc()
	}
}

func (m *Metrics) retryFired() {
	if m != nil {
		m.retries.Inc()
	}
}

func (m *Metrics) saveFailed() {
	if m != nil {
		m.configSaveFails.Inc()
	}
}
