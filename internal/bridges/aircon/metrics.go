package aircon

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "acbridge"

// Command results recorded on acbridge_commands_total.
const (
	resultOK          = "ok"
	resultInvalid     = "invalid"
	resultUnknown     = "unknown_address"
	resultUnreachable = "unreachable"
	resultFailed      = "failed"
	resultRejected    = "rejected"
	resultNotReady    = "not_ready"
)

// Metrics holds the bridge's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	commands     *prometheus.CounterVec
	publications *prometheus.CounterVec
	polls        *prometheus.CounterVec
	pollDuration prometheus.Histogram
	reachable    *prometheus.GaugeVec
	devices      prometheus.Gauge
	bridgeState  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "commands_total",
				Help:      "Commands received on the bus, by capability and result.",
			},
			[]string{"capability", "result"}),
		publications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "publications_total",
				Help:      "State values published to the bus, by capability.",
			},
			[]string{"capability"}),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "polls_total",
				Help:      "Device status reads, by result.",
			},
			[]string{"result"}),
		pollDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "poll_duration_seconds",
				Help:      "Time taken by one device status read.",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			}),
		reachable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "device_reachable",
				Help:      "1 if the last status read succeeded, 0 otherwise.",
			},
			[]string{"address"}),
		devices: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "devices",
				Help:      "Devices currently in the registry.",
			}),
		bridgeState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "bridge_state",
				Help:      "Bridge lifecycle state (0 uninitialized, 1 discovering, 2 ready, 3 degraded, 4 shutting down, 5 stopped).",
			}),
	}
	reg.MustRegister(m.commands)
	reg.MustRegister(m.publications)
	reg.MustRegister(m.polls)
	reg.MustRegister(m.pollDuration)
	reg.MustRegister(m.reachable)
	reg.MustRegister(m.devices)
	reg.MustRegister(m.bridgeState)
	return m
}

func (m *Metrics) command(capability, result string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(capability, result).Inc()
}

func (m *Metrics) published(capability string) {
	if m == nil {
		return
	}
	m.publications.WithLabelValues(capability).Inc()
}

func (m *Metrics) poll(address string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.pollDuration.Observe(d.Seconds())
	if err == nil {
		m.polls.WithLabelValues(resultOK).Inc()
		m.reachable.WithLabelValues(address).Set(1)
		return
	}
	m.polls.WithLabelValues(commandResult(err)).Inc()
	m.reachable.WithLabelValues(address).Set(0)
}

func (m *Metrics) setDevices(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
	m.reachable.Reset()
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	m.bridgeState.Set(float64(s))
}
