package channel

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts channel activity. A nil *Metrics records nothing.
type Metrics struct {
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
	violations  *prometheus.CounterVec
}

// NewMetrics registers the channel counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpbam",
			Subsystem: "channel",
			Name:      "transitions_total",
			Help:      "Channel state transitions by target state.",
		}, []string{"channel", "state"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpbam",
			Subsystem: "channel",
			Name:      "events_total",
			Help:      "Completion and error notifications by kind.",
		}, []string{"channel", "kind"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lpbam",
			Subsystem: "channel",
			Name:      "contract_violations_total",
			Help:      "Calls rejected because the channel was in the wrong state.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.transitions, m.events, m.violations)
	return m
}

func (m *Metrics) transition(ch string, s State) {
	if m != nil {
		m.transitions.WithLabelValues(ch, s.String()).Inc()
	}
}

func (m *Metrics) event(ch, kind string) {
	if m != nil {
		m.events.WithLabelValues(ch, kind).Inc()
	}
}

func (m *Metrics) violation(op string) {
	if m != nil {
		m.violations.WithLabelValues(op).Inc()
	}
}
