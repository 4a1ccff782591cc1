package observer

import "github.com/prometheus/client_golang/prometheus"

// MetricsObserver counts every published Event by kind and sets a gauge
// to 1 the first time either of the two safety gates that can halt
// dispatch entirely reports a trip, for a Prometheus scrape endpoint
// cmd/main.go exposes. It never sets those gauges back to 0.
type MetricsObserver struct {
	eventsTotal    *prometheus.CounterVec
	circuitBreaker prometheus.Gauge
	emergencyStop  prometheus.Gauge
}

// NewMetricsObserver registers its collectors against reg and returns
// an Observer feeding them.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	m := &MetricsObserver{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arbengine",
			Name:      "pipeline_events_total",
			Help:      "Count of pipeline events by kind.",
		}, []string{"kind"}),
		circuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "circuit_breaker_tripped",
			Help:      "1 once a circuit breaker trip event has been observed, else 0; not reset on re-arm.",
		}),
		emergencyStop: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "arbengine",
			Name:      "emergency_stop_active",
			Help:      "1 once an emergency stop event has been observed, else 0; not reset on operator reset.",
		}),
	}
	reg.MustRegister(m.eventsTotal, m.circuitBreaker, m.emergencyStop)
	return m
}

func (m *MetricsObserver) OnEvent(ev Event) {
	m.eventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	switch ev.Kind {
	case EventCircuitBreaker:
		m.circuitBreaker.Set(1)
	case EventEmergencyStop:
		m.emergencyStop.Set(1)
	}
}
