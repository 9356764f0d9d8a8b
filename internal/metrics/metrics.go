package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for booking outcomes and sweep activity.
// All methods are nil-safe so wiring metrics stays optional in tests.
type SchedulingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	sweepRunsTotal *prometheus.CounterVec
	sweepItems     *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		sweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "sweep_runs_total",
			Help:      "Completed sweep passes by sweep name",
		}, []string{"sweep"}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "sweep_items_total",
			Help:      "Per-item sweep results by sweep name",
		}, []string{"sweep", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.sweepRunsTotal, m.sweepItems)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *SchedulingMetrics) ObserveSweepRun(sweep string) {
	if m == nil {
		return
	}
	m.sweepRunsTotal.WithLabelValues(sweep).Inc()
}

func (m *SchedulingMetrics) ObserveSweepItem(sweep, result string) {
	if m == nil {
		return
	}
	m.sweepItems.WithLabelValues(sweep, result).Inc()
}
