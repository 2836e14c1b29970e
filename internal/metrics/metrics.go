package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for booking, lifecycle and bulk flows.
type SchedulingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	bulkItemsTotal   *prometheus.CounterVec
	noShowSweeps     *prometheus.CounterVec
	conflicted       prometheus.Gauge
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking commits by result",
		}, []string{"result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Appointment lifecycle transitions by action and result",
		}, []string{"action", "result"}),
		bulkItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "bulk_items_total",
			Help:      "Items processed by bulk transitions",
		}, []string{"action", "result"}),
		noShowSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "noshow_sweep_items_total",
			Help:      "Appointments handled by the no-show sweeper",
		}, []string{"result"}),
		conflicted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "clinic",
			Subsystem: "scheduling",
			Name:      "conflicted_appointments",
			Help:      "Appointments flagged by the last conflict detection",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.bulkItemsTotal, m.noShowSweeps, m.conflicted)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveTransition(action, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(action, result).Inc()
}

func (m *SchedulingMetrics) ObserveBulkItem(action string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.bulkItemsTotal.WithLabelValues(action, result).Inc()
}

func (m *SchedulingMetrics) ObserveNoShowSweep(marked, failed int) {
	if m == nil {
		return
	}
	m.noShowSweeps.WithLabelValues("marked").Add(float64(marked))
	m.noShowSweeps.WithLabelValues("failed").Add(float64(failed))
}

func (m *SchedulingMetrics) SetConflicted(n int) {
	if m == nil {
		return
	}
	m.conflicted.Set(float64(n))
}
