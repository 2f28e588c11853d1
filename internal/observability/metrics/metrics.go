package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters for booking and calendar-sync flows.
// All observe methods are nil-receiver safe so wiring metrics stays optional.
type SchedulingMetrics struct {
	appointmentsTotal *prometheus.CounterVec
	slotConflicts     prometheus.Counter
	calendarOpsTotal  *prometheus.CounterVec
	sweepTotal        *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		appointmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "scheduling",
			Name:      "appointments_total",
			Help:      "Appointment lifecycle events by resulting status",
		}, []string{"status"}),
		slotConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "scheduling",
			Name:      "slot_conflicts_total",
			Help:      "Rejected slot operations due to overlap or booking conflicts",
		}),
		calendarOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "scheduling",
			Name:      "calendar_ops_total",
			Help:      "External calendar bridge item outcomes",
		}, []string{"op", "outcome"}),
		sweepTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caresync",
			Subsystem: "scheduling",
			Name:      "sweep_total",
			Help:      "Batch sweep item outcomes (reminders, no-shows)",
		}, []string{"job", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.appointmentsTotal, m.slotConflicts, m.calendarOpsTotal, m.sweepTotal)
	return m
}

func (m *SchedulingMetrics) ObserveAppointment(status string) {
	if m == nil {
		return
	}
	m.appointmentsTotal.WithLabelValues(status).Inc()
}

func (m *SchedulingMetrics) ObserveSlotConflict() {
	if m == nil {
		return
	}
	m.slotConflicts.Inc()
}

func (m *SchedulingMetrics) ObserveCalendarOp(op, outcome string) {
	if m == nil {
		return
	}
	m.calendarOpsTotal.WithLabelValues(op, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveSweep(job, outcome string) {
	if m == nil {
		return
	}
	m.sweepTotal.WithLabelValues(job, outcome).Inc()
}
