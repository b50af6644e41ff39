package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for check-in transitions.
type Metrics struct {
	CheckInsTotal    prometheus.Counter
	CheckOutsTotal   prometheus.Counter
	RejectionsTotal  *prometheus.CounterVec
	TransitionTimeMs prometheus.Histogram
	ServiceOccupancy *prometheus.GaugeVec
}

// New creates and registers all check-in metrics.
func New() *Metrics {
	return &Metrics{
		CheckInsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_check_ins_total",
			Help: "Total number of successful child check-ins",
		}),
		CheckOutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_check_outs_total",
			Help: "Total number of successful child check-outs",
		}),
		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_transition_rejections_total",
			Help: "Rejected transitions by rejection code",
		}, []string{"code"}),
		TransitionTimeMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "shepherd_transition_duration_ms",
			Help:    "Latency of check-in/check-out transitions in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		}),
		ServiceOccupancy: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "shepherd_service_occupancy",
			Help: "Current occupancy per kids service",
		}, []string{"service_id"}),
	}
}

// ObserveTransition records one transition's latency.
func (m *Metrics) ObserveTransition(d time.Duration) {
	m.TransitionTimeMs.Observe(float64(d.Microseconds()) / 1000.0)
}

// RecordRejection counts a rejection under its code.
func (m *Metrics) RecordRejection(code string) {
	m.RejectionsTotal.WithLabelValues(code).Inc()
}

// SetOccupancy updates the occupancy gauge for a service.
func (m *Metrics) SetOccupancy(serviceID string, occupancy int) {
	m.ServiceOccupancy.WithLabelValues(serviceID).Set(float64(occupancy))
}
