package obs

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	SubmitTotal  *prometheus.CounterVec // result=pending|conflict|invalid_time|store_error|error
	ApproveTotal *prometheus.CounterVec // result=approved|stale|now_conflicting|store_error
	RejectTotal  *prometheus.CounterVec // result=rejected|stale|store_error
	DeleteTotal  *prometheus.CounterVec // result=removed|store_error

	OpLatencyMS *prometheus.HistogramVec // op=submit|approve|reject|delete

	PendingReservations  prometheus.Gauge
	ApprovedReservations prometheus.Gauge
	ExpiredTotal         prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		SubmitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_submit_total",
				Help: "Total submissions by result",
			},
			[]string{"result"},
		),
		ApproveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_approve_total",
				Help: "Total approval attempts by result",
			},
			[]string{"result"},
		),
		RejectTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_reject_total",
				Help: "Total rejection attempts by result",
			},
			[]string{"result"},
		),
		DeleteTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_delete_total",
				Help: "Total delete attempts by result",
			},
			[]string{"result"},
		),
		OpLatencyMS: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reservation_op_latency_ms",
				Help:    "Latency of reservation operations (ms)",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1ms .. ~2048ms
			},
			[]string{"op"},
		),
		PendingReservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reservations_pending",
			Help: "Number of reservations currently awaiting a decision",
		}),
		ApprovedReservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reservations_approved",
			Help: "Number of currently approved reservations",
		}),
		ExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservation_expired_total",
			Help: "Total reservations removed by the expiry sweep",
		}),
	}

	prometheus.MustRegister(
		m.SubmitTotal,
		m.ApproveTotal,
		m.RejectTotal,
		m.DeleteTotal,
		m.OpLatencyMS,
		m.PendingReservations,
		m.ApprovedReservations,
		m.ExpiredTotal,
	)

	return m
}
