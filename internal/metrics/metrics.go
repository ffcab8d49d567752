package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CodesIssued counts attendance codes issued, by whether a geofence was attached.
	CodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoattend_codes_issued_total",
		Help: "Attendance codes issued.",
	}, []string{"geofenced"})

	// CheckIns counts check-in attempts by outcome ("ok" or an error kind).
	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoattend_checkins_total",
		Help: "Check-in attempts by result.",
	}, []string{"result"})

	CheckInDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "geoattend_checkin_distance_meters",
		Help:    "Measured distance between student and code origin.",
		Buckets: []float64{5, 10, 25, 50, 100, 110, 200, 500, 1000},
	})

	// LedgerSubmissions counts ledger mirror outcomes: "ok" and "error" from the
	// worker's submit, "dispatch_error" when the service cannot hand a record
	// to the mirror.
	LedgerSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geoattend_ledger_submissions_total",
		Help: "Ledger mirror submissions by result.",
	}, []string{"result"})
)
