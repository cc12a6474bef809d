package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GPSSamplesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_fleet", Name: "gps_samples_total", Help: "Total GPS samples ingested"})
	RFIDScansTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_fleet", Name: "rfid_scans_total", Help: "Total RFID scans ingested"})

	OffencesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campus_fleet", Name: "offences_total", Help: "Overspeed offences recorded"},
		[]string{"type"},
	)

	BookingsCreatedTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_fleet", Name: "bookings_created_total", Help: "Ambulance bookings created"})
	BookingsAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_fleet", Name: "bookings_accepted_total", Help: "Ambulance bookings accepted by a driver"})
	OTPIssuedTotal        = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_fleet", Name: "otp_issued_total", Help: "One-time codes issued"})
	OTPFailuresTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_fleet", Name: "otp_failures_total", Help: "One-time code verifications that failed"})

	ActiveTrips = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "campus_fleet", Name: "active_trips", Help: "Trips currently in progress"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campus_fleet", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campus_fleet",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
