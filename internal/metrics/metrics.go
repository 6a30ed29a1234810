package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CheckoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickethub_checkout_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	CheckinTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickethub_checkin_total",
			Help: "Check-in scans by outcome",
		},
		[]string{"outcome"},
	)

	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickethub_tickets_issued_total",
			Help: "Tickets issued by committed checkouts",
		},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tickethub_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

const (
	OutcomeCommitted = "committed"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeSuccess   = "success"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalidQR = "invalid_qr"
	OutcomeForbidden = "forbidden"
)

func Handler() http.Handler {
	return promhttp.Handler()
}
