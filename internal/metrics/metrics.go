// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "sessions_created_total",
		Help:      "Sessions opened by teachers.",
	})

	// CheckIns is labelled by outcome: created, duplicate, pending, expired,
	// not_enrolled, error.
	CheckIns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "checkins_total",
		Help:      "Check-in attempts by outcome.",
	}, []string{"outcome"})

	RosterJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "roster_jobs_total",
		Help:      "Roster provisioning jobs processed by result.",
	}, []string{"result"})

	LiveSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "qrattend",
		Name:      "live_subscribers",
		Help:      "Open live session subscriptions.",
	})
)

func init() {
	prometheus.MustRegister(SessionsCreated, CheckIns, RosterJobs, LiveSubscribers)
}
