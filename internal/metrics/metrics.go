// Package metrics declares the Prometheus collectors of the ticketing
// engine.  Collectors register on the default registry and are served by
// promhttp at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_reservations_total",
			Help: "Reservation attempts by outcome code",
		},
		[]string{"outcome"},
	)

	stockUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_stock_units_total",
			Help: "Ticket units moved in or out of tier stock",
		},
		[]string{"tier_id", "direction"},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_order_transitions_total",
			Help: "Order status changes",
		},
		[]string{"from", "to"},
	)

	sweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_sweep_runs_total",
			Help: "Expiration sweeps by result",
		},
		[]string{"result"},
	)

	sweepExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketing_sweep_expired_orders_total",
			Help: "Orders expired by the reconciler",
		},
	)

	txDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticketing_tx_duration_seconds",
			Help:    "Duration of locked store transactions including lock waits",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"operation"},
	)

	notifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_notification_failures_total",
			Help: "Notifications that could not be delivered or were dropped",
		},
		[]string{"reason"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketing_rate_limited_total",
			Help: "Requests rejected or let through by the token bucket",
		},
		[]string{"route", "result"},
	)
)

// Reservation counts a reservation attempt; outcome is "ok" or an error code.
func Reservation(outcome string) {
	reservations.WithLabelValues(outcome).Inc()
}

// StockReserved records units debited from a tier.
func StockReserved(tierID uint64, units int) {
	stockUnits.WithLabelValues(strconv.FormatUint(tierID, 10), "reserved").Add(float64(units))
}

// StockReleased records units credited back to a tier.
func StockReleased(tierID uint64, units int) {
	stockUnits.WithLabelValues(strconv.FormatUint(tierID, 10), "released").Add(float64(units))
}

func OrderTransition(from, to string) {
	orderTransitions.WithLabelValues(from, to).Inc()
}

// Sweep records one reconciler pass.
func Sweep(expired, failed int, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = "error"
	case failed > 0:
		result = "partial"
	}
	sweepRuns.WithLabelValues(result).Inc()
	sweepExpired.Add(float64(expired))
}

// ObserveTx records how long a store transaction took.
func ObserveTx(operation string, started time.Time) {
	txDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func NotificationFailed(reason string) {
	notifyFailures.WithLabelValues(reason).Inc()
}

// RateLimit counts a limiter decision.  result is "blocked" or
// "fail_open" when Redis could not be asked.
func RateLimit(route, result string) {
	rateLimited.WithLabelValues(route, result).Inc()
}
