package refund

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRefundAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_refund_attempts_total",
		Help: "Refund transfer attempts by outcome.",
	}, []string{"outcome"})
	metricRefundUnrecoveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_refund_unrecovered_total",
		Help: "Refunds that failed after the retry and need an operator.",
	})
	metricRefundsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auction_refunds_in_flight",
		Help: "Scheduled refunds not yet finished.",
	})
)
