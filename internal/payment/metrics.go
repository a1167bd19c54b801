package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricFacilitatorCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "payment_facilitator_calls_total",
	Help: "Facilitator verify and settle calls by outcome.",
}, []string{"op", "result"})
