package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricQueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_queued_total",
		Help: "Notification jobs accepted into the dispatch queue.",
	})
	metricDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_dropped_total",
		Help: "Notification jobs dropped, by reason.",
	}, []string{"reason"})
	metricRetryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_retry_total",
		Help: "Notification deliveries scheduled for retry.",
	})
	metricSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_sent_total",
		Help: "Notifications delivered, by platform.",
	}, []string{"platform"})
	metricFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_failed_total",
		Help: "Failed delivery attempts, by platform.",
	}, []string{"platform"})
	metricCircuitOpenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_circuit_open_total",
		Help: "Deliveries refused because the target's circuit was open.",
	})
	metricQueueLen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notify_queue_len",
		Help: "Jobs waiting in the dispatch queue.",
	})
)
