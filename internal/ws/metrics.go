package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricObservers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_observers",
		Help: "Connected websocket event observers.",
	})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ws_dropped_messages_total",
		Help: "Events not delivered to a slow websocket observer.",
	})
)
