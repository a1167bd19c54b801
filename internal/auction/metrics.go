package auction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricBidOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_bid_outcomes_total",
		Help: "SubmitBid results by outcome.",
	}, []string{"outcome"})
	metricSettlementSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auction_settlement_seconds",
		Help:    "Time spent holding the custody lock per settlement.",
		Buckets: prometheus.DefBuckets,
	})
	metricSettledUSDCTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_settled_usdc_total",
		Help: "USDC settled into the custodial account from accepted bids.",
	})
	metricAuctionsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_ended_total",
		Help: "Auctions ended by reason.",
	}, []string{"reason"})
)
