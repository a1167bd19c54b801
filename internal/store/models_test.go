package store

import (
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

func TestLastBidIndexIsLastMatch(t *testing.T) {
	rec := &AuctionRecord{BidHistory: []BidEntry{
		{AgentID: "A", Amount: decimal.NewFromInt(1)},
		{AgentID: "B", Amount: decimal.NewFromInt(2)},
		{AgentID: "A", Amount: decimal.NewFromInt(3)},
	}}
	check.Equal(t, 2, rec.LastBidIndex("A"))
	check.Equal(t, 1, rec.LastBidIndex("B"))
	check.Equal(t, -1, rec.LastBidIndex("C"))
	check.Equal(t, []string{"A", "B"}, rec.Bidders())
}

func TestPaidFromIsCaseInsensitive(t *testing.T) {
	rec := &AuctionRecord{BidHistory: []BidEntry{{AgentID: "A", PayerAddress: "0xAbC"}}}
	check.True(t, rec.PaidFrom("A", "0xabc"))
	check.False(t, rec.PaidFrom("A", "0xdef"))
	check.False(t, rec.PaidFrom("B", "0xabc"))
}

func TestClosedAndExpired(t *testing.T) {
	now := time.Now()
	end := now.Add(time.Minute)
	rec := &AuctionRecord{Status: StatusActive, AuctionEndTime: &end}
	check.False(t, rec.Closed(now))
	check.True(t, rec.Closed(end.Add(time.Nanosecond)))
	check.Equal(t, time.Minute, *rec.TimeRemaining(now))
	check.Equal(t, time.Duration(0), *rec.TimeRemaining(end.Add(time.Hour)))

	rec.End(EndReasonWithdrawal, "B")
	check.True(t, rec.Closed(now))
	check.Equal(t, "B", rec.DeclaredWinner)
	check.False(t, rec.End(EndReasonTimeExpired, ""))
	check.Equal(t, EndReasonWithdrawal, rec.AuctionEndReason)

	var missing *AuctionRecord
	check.False(t, missing.Closed(now))
	check.Nil(t, missing.TimeRemaining(now))
}

func TestAgentSetsAreIdempotent(t *testing.T) {
	rec := &AuctionRecord{}
	check.True(t, rec.AddSkipped("A"))
	check.False(t, rec.AddSkipped("A"))
	check.True(t, rec.AddWithdrawn("B"))
	check.False(t, rec.AddWithdrawn("B"))
	check.Equal(t, []string{"A"}, rec.SkippedAgents)
	check.Equal(t, []string{"B"}, rec.WithdrawnAgents)
}
