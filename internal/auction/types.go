package auction

import (
	"time"

	"github.com/mark3labs/x402-go"
	"github.com/shopspring/decimal"

	"adspot-auction/internal/store"
)

type BidRequest struct {
	SlotID  string
	AgentID string
	// ProposedAmount is the agent's intended bid, sent before paying.
	ProposedAmount *decimal.Decimal
	// PaymentHeader is the raw X-PAYMENT value; empty means negotiation.
	PaymentHeader string
	Thinking      string
	StrategyTag   string
	Reasoning     string
}

// BidOutcome holds exactly one of PaymentRequired or Accepted. Rejections
// and failures come back as errors.
type BidOutcome struct {
	PaymentRequired *PaymentChallenge
	Accepted        *AcceptedBid
}

type AcceptableRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

type Negotiation struct {
	YourProposal    *decimal.Decimal `json:"yourProposal"`
	CurrentBid      *decimal.Decimal `json:"currentBid"`
	MinimumToWin    decimal.Decimal  `json:"minimumToWin"`
	AcceptableRange AcceptableRange  `json:"acceptableRange"`
	Message         string           `json:"message"`
	Suggestion      decimal.Decimal  `json:"suggestion"`
	TimeRemaining   *int64           `json:"timeRemaining"`
	BidHistory      []store.BidEntry `json:"bidHistory"`
}

// PaymentChallenge is the 402 body: the x402 requirements plus the
// negotiation context agents reason over.
type PaymentChallenge struct {
	x402.PaymentRequirementsResponse
	Negotiation Negotiation `json:"negotiation"`
}

type AcceptedBid struct {
	SlotID         string
	AgentID        string
	Payer          string
	SettledAmount  decimal.Decimal
	SettlementRef  string
	Network        string
	TimeRemaining  time.Duration
	AuctionEndTime time.Time
}

// SettlementHeader is the X-PAYMENT-RESPONSE payload for an accepted bid.
func (a *AcceptedBid) SettlementHeader() x402.SettlementResponse {
	return x402.SettlementResponse{
		Success:     true,
		Transaction: a.SettlementRef,
		Network:     a.Network,
		Payer:       a.Payer,
	}
}

type WithdrawalRequest struct {
	SlotID        string
	AgentID       string
	PayoutAddress string
	Reason        string
}

type WithdrawalResult struct {
	Refunded      decimal.Decimal `json:"refunded"`
	SettlementRef string          `json:"transaction_hash"`
	// AlreadyRefunded is set when the bid had been refunded on displacement
	// and no new transfer was made.
	AlreadyRefunded bool   `json:"already_refunded"`
	AuctionEnded    bool   `json:"auction_ended"`
	Winner          string `json:"winner,omitempty"`
}

type SkipResult struct {
	ActiveBidders int    `json:"active_bidders"`
	AuctionEnded  bool   `json:"auction_ended"`
	Winner        string `json:"winner,omitempty"`
}

type CreativeGrant struct {
	SlotID    string          `json:"slot_id"`
	AgentID   string          `json:"agent_id"`
	FinalBid  decimal.Decimal `json:"final_bid"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	EndReason string          `json:"end_reason"`
}

// Snapshot is the read-only status view of a slot.
type Snapshot struct {
	SlotID           string           `json:"slotId"`
	Status           store.Status     `json:"status,omitempty"`
	CurrentBid       *decimal.Decimal `json:"currentBid"`
	CurrentWinner    *store.Winner    `json:"currentWinner"`
	MinimumNextBid   decimal.Decimal  `json:"minimumNextBid"`
	TimeRemaining    *int64           `json:"timeRemaining"`
	AuctionStartTime *time.Time       `json:"auctionStartTime,omitempty"`
	AuctionEndTime   *time.Time       `json:"auctionEndTime,omitempty"`
	AuctionEnded     bool             `json:"auctionEnded"`
	AuctionEndReason string           `json:"auctionEndReason,omitempty"`
	DeclaredWinner   string           `json:"declaredWinner,omitempty"`
	WinnerAdImage    *string          `json:"winnerAdImage"`
	BidHistory       []store.BidEntry `json:"bidHistory"`
	WithdrawnAgents  []string         `json:"withdrawnAgents"`
	SkippedAgents    []string         `json:"skippedAgents"`
}
