package store

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive           Status = "active"
	StatusEnded            Status = "ended"
	StatusDisplayingResult Status = "displaying_result"
)

type RefundStatus string

const (
	RefundNone     RefundStatus = ""
	RefundPending  RefundStatus = "pending"
	RefundRefunded RefundStatus = "refunded"
	RefundFailed   RefundStatus = "failed"
)

// End reasons recorded on the auction.
const (
	EndReasonTimeExpired = "time_expired"
	EndReasonWithdrawal  = "withdrawal"
	EndReasonAllSkipped  = "skip"
)

type Winner struct {
	AgentID      string    `json:"agentId"`
	PayerAddress string    `json:"payerAddress"`
	ExternalRef  string    `json:"externalRef"`
	Timestamp    time.Time `json:"timestamp"`
}

type BidEntry struct {
	ID             string          `json:"id"`
	AgentID        string          `json:"agentId"`
	PayerAddress   string          `json:"payerAddress"`
	Amount         decimal.Decimal `json:"amount"`
	Timestamp      time.Time       `json:"timestamp"`
	SettlementRef  string          `json:"settlementRef"`
	Thinking       string          `json:"thinking,omitempty"`
	StrategyTag    string          `json:"strategyTag,omitempty"`
	ReasoningText  string          `json:"reasoningText,omitempty"`
	ReflectionText string          `json:"reflectionText,omitempty"`
	RefundStatus   RefundStatus    `json:"refundStatus,omitempty"`
	RefundRef      string          `json:"refundRef,omitempty"`
}

type Artifact struct {
	URL         string    `json:"url"`
	Prompt      string    `json:"prompt"`
	TaskRef     string    `json:"taskRef"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// AuctionRecord is the single durable record per ad slot.
type AuctionRecord struct {
	SlotID           string
	CurrentBid       *decimal.Decimal
	CurrentWinner    *Winner
	BidHistory       []BidEntry
	Status           Status
	AuctionStartTime *time.Time
	AuctionEndTime   *time.Time
	WithdrawnAgents  []string
	SkippedAgents    []string
	AuctionEnded     bool
	AuctionEndReason string
	DeclaredWinner   string
	WinningArtifact  *Artifact
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FailedRefund is a refund that exhausted its retry and needs an operator.
// A later successful transfer for the same bid entry resolves it.
type FailedRefund struct {
	ID          string          `json:"id"`
	SlotID      string          `json:"slotId"`
	AgentID     string          `json:"agentId"`
	Address     string          `json:"address"`
	Amount      decimal.Decimal `json:"amount"`
	BidEntryID  string          `json:"bidEntryId,omitempty"`
	Reason      string          `json:"reason"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"createdAt"`
	ResolvedRef string          `json:"resolvedRef,omitempty"`
	ResolvedAt  *time.Time      `json:"resolvedAt,omitempty"`
}

func newRecord(slotID string, now time.Time) *AuctionRecord {
	return &AuctionRecord{
		SlotID:    slotID,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *AuctionRecord) Clone() *AuctionRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.CurrentBid != nil {
		bid := *r.CurrentBid
		out.CurrentBid = &bid
	}
	if r.CurrentWinner != nil {
		w := *r.CurrentWinner
		out.CurrentWinner = &w
	}
	if r.AuctionStartTime != nil {
		t := *r.AuctionStartTime
		out.AuctionStartTime = &t
	}
	if r.AuctionEndTime != nil {
		t := *r.AuctionEndTime
		out.AuctionEndTime = &t
	}
	if r.WinningArtifact != nil {
		a := *r.WinningArtifact
		out.WinningArtifact = &a
	}
	out.BidHistory = append([]BidEntry(nil), r.BidHistory...)
	out.WithdrawnAgents = append([]string(nil), r.WithdrawnAgents...)
	out.SkippedAgents = append([]string(nil), r.SkippedAgents...)
	return &out
}

// Closed reports whether the auction accepts no more bids at now.
func (r *AuctionRecord) Closed(now time.Time) bool {
	if r == nil {
		return false
	}
	return r.Status != StatusActive || r.Expired(now)
}

func (r *AuctionRecord) Expired(now time.Time) bool {
	return r != nil && r.AuctionEndTime != nil && now.After(*r.AuctionEndTime)
}

func (r *AuctionRecord) TimeRemaining(now time.Time) *time.Duration {
	if r == nil || r.AuctionEndTime == nil {
		return nil
	}
	d := r.AuctionEndTime.Sub(now)
	if d < 0 {
		d = 0
	}
	return &d
}

// LastBidIndex scans history backwards; reflections and withdrawals both
// target the agent's most recent bid.
func (r *AuctionRecord) LastBidIndex(agentID string) int {
	for i := len(r.BidHistory) - 1; i >= 0; i-- {
		if r.BidHistory[i].AgentID == agentID {
			return i
		}
	}
	return -1
}

// PaidFrom reports whether the agent ever paid from address.
func (r *AuctionRecord) PaidFrom(agentID, address string) bool {
	for _, b := range r.BidHistory {
		if b.AgentID == agentID && strings.EqualFold(b.PayerAddress, address) {
			return true
		}
	}
	return false
}

// Bidders lists distinct bidding agents in first-bid order.
func (r *AuctionRecord) Bidders() []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range r.BidHistory {
		if !seen[b.AgentID] {
			seen[b.AgentID] = true
			out = append(out, b.AgentID)
		}
	}
	return out
}

func (r *AuctionRecord) IsWinner(agentID string) bool {
	return r.CurrentWinner != nil && r.CurrentWinner.AgentID == agentID
}

func (r *AuctionRecord) HasWithdrawn(agentID string) bool {
	return contains(r.WithdrawnAgents, agentID)
}

func (r *AuctionRecord) HasSkipped(agentID string) bool {
	return contains(r.SkippedAgents, agentID)
}

// AddWithdrawn and AddSkipped keep the sets insertion ordered and report
// whether the agent was newly added.
func (r *AuctionRecord) AddWithdrawn(agentID string) bool {
	if r.HasWithdrawn(agentID) {
		return false
	}
	r.WithdrawnAgents = append(r.WithdrawnAgents, agentID)
	return true
}

func (r *AuctionRecord) AddSkipped(agentID string) bool {
	if r.HasSkipped(agentID) {
		return false
	}
	r.SkippedAgents = append(r.SkippedAgents, agentID)
	return true
}

// End moves an active auction to ended. It is a no-op on a closed one.
func (r *AuctionRecord) End(reason, winner string) bool {
	if r.Status != StatusActive {
		return false
	}
	r.Status = StatusEnded
	r.AuctionEnded = true
	r.AuctionEndReason = reason
	r.DeclaredWinner = winner
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
