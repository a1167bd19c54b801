package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Envelope is the flat wire shape handed to external sinks.
type Envelope struct {
	Type          Kind             `json:"type"`
	SlotID        string           `json:"slotId"`
	AgentID       string           `json:"agentId,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	SettlementRef string           `json:"settlementRef,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	Data          map[string]any   `json:"data,omitempty"`
}

func amountPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func ToEnvelope(ev Event) Envelope {
	env := Envelope{Type: ev.Kind(), SlotID: ev.Slot(), Timestamp: ev.At().UTC()}
	switch e := ev.(type) {
	case Thinking:
		env.AgentID = e.AgentID
		env.Amount = e.ProposedAmount
		env.Data = map[string]any{"thinking": e.Thinking, "strategy": e.Strategy}
	case BidPlaced:
		env.AgentID = e.AgentID
		env.Amount = amountPtr(e.Amount)
		env.SettlementRef = e.SettlementRef
		env.Data = map[string]any{"payer": e.Payer}
	case Refund:
		env.AgentID = e.AgentID
		env.Amount = amountPtr(e.Amount)
		env.SettlementRef = e.SettlementRef
		env.Data = map[string]any{"address": e.Address, "attempts": e.Attempts}
	case RefundFailed:
		env.AgentID = e.AgentID
		env.Amount = amountPtr(e.Amount)
		env.Data = map[string]any{"address": e.Address, "reason": e.Reason, "attempts": e.Attempts}
	case Withdrawal:
		env.AgentID = e.AgentID
		env.Amount = amountPtr(e.Amount)
		env.SettlementRef = e.SettlementRef
		env.Data = map[string]any{"reason": e.Reason, "auctionEnded": e.AuctionEnded}
	case AgentSkipped:
		env.AgentID = e.AgentID
		env.Data = map[string]any{"reason": e.Reason}
	case AuctionEnded:
		env.AgentID = e.WinnerID
		env.Amount = e.Amount
		env.Data = map[string]any{"reason": e.Reason, "winner": e.WinnerID}
	case Reflection:
		env.AgentID = e.AgentID
		env.Data = map[string]any{"reflection": e.Text}
	case AgentStatus:
		env.AgentID = e.AgentID
		env.Data = map[string]any{"status": e.Status}
	}
	return env
}
