// Package events defines the lifecycle events the auction core publishes for
// observers. Each kind is its own type carrying only what that kind needs;
// Event is closed to this package.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindThinking     Kind = "thinking"
	KindBidPlaced    Kind = "bid_placed"
	KindRefund       Kind = "refund"
	KindRefundFailed Kind = "refund_failed"
	KindWithdrawal   Kind = "withdrawal"
	KindAgentSkipped Kind = "agent_skipped"
	KindAuctionEnded Kind = "auction_ended"
	KindReflection   Kind = "reflection"
	KindAgentStatus  Kind = "agent_status"
)

type Event interface {
	Kind() Kind
	Slot() string
	At() time.Time
	isEvent()
}

// Base carries the fields every event has.
type Base struct {
	SlotID    string
	Timestamp time.Time
}

func (b Base) Slot() string  { return b.SlotID }
func (b Base) At() time.Time { return b.Timestamp }
func (Base) isEvent()        {}

type Thinking struct {
	Base
	AgentID        string
	ProposedAmount *decimal.Decimal
	Thinking       string
	Strategy       string
}

type BidPlaced struct {
	Base
	AgentID       string
	Payer         string
	Amount        decimal.Decimal
	SettlementRef string
}

type Refund struct {
	Base
	AgentID       string
	Address       string
	Amount        decimal.Decimal
	SettlementRef string
	Attempts      int
}

type RefundFailed struct {
	Base
	AgentID  string
	Address  string
	Amount   decimal.Decimal
	Reason   string
	Attempts int
}

type Withdrawal struct {
	Base
	AgentID       string
	Amount        decimal.Decimal
	SettlementRef string
	Reason        string
	AuctionEnded  bool
}

type AgentSkipped struct {
	Base
	AgentID string
	Reason  string
}

type AuctionEnded struct {
	Base
	Reason   string
	WinnerID string
	Amount   *decimal.Decimal
}

type Reflection struct {
	Base
	AgentID string
	Text    string
}

type AgentStatus struct {
	Base
	AgentID string
	Status  string
}

func (Thinking) Kind() Kind     { return KindThinking }
func (BidPlaced) Kind() Kind    { return KindBidPlaced }
func (Refund) Kind() Kind       { return KindRefund }
func (RefundFailed) Kind() Kind { return KindRefundFailed }
func (Withdrawal) Kind() Kind   { return KindWithdrawal }
func (AgentSkipped) Kind() Kind { return KindAgentSkipped }
func (AuctionEnded) Kind() Kind { return KindAuctionEnded }
func (Reflection) Kind() Kind   { return KindReflection }
func (AgentStatus) Kind() Kind  { return KindAgentStatus }

// Notifier receives events. Implementations must not block the caller for
// long and must never fail it; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop drops every event.
var Nop Notifier = NotifierFunc(func(context.Context, Event) {})

// Fanout delivers each event to every notifier in order.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, ev Event) {
	for _, n := range f {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}
