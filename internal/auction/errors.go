package auction

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrAuctionClosed      = errors.New("auction_closed")
	ErrAuctionNotFound    = errors.New("auction_not_found")
	ErrProposalRejected   = errors.New("proposal_rejected")
	ErrVerificationFailed = errors.New("verification_failed")
	ErrSettlementFailed   = errors.New("settlement_failed")
	ErrInvalidWithdrawal  = errors.New("invalid_withdrawal")
	ErrNoBidHistory       = errors.New("no_bid_history")
	ErrPayoutMismatch     = errors.New("payout_address_mismatch")
	ErrAuctionNotEnded    = errors.New("auction_not_ended")
	ErrNotWinner          = errors.New("not_winner")
	ErrArtifactExists     = errors.New("artifact_exists")
)

// Payment failure reasons produced by the engine itself; facilitator
// reasons are passed through verbatim.
const (
	ReasonMalformedPayment       = "malformed_payment"
	ReasonUnsupportedScheme      = "unsupported_scheme"
	ReasonUnsupportedVersion     = "unsupported_version"
	ReasonFacilitatorRejected    = "facilitator_rejected"
	ReasonFacilitatorUnavailable = "facilitator_unavailable"
	ReasonCustodyLockUnavailable = "custody_lock_unavailable"
	ReasonOutbidDuringSettlement = "outbid_during_settlement"
	ReasonRecordUpdateFailed     = "record_update_failed"
)

// ProposalRejectedError carries the negotiation numbers the agent needs to
// resubmit. YourProposal is the authorized value when a paid proof fell
// short.
type ProposalRejectedError struct {
	YourProposal    decimal.Decimal
	CurrentBid      *decimal.Decimal
	MinimumRequired decimal.Decimal
	Suggestion      decimal.Decimal
}

func (e *ProposalRejectedError) Error() string {
	return ErrProposalRejected.Error()
}

func (e *ProposalRejectedError) Unwrap() error {
	return ErrProposalRejected
}

type PaymentStage string

const (
	StageVerify PaymentStage = "verify"
	StageSettle PaymentStage = "settle"
)

// PaymentError is a rejection by the payment layer. The agent may retry
// with a fresh proof; the engine never does.
type PaymentError struct {
	Stage  PaymentStage
	Reason string
}

func (e *PaymentError) Error() string {
	return e.Unwrap().Error() + ": " + e.Reason
}

func (e *PaymentError) Unwrap() error {
	if e.Stage == StageSettle {
		return ErrSettlementFailed
	}
	return ErrVerificationFailed
}

type ClosedError struct {
	Reason string
}

func (e *ClosedError) Error() string {
	return ErrAuctionClosed.Error()
}

func (e *ClosedError) Unwrap() error {
	return ErrAuctionClosed
}

type InvalidWithdrawalError struct {
	Reason string
}

func (e *InvalidWithdrawalError) Error() string {
	return ErrInvalidWithdrawal.Error() + ": " + e.Reason
}

func (e *InvalidWithdrawalError) Unwrap() error {
	return ErrInvalidWithdrawal
}
