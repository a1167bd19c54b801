package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/x402-go"
	"github.com/mark3labs/x402-go/facilitator"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"adspot-auction/internal/custody"
	"adspot-auction/internal/events"
	"adspot-auction/internal/money"
	"adspot-auction/internal/payment"
	"adspot-auction/internal/refund"
	"adspot-auction/internal/store"
)

const recentBidsInChallenge = 5

var errLostRace = errors.New("lost settlement race")

// Engine negotiates bid prices and settles paid bids.
type Engine struct {
	core
	facilitator facilitator.Interface
	lock        custody.Locker
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewEngine(st store.AuctionStore, fac facilitator.Interface, lock custody.Locker, refunds RefundScheduler, notifier events.Notifier, opts Options) *Engine {
	return &Engine{
		core:        newCore(st, refunds, notifier, opts),
		facilitator: fac,
		lock:        lock,
		sleep:       sleepCtx,
	}
}

// SubmitBid runs one negotiation round (no payment header) or one
// settlement attempt (payment header present).
func (e *Engine) SubmitBid(ctx context.Context, req BidRequest) (*BidOutcome, error) {
	if req.SlotID == "" || req.AgentID == "" {
		return nil, ErrInvalidRequest
	}
	if req.ProposedAmount != nil && (!money.Bounded(*req.ProposedAmount) || !req.ProposedAmount.IsPositive()) {
		return nil, ErrInvalidRequest
	}
	rec, err := e.store.EnsureAuction(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if err := e.expireIfDue(ctx, rec); err != nil {
		metricBidOutcomesTotal.WithLabelValues("closed").Inc()
		return nil, err
	}

	var out *BidOutcome
	if req.PaymentHeader == "" {
		out, err = e.negotiate(ctx, req, rec)
	} else {
		out, err = e.settle(ctx, req, rec)
	}
	metricBidOutcomesTotal.WithLabelValues(outcomeLabel(out, err)).Inc()
	return out, err
}

func (e *Engine) negotiate(ctx context.Context, req BidRequest, rec *store.AuctionRecord) (*BidOutcome, error) {
	if req.ProposedAmount != nil {
		thinking := req.Thinking
		if thinking == "" {
			thinking = req.Reasoning
		}
		e.notifier.Notify(ctx, events.Thinking{
			Base:           e.base(req.SlotID),
			AgentID:        req.AgentID,
			ProposedAmount: req.ProposedAmount,
			Thinking:       thinking,
			Strategy:       req.StrategyTag,
		})
		log.Info().
			Str("slot_id", req.SlotID).
			Str("agent_id", req.AgentID).
			Str("proposed", req.ProposedAmount.String()).
			Str("reasoning", req.Reasoning).
			Msg("bid proposed")
		// Observers render the thinking event before anything that follows.
		if err := e.sleep(ctx, e.opts.ThinkingDelay); err != nil {
			return nil, err
		}
	}

	minimum := e.opts.Pricing.Minimum(rec.CurrentBid)
	if req.ProposedAmount != nil && req.ProposedAmount.LessThan(minimum) {
		return nil, e.rejection(*req.ProposedAmount, rec.CurrentBid, minimum)
	}

	lo := minimum
	hi := money.Min(e.opts.Cap, minimum.Add(e.opts.Spread))
	if req.ProposedAmount != nil {
		lo, hi = *req.ProposedAmount, *req.ProposedAmount
	}
	if hi.LessThan(lo) {
		hi = lo
	}

	reqs := e.requirements(req.SlotID, lo)
	reqs.MaxAmountRequired = money.ToAtomic(hi)

	challenge := &PaymentChallenge{
		PaymentRequirementsResponse: x402.PaymentRequirementsResponse{
			X402Version: payment.Version,
			Error:       "Payment required to place bid",
			Accepts:     []x402.PaymentRequirement{reqs},
		},
		Negotiation: Negotiation{
			YourProposal:    req.ProposedAmount,
			CurrentBid:      rec.CurrentBid,
			MinimumToWin:    minimum,
			AcceptableRange: AcceptableRange{Min: lo, Max: hi},
			Message:         negotiationMessage(req.ProposedAmount, rec.CurrentBid, minimum),
			Suggestion:      minimum.Add(e.opts.SuggestionBuffer),
			TimeRemaining:   snapshotSeconds(rec.TimeRemaining(e.now())),
			BidHistory:      recentBids(rec.BidHistory, recentBidsInChallenge),
		},
	}
	return &BidOutcome{PaymentRequired: challenge}, nil
}

func (e *Engine) settle(ctx context.Context, req BidRequest, rec *store.AuctionRecord) (*BidOutcome, error) {
	proof, err := payment.DecodePayment(req.PaymentHeader)
	if err != nil {
		return nil, &PaymentError{Stage: StageVerify, Reason: reasonFor(err)}
	}
	// The signed value is what moves on chain, whatever the agent claims.
	authorized, err := payment.AuthorizedValue(proof)
	if err != nil {
		return nil, &PaymentError{Stage: StageVerify, Reason: reasonFor(err)}
	}

	minimum := e.opts.Pricing.Minimum(rec.CurrentBid)
	if authorized.LessThan(minimum) {
		return nil, e.rejection(authorized, rec.CurrentBid, minimum)
	}
	reqs := e.requirements(req.SlotID, minimum)

	verified, err := e.facilitator.Verify(ctx, proof, reqs)
	if err != nil {
		log.Warn().Err(err).Str("slot_id", req.SlotID).Str("agent_id", req.AgentID).Msg("facilitator verify failed")
		return nil, &PaymentError{Stage: StageVerify, Reason: facilitatorReason(err)}
	}
	if !verified.IsValid {
		reason := verified.InvalidReason
		if reason == "" {
			reason = "invalid_payment"
		}
		return nil, &PaymentError{Stage: StageVerify, Reason: reason}
	}

	accepted, displaced, err := e.settleLocked(ctx, req, proof, authorized, verified.Payer)
	if err != nil {
		return nil, err
	}

	e.notifier.Notify(ctx, events.BidPlaced{
		Base:          e.base(req.SlotID),
		AgentID:       req.AgentID,
		Payer:         accepted.Payer,
		Amount:        accepted.SettledAmount,
		SettlementRef: accepted.SettlementRef,
	})
	log.Info().
		Str("slot_id", req.SlotID).
		Str("agent_id", req.AgentID).
		Str("amount", accepted.SettledAmount.String()).
		Str("settlement_ref", accepted.SettlementRef).
		Msg("bid accepted")

	if displaced != nil {
		e.refunds.Schedule(*displaced)
	}
	return &BidOutcome{Accepted: accepted}, nil
}

// settleLocked holds the custody lock across the recheck, the on-chain
// settlement and the record write, and returns the refund owed to the
// displaced winner, if any.
func (e *Engine) settleLocked(ctx context.Context, req BidRequest, proof x402.PaymentPayload, authorized decimal.Decimal, payer string) (*AcceptedBid, *refund.Job, error) {
	release, err := e.lock.Acquire(ctx)
	if err != nil {
		return nil, nil, &PaymentError{Stage: StageSettle, Reason: ReasonCustodyLockUnavailable}
	}
	defer release()
	started := time.Now()
	defer func() { metricSettlementSeconds.Observe(time.Since(started).Seconds()) }()

	// Another settlement may have landed while this one waited.
	rec, err := e.store.GetAuction(ctx, req.SlotID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.expireIfDue(ctx, rec); err != nil {
		return nil, nil, err
	}
	minimum := e.opts.Pricing.Minimum(rec.CurrentBid)
	if authorized.LessThan(minimum) {
		return nil, nil, e.rejection(authorized, rec.CurrentBid, minimum)
	}
	reqs := e.requirements(req.SlotID, minimum)

	settled, err := e.facilitator.Settle(ctx, proof, reqs)
	if err != nil {
		log.Error().Err(err).Str("slot_id", req.SlotID).Str("agent_id", req.AgentID).Msg("facilitator settle failed")
		return nil, nil, &PaymentError{Stage: StageSettle, Reason: facilitatorReason(err)}
	}
	if !settled.Success {
		reason := settled.ErrorReason
		if reason == "" {
			reason = "settlement_rejected"
		}
		return nil, nil, &PaymentError{Stage: StageSettle, Reason: reason}
	}

	payer = firstNonEmpty(payer, settled.Payer, payment.Payer(proof), "unknown")
	now := e.now()
	entryID := store.NewID()
	var displaced *refund.Job

	stored, err := e.store.UpdateAuction(ctx, req.SlotID, func(r *store.AuctionRecord) error {
		if r.Closed(now) || authorized.LessThan(e.opts.Pricing.Minimum(r.CurrentBid)) {
			return errLostRace
		}
		displaced = nil
		// The previous winning bid is refunded in full even when the same
		// agent is raising its own bid; every bid is its own settlement.
		if r.CurrentWinner != nil && r.CurrentBid != nil {
			job := refund.Job{
				SlotID:  r.SlotID,
				AgentID: r.CurrentWinner.AgentID,
				Address: r.CurrentWinner.PayerAddress,
				Amount:  *r.CurrentBid,
			}
			if idx := r.LastBidIndex(r.CurrentWinner.AgentID); idx >= 0 {
				job.BidEntryID = r.BidHistory[idx].ID
				r.BidHistory[idx].RefundStatus = store.RefundPending
			}
			displaced = &job
		}
		amount := authorized
		r.CurrentBid = &amount
		r.CurrentWinner = &store.Winner{
			AgentID:      req.AgentID,
			PayerAddress: payer,
			ExternalRef:  settled.Transaction,
			Timestamp:    now,
		}
		r.Status = store.StatusActive
		if r.AuctionStartTime == nil {
			start := now
			r.AuctionStartTime = &start
		}
		if r.AuctionEndTime == nil {
			end := r.AuctionStartTime.Add(e.opts.Duration)
			r.AuctionEndTime = &end
		}
		r.BidHistory = append(r.BidHistory, store.BidEntry{
			ID:            entryID,
			AgentID:       req.AgentID,
			PayerAddress:  payer,
			Amount:        amount,
			Timestamp:     now,
			SettlementRef: settled.Transaction,
			Thinking:      req.Thinking,
			StrategyTag:   req.StrategyTag,
			ReasoningText: req.Reasoning,
		})
		return nil
	})
	if err != nil {
		// Money has moved but the bid did not land; hand it straight back.
		reason := ReasonRecordUpdateFailed
		if errors.Is(err, errLostRace) {
			reason = ReasonOutbidDuringSettlement
		}
		log.Error().Err(err).
			Str("slot_id", req.SlotID).
			Str("agent_id", req.AgentID).
			Str("settlement_ref", settled.Transaction).
			Msg("settled bid not recorded, refunding")
		e.refunds.Schedule(refund.Job{SlotID: req.SlotID, AgentID: req.AgentID, Address: payer, Amount: authorized})
		return nil, nil, &PaymentError{Stage: StageSettle, Reason: reason}
	}
	metricSettledUSDCTotal.Add(authorized.InexactFloat64())

	remaining := stored.AuctionEndTime.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return &AcceptedBid{
		SlotID:         req.SlotID,
		AgentID:        req.AgentID,
		Payer:          payer,
		SettledAmount:  authorized,
		SettlementRef:  settled.Transaction,
		Network:        firstNonEmpty(settled.Network, e.opts.Network),
		TimeRemaining:  remaining,
		AuctionEndTime: *stored.AuctionEndTime,
	}, displaced, nil
}

// requirements builds the exact-scheme requirement for the given price.
func (e *Engine) requirements(slotID string, price decimal.Decimal) x402.PaymentRequirement {
	extra := map[string]any{}
	if e.opts.AssetName != "" {
		extra["name"] = e.opts.AssetName
	}
	if e.opts.AssetVersion != "" {
		extra["version"] = e.opts.AssetVersion
	}
	return x402.PaymentRequirement{
		Scheme:            payment.SchemeExact,
		Network:           e.opts.Network,
		MaxAmountRequired: money.ToAtomic(price),
		Asset:             e.opts.Asset,
		PayTo:             e.opts.PayTo,
		Resource:          e.opts.ResourceBaseURL + "/bid/" + slotID,
		Description:       fmt.Sprintf("Bid %s on %s", money.Format(price), slotID),
		MimeType:          "application/json",
		MaxTimeoutSeconds: e.opts.MaxTimeoutSeconds,
		Extra:             extra,
	}
}

func (e *Engine) rejection(proposal decimal.Decimal, current *decimal.Decimal, minimum decimal.Decimal) error {
	return &ProposalRejectedError{
		YourProposal:    proposal,
		CurrentBid:      current,
		MinimumRequired: minimum,
		Suggestion:      minimum.Add(e.opts.SuggestionBuffer),
	}
}

func negotiationMessage(proposal, current *decimal.Decimal, minimum decimal.Decimal) string {
	cur := "$0.00"
	if current != nil {
		cur = money.Format(*current)
	}
	if proposal == nil {
		return fmt.Sprintf("No proposal detected. Current bid: %s. Minimum required: %s", cur, money.Format(minimum))
	}
	return fmt.Sprintf("Your proposal of %s is acceptable. Proceed with payment.", money.Format(*proposal))
}

func recentBids(history []store.BidEntry, n int) []store.BidEntry {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return append([]store.BidEntry{}, history...)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, x402.ErrUnsupportedScheme):
		return ReasonUnsupportedScheme
	case errors.Is(err, x402.ErrUnsupportedVersion):
		return ReasonUnsupportedVersion
	case errors.Is(err, payment.ErrMissingValue):
		return payment.ErrMissingValue.Error()
	default:
		return ReasonMalformedPayment
	}
}

// facilitatorReason separates a facilitator that answered with a non-200
// rejection from one that could not be reached.
func facilitatorReason(err error) string {
	switch {
	case errors.Is(err, x402.ErrVerificationFailed), errors.Is(err, x402.ErrSettlementFailed):
		return ReasonFacilitatorRejected
	default:
		return ReasonFacilitatorUnavailable
	}
}

func outcomeLabel(out *BidOutcome, err error) string {
	switch {
	case err == nil && out != nil && out.Accepted != nil:
		return "accepted"
	case err == nil:
		return "payment_required"
	case errors.Is(err, ErrProposalRejected):
		return "proposal_rejected"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrSettlementFailed):
		return "settlement_failed"
	case errors.Is(err, ErrAuctionClosed):
		return "closed"
	default:
		return "error"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
