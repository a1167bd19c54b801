package auction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"adspot-auction/internal/events"
	"adspot-auction/internal/refund"
	"adspot-auction/internal/store"
)

// Controller owns everything that moves an auction besides bidding:
// withdrawals, skips, expiry and the hand-off to the creative flow.
type Controller struct {
	core
}

func NewController(st store.AuctionStore, refunds RefundScheduler, notifier events.Notifier, opts Options) *Controller {
	return &Controller{core: newCore(st, refunds, notifier, opts)}
}

// Status is a read-only view; an expired auction reads as ended even before
// the sweeper persists it.
func (c *Controller) Status(ctx context.Context, slotID string) (*Snapshot, error) {
	if slotID == "" {
		return nil, ErrInvalidRequest
	}
	rec, err := c.store.GetAuction(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return &Snapshot{
			SlotID:          slotID,
			MinimumNextBid:  c.opts.Pricing.Minimum(nil),
			BidHistory:      []store.BidEntry{},
			WithdrawnAgents: []string{},
			SkippedAgents:   []string{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	now := c.now()
	snap := &Snapshot{
		SlotID:           rec.SlotID,
		Status:           rec.Status,
		CurrentBid:       rec.CurrentBid,
		CurrentWinner:    rec.CurrentWinner,
		MinimumNextBid:   c.opts.Pricing.Minimum(rec.CurrentBid),
		TimeRemaining:    snapshotSeconds(rec.TimeRemaining(now)),
		AuctionStartTime: rec.AuctionStartTime,
		AuctionEndTime:   rec.AuctionEndTime,
		AuctionEnded:     rec.Closed(now),
		AuctionEndReason: rec.AuctionEndReason,
		DeclaredWinner:   rec.DeclaredWinner,
		BidHistory:       append([]store.BidEntry{}, rec.BidHistory...),
		WithdrawnAgents:  append([]string{}, rec.WithdrawnAgents...),
		SkippedAgents:    append([]string{}, rec.SkippedAgents...),
	}
	if rec.Status == store.StatusActive && rec.Expired(now) {
		snap.AuctionEndReason = store.EndReasonTimeExpired
	}
	if rec.WinningArtifact != nil {
		url := rec.WinningArtifact.URL
		snap.WinnerAdImage = &url
	}
	return snap, nil
}

// RequestWithdrawal refunds a displaced bidder's last bid and takes it out
// of the running. The current winner cannot withdraw.
func (c *Controller) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error) {
	req.PayoutAddress = strings.TrimSpace(req.PayoutAddress)
	if req.SlotID == "" || req.AgentID == "" || req.PayoutAddress == "" {
		return nil, ErrInvalidRequest
	}
	rec, err := c.store.GetAuction(ctx, req.SlotID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.LastBidIndex(req.AgentID) < 0 {
		return nil, ErrNoBidHistory
	}
	if err := c.expireIfDue(ctx, rec); err != nil {
		return nil, err
	}
	if rec.IsWinner(req.AgentID) {
		return nil, &InvalidWithdrawalError{Reason: "current_winner"}
	}
	if rec.HasWithdrawn(req.AgentID) {
		return nil, &InvalidWithdrawalError{Reason: "already_withdrawn"}
	}
	if !rec.PaidFrom(req.AgentID, req.PayoutAddress) {
		return nil, ErrPayoutMismatch
	}

	job, existing, err := c.claimWithdrawalRefund(ctx, req)
	if err != nil {
		return nil, err
	}
	result := &WithdrawalResult{Refunded: job.Amount}
	if existing != nil {
		// Already refunded (or being refunded) when the agent was outbid.
		result.AlreadyRefunded = true
		result.SettlementRef = existing.RefundRef
	} else {
		ref, err := c.refunds.Refund(ctx, job)
		if err != nil {
			return nil, err
		}
		result.SettlementRef = ref
	}

	var ended, retook bool
	rec, err = c.store.UpdateAuction(ctx, req.SlotID, func(r *store.AuctionRecord) error {
		ended, retook = false, false
		if r.IsWinner(req.AgentID) {
			// A new bid from this agent landed while the refund ran. Only the
			// older entry was refunded; the winning bid stands.
			retook = true
			return store.ErrSkipWrite
		}
		r.AddWithdrawn(req.AgentID)
		if r.Status == store.StatusActive && len(c.remaining(r)) <= 1 {
			ended = r.End(store.EndReasonWithdrawal, c.chooseWinner(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if retook {
		log.Warn().
			Str("slot_id", req.SlotID).
			Str("agent_id", req.AgentID).
			Str("refunded", job.Amount.String()).
			Str("settlement_ref", result.SettlementRef).
			Msg("withdrawal overtaken by a winning bid")
		return nil, &InvalidWithdrawalError{Reason: "current_winner"}
	}
	if ended {
		result.AuctionEnded = true
		result.Winner = rec.DeclaredWinner
	}

	c.notifier.Notify(ctx, events.Withdrawal{
		Base:          c.base(req.SlotID),
		AgentID:       req.AgentID,
		Amount:        job.Amount,
		SettlementRef: result.SettlementRef,
		Reason:        req.Reason,
		AuctionEnded:  result.AuctionEnded,
	})
	log.Info().
		Str("slot_id", req.SlotID).
		Str("agent_id", req.AgentID).
		Str("amount", job.Amount.String()).
		Bool("already_refunded", result.AlreadyRefunded).
		Bool("auction_ended", result.AuctionEnded).
		Msg("agent withdrew")
	if ended {
		c.emitEnded(ctx, rec)
	}
	return result, nil
}

// claimWithdrawalRefund marks the agent's last bid as pending refund so two
// concurrent withdrawals cannot both pay out. When the bid already has a
// refund pending or done it returns that entry instead.
func (c *Controller) claimWithdrawalRefund(ctx context.Context, req WithdrawalRequest) (refund.Job, *store.BidEntry, error) {
	var (
		job      refund.Job
		existing *store.BidEntry
	)
	_, err := c.store.UpdateAuction(ctx, req.SlotID, func(r *store.AuctionRecord) error {
		existing = nil
		idx := r.LastBidIndex(req.AgentID)
		if idx < 0 {
			return ErrNoBidHistory
		}
		if r.IsWinner(req.AgentID) {
			return &InvalidWithdrawalError{Reason: "current_winner"}
		}
		entry := r.BidHistory[idx]
		job = refund.Job{
			SlotID:     req.SlotID,
			AgentID:    req.AgentID,
			Address:    req.PayoutAddress,
			Amount:     entry.Amount,
			BidEntryID: entry.ID,
		}
		switch entry.RefundStatus {
		case store.RefundPending, store.RefundRefunded:
			existing = &entry
			return store.ErrSkipWrite
		}
		r.BidHistory[idx].RefundStatus = store.RefundPending
		return nil
	})
	return job, existing, err
}

// RecordSkip notes that an agent declined to bid at all. With a known
// roster, the auction ends once at most one participant is left.
func (c *Controller) RecordSkip(ctx context.Context, slotID, agentID, reason string) (*SkipResult, error) {
	if slotID == "" || agentID == "" {
		return nil, ErrInvalidRequest
	}
	var (
		result   SkipResult
		ended    bool
		recorded bool
	)
	rec, err := c.store.UpdateAuction(ctx, slotID, func(r *store.AuctionRecord) error {
		ended, recorded = false, false
		result = SkipResult{}
		if r.Status != store.StatusActive {
			result.AuctionEnded = true
			result.Winner = r.DeclaredWinner
			return store.ErrSkipWrite
		}
		recorded = r.AddSkipped(agentID)
		left := c.remaining(r)
		result.ActiveBidders = len(left)
		if !recorded {
			return store.ErrSkipWrite
		}
		if len(c.opts.Roster) > 0 && len(left) <= 1 {
			ended = r.End(store.EndReasonAllSkipped, c.chooseWinner(r))
			result.AuctionEnded = true
			result.Winner = r.DeclaredWinner
		}
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if !recorded {
		return &result, nil
	}

	c.notifier.Notify(ctx, events.AgentSkipped{
		Base:    c.base(slotID),
		AgentID: agentID,
		Reason:  reason,
	})
	log.Info().Str("slot_id", slotID).Str("agent_id", agentID).Int("active_bidders", result.ActiveBidders).Msg("agent skipped")
	if ended {
		c.emitEnded(ctx, rec)
	}
	return &result, nil
}

// AddReflection annotates the agent's most recent bid. Agents send no bid
// ID, so the last entry by that agent is the one annotated.
func (c *Controller) AddReflection(ctx context.Context, slotID, agentID, text string) error {
	if slotID == "" || agentID == "" || strings.TrimSpace(text) == "" {
		return ErrInvalidRequest
	}
	if _, err := c.store.GetAuction(ctx, slotID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAuctionNotFound
		}
		return err
	}
	_, err := c.store.UpdateAuction(ctx, slotID, func(r *store.AuctionRecord) error {
		idx := r.LastBidIndex(agentID)
		if idx < 0 {
			return ErrNoBidHistory
		}
		r.BidHistory[idx].ReflectionText = text
		return nil
	})
	if err != nil {
		return err
	}
	c.notifier.Notify(ctx, events.Reflection{Base: c.base(slotID), AgentID: agentID, Text: text})
	return nil
}

// ReportAgentStatus relays an agent's self-reported status to observers.
func (c *Controller) ReportAgentStatus(ctx context.Context, slotID, agentID, status string) error {
	if slotID == "" || agentID == "" || strings.TrimSpace(status) == "" {
		return ErrInvalidRequest
	}
	c.notifier.Notify(ctx, events.AgentStatus{Base: c.base(slotID), AgentID: agentID, Status: status})
	return nil
}

// Sweep ends every active auction whose end time has passed and returns how
// many it ended.
func (c *Controller) Sweep(ctx context.Context) (int, error) {
	ids, err := c.store.ListExpiredActive(ctx, c.now())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if c.endExpired(ctx, id) {
			n++
		}
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *Controller) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Sweep(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("auction sweep failed")
			}
		}
	}
}

// AuthorizeCreative lets the winner of an ended auction start the creative
// flow, once.
func (c *Controller) AuthorizeCreative(ctx context.Context, slotID, agentID string) (*CreativeGrant, error) {
	if slotID == "" || agentID == "" {
		return nil, ErrInvalidRequest
	}
	rec, err := c.store.GetAuction(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAuctionNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Status == store.StatusActive && rec.Expired(c.now()) {
		c.endExpired(ctx, slotID)
		if rec, err = c.store.GetAuction(ctx, slotID); err != nil {
			return nil, err
		}
	}
	switch {
	case rec.Status == store.StatusActive:
		return nil, ErrAuctionNotEnded
	case rec.WinningArtifact != nil || rec.Status == store.StatusDisplayingResult:
		return nil, ErrArtifactExists
	}
	winner := rec.DeclaredWinner
	if winner == "" {
		winner = currentWinnerID(rec)
	}
	if winner == "" || winner != agentID {
		return nil, ErrNotWinner
	}
	grant := &CreativeGrant{SlotID: slotID, AgentID: agentID, EndedAt: rec.AuctionEndTime, EndReason: rec.AuctionEndReason}
	if rec.CurrentBid != nil && rec.IsWinner(agentID) {
		grant.FinalBid = *rec.CurrentBid
	}
	return grant, nil
}

// RecordArtifact stores the generated creative and moves the slot to
// displaying_result.
func (c *Controller) RecordArtifact(ctx context.Context, slotID string, artifact store.Artifact) error {
	if slotID == "" || strings.TrimSpace(artifact.URL) == "" {
		return ErrInvalidRequest
	}
	if artifact.GeneratedAt.IsZero() {
		artifact.GeneratedAt = c.now()
	}
	if _, err := c.store.GetAuction(ctx, slotID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrAuctionNotFound
		}
		return err
	}
	_, err := c.store.UpdateAuction(ctx, slotID, func(r *store.AuctionRecord) error {
		switch {
		case r.Status == store.StatusActive:
			return ErrAuctionNotEnded
		case r.WinningArtifact != nil || r.Status == store.StatusDisplayingResult:
			return ErrArtifactExists
		}
		a := artifact
		r.WinningArtifact = &a
		r.Status = store.StatusDisplayingResult
		return nil
	})
	return err
}
