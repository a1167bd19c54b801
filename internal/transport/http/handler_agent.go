package httptransport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"adspot-auction/internal/auction"
	"adspot-auction/internal/money"
	"adspot-auction/internal/payment"
)

const (
	HeaderAgentID           = "X-Agent-ID"
	HeaderProposedBid       = "X-Proposed-Bid"
	HeaderStrategyReasoning = "X-Strategy-Reasoning"

	defaultAgentID = "unknown"
)

type AgentHandlers struct {
	bidder    Bidder
	lifecycle Lifecycle
}

func NewAgentHandlers(bidder Bidder, lifecycle Lifecycle) *AgentHandlers {
	return &AgentHandlers{bidder: bidder, lifecycle: lifecycle}
}

func (h *AgentHandlers) Bid() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Thinking string `json:"thinking"`
			Strategy string `json:"strategy"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		req := auction.BidRequest{
			SlotID:        chi.URLParam(r, "slotId"),
			AgentID:       strings.TrimSpace(r.Header.Get(HeaderAgentID)),
			PaymentHeader: strings.TrimSpace(r.Header.Get(payment.HeaderPayment)),
			Thinking:      body.Thinking,
			StrategyTag:   body.Strategy,
			Reasoning:     r.Header.Get(HeaderStrategyReasoning),
		}
		if req.AgentID == "" {
			req.AgentID = defaultAgentID
		}
		if raw := r.Header.Get(HeaderProposedBid); raw != "" {
			amount, err := money.Parse(raw)
			if err != nil || !amount.IsPositive() {
				WriteHTTPError(w, http.StatusBadRequest, "invalid_proposed_bid")
				return
			}
			req.ProposedAmount = &amount
		}

		out, err := h.bidder.SubmitBid(r.Context(), req)
		if err != nil {
			writeBidError(w, r, err)
			return
		}
		if out.PaymentRequired != nil {
			writeJSON(w, http.StatusPaymentRequired, out.PaymentRequired)
			return
		}

		acc := out.Accepted
		if header, err := payment.EncodeSettlement(acc.SettlementHeader()); err == nil {
			w.Header().Set(payment.HeaderPaymentResponse, header)
		} else {
			log.Warn().Err(err).Str("slot_id", acc.SlotID).Msg("encode settlement header")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":        true,
			"message":        fmt.Sprintf("Bid placed for ad spot: %s USDC", acc.SettledAmount.String()),
			"currentWinner":  acc.AgentID,
			"currentBid":     acc.SettledAmount,
			"auctionEndsIn":  int64(acc.TimeRemaining.Seconds()),
			"auctionEndTime": acc.AuctionEndTime.UTC(),
			"transaction":    acc.SettlementRef,
		})
	}
}

func writeBidError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rejected *auction.ProposalRejectedError
		perr     *auction.PaymentError
	)
	switch {
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "Proposal rejected",
			"negotiation": rejectionBody(rejected),
		})
	case errors.As(err, &perr):
		prefix := "Payment verification failed"
		if perr.Stage == auction.StageSettle {
			prefix = "Payment settlement failed"
		}
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":  prefix + ": " + perr.Reason,
			"stage":  perr.Stage,
			"reason": perr.Reason,
		})
	default:
		writeAuctionError(w, r, err)
	}
}

func rejectionBody(e *auction.ProposalRejectedError) map[string]any {
	msg := fmt.Sprintf("Your proposal of %s is too low. Minimum required: %s. Please submit a new proposal.",
		money.Format(e.YourProposal), money.Format(e.MinimumRequired))
	return map[string]any{
		"yourProposal": e.YourProposal,
		"currentBid":   e.CurrentBid,
		"minimumToWin": e.MinimumRequired,
		"message":      msg,
		"suggestion":   e.Suggestion,
	}
}

func (h *AgentHandlers) Reflection() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AgentID    string `json:"agentId"`
			Reflection string `json:"reflection"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := h.lifecycle.AddReflection(r.Context(), chi.URLParam(r, "slotId"), body.AgentID, body.Reflection); err != nil {
			writeAuctionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (h *AgentHandlers) RefundRequest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AgentID       string `json:"agentId"`
			WalletAddress string `json:"walletAddress"`
			Reasoning     string `json:"reasoning"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		res, err := h.lifecycle.RequestWithdrawal(r.Context(), auction.WithdrawalRequest{
			SlotID:        chi.URLParam(r, "slotId"),
			AgentID:       body.AgentID,
			PayoutAddress: body.WalletAddress,
			Reason:        body.Reasoning,
		})
		if err != nil {
			writeAuctionError(w, r, err)
			return
		}
		msg := "Refund issued. You have withdrawn from the auction."
		if res.AuctionEnded {
			msg = "Refund issued. Auction has ended."
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":          true,
			"refunded":         res.Refunded,
			"transaction_hash": res.SettlementRef,
			"already_refunded": res.AlreadyRefunded,
			"auction_ended":    res.AuctionEnded,
			"winner":           res.Winner,
			"message":          msg,
		})
	}
}

func (h *AgentHandlers) Skip() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AgentID   string `json:"agentId"`
			Reasoning string `json:"reasoning"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		res, err := h.lifecycle.RecordSkip(r.Context(), chi.URLParam(r, "slotId"), body.AgentID, body.Reasoning)
		if err != nil {
			writeAuctionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":       true,
			"message":       "Skip notification received",
			"activeBidders": res.ActiveBidders,
			"auctionEnded":  res.AuctionEnded,
			"winner":        res.Winner,
		})
	}
}

func (h *AgentHandlers) AgentStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AgentID string `json:"agentId"`
			Status  string `json:"status"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := h.lifecycle.ReportAgentStatus(r.Context(), chi.URLParam(r, "slotId"), body.AgentID, body.Status); err != nil {
			writeAuctionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func (h *AgentHandlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID := strings.TrimSpace(r.URL.Query().Get("slotId"))
		if slotID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "slot_id_required")
			return
		}
		snap, err := h.lifecycle.Status(r.Context(), slotID)
		if err != nil {
			writeAuctionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
