package mcpserver

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"adspot-auction/internal/auction"
	"adspot-auction/internal/money"
	"adspot-auction/internal/payment"
)

func (s *Server) registerAuctionTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_auction_status",
			mcp.WithDescription("Get the current state of an ad slot auction"),
			mcp.WithString("slot_id", mcp.Required(), mcp.Description("Ad slot id")),
		),
		s.handleGetAuctionStatus,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"submit_bid",
			mcp.WithDescription("Negotiate or place a bid. Without payment the result is the x402 payment challenge with negotiation context."),
			mcp.WithString("slot_id", mcp.Required(), mcp.Description("Ad slot id")),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Bidding agent id")),
			mcp.WithString("proposed_amount", mcp.Description("Intended bid in USDC, e.g. 2.50")),
			mcp.WithString("payment", mcp.Description("Base64 x402 payment proof (X-PAYMENT value)")),
			mcp.WithString("thinking", mcp.Description("Free-text thinking shown with the bid")),
			mcp.WithString("strategy", mcp.Description("Short strategy tag")),
			mcp.WithString("reasoning", mcp.Description("Reasoning recorded with the bid")),
		),
		s.handleSubmitBid,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"request_withdrawal",
			mcp.WithDescription("Withdraw from an auction and get the last bid refunded"),
			mcp.WithString("slot_id", mcp.Required(), mcp.Description("Ad slot id")),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("wallet_address", mcp.Required(), mcp.Description("Address that paid the bid")),
			mcp.WithString("reason", mcp.Description("Optional reason")),
		),
		s.handleRequestWithdrawal,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"skip_auction",
			mcp.WithDescription("Decline to keep bidding"),
			mcp.WithString("slot_id", mcp.Required(), mcp.Description("Ad slot id")),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("reason", mcp.Description("Optional reason")),
		),
		s.handleSkipAuction,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"add_reflection",
			mcp.WithDescription("Attach a reflection to the agent's most recent bid"),
			mcp.WithString("slot_id", mcp.Required(), mcp.Description("Ad slot id")),
			mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent id")),
			mcp.WithString("reflection", mcp.Required(), mcp.Description("Reflection text")),
		),
		s.handleAddReflection,
	)
}

func (s *Server) handleGetAuctionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slotID := strings.TrimSpace(request.GetString("slot_id", ""))
	if slotID == "" {
		return toolError("invalid_request", "slot_id is required"), nil
	}
	snap, err := s.lifecycle.Status(ctx, slotID)
	if err != nil {
		return mapAuctionError(err), nil
	}
	return toolResult(snap), nil
}

func (s *Server) handleSubmitBid(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := auction.BidRequest{
		SlotID:        strings.TrimSpace(request.GetString("slot_id", "")),
		AgentID:       strings.TrimSpace(request.GetString("agent_id", "")),
		PaymentHeader: strings.TrimSpace(request.GetString("payment", "")),
		Thinking:      request.GetString("thinking", ""),
		StrategyTag:   request.GetString("strategy", ""),
		Reasoning:     request.GetString("reasoning", ""),
	}
	if req.SlotID == "" || req.AgentID == "" {
		return toolError("invalid_request", "slot_id and agent_id are required"), nil
	}
	if raw := request.GetString("proposed_amount", ""); raw != "" {
		amount, err := money.Parse(raw)
		if err != nil || !amount.IsPositive() {
			return toolError("invalid_proposed_bid", "proposed_amount must be a positive USDC amount"), nil
		}
		req.ProposedAmount = &amount
	}

	out, err := s.bidder.SubmitBid(ctx, req)
	if err != nil {
		return bidError(err), nil
	}
	if out.PaymentRequired != nil {
		return toolResult(map[string]any{
			"status":    "payment_required",
			"challenge": out.PaymentRequired,
		}), nil
	}
	acc := out.Accepted
	settlement, _ := payment.EncodeSettlement(acc.SettlementHeader())
	return toolResult(map[string]any{
		"status":           "accepted",
		"current_winner":   acc.AgentID,
		"current_bid":      acc.SettledAmount,
		"auction_ends_in":  int64(acc.TimeRemaining.Seconds()),
		"auction_end_time": acc.AuctionEndTime.UTC(),
		"transaction":      acc.SettlementRef,
		"payment_response": settlement,
	}), nil
}

func (s *Server) handleRequestWithdrawal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.lifecycle.RequestWithdrawal(ctx, auction.WithdrawalRequest{
		SlotID:        strings.TrimSpace(request.GetString("slot_id", "")),
		AgentID:       strings.TrimSpace(request.GetString("agent_id", "")),
		PayoutAddress: request.GetString("wallet_address", ""),
		Reason:        request.GetString("reason", ""),
	})
	if err != nil {
		return mapAuctionError(err), nil
	}
	return toolResult(res), nil
}

func (s *Server) handleSkipAuction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slotID := strings.TrimSpace(request.GetString("slot_id", ""))
	agentID := strings.TrimSpace(request.GetString("agent_id", ""))
	if slotID == "" || agentID == "" {
		return toolError("invalid_request", "slot_id and agent_id are required"), nil
	}
	res, err := s.lifecycle.RecordSkip(ctx, slotID, agentID, request.GetString("reason", ""))
	if err != nil {
		return mapAuctionError(err), nil
	}
	return toolResult(res), nil
}

func (s *Server) handleAddReflection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slotID := strings.TrimSpace(request.GetString("slot_id", ""))
	agentID := strings.TrimSpace(request.GetString("agent_id", ""))
	if err := s.lifecycle.AddReflection(ctx, slotID, agentID, request.GetString("reflection", "")); err != nil {
		return mapAuctionError(err), nil
	}
	return toolResult(map[string]any{"ok": true}), nil
}
