package mcpserver

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"adspot-auction/internal/auction"
	"adspot-auction/internal/refund"
)

func toolResult(data any) *mcp.CallToolResult {
	return mcp.NewToolResultStructuredOnly(data)
}

func toolError(code, message string) *mcp.CallToolResult {
	result := mcp.NewToolResultStructured(
		map[string]any{
			"error": map[string]any{
				"code":    code,
				"message": message,
			},
		},
		fmt.Sprintf("%s: %s", code, message),
	)
	result.IsError = true
	return result
}

// bidError keeps the negotiation payload on rejections so an agent can
// resubmit without a second round trip.
func bidError(err error) *mcp.CallToolResult {
	var (
		rejected *auction.ProposalRejectedError
		payment  *auction.PaymentError
	)
	switch {
	case errors.As(err, &rejected):
		result := mcp.NewToolResultStructured(
			map[string]any{
				"error": map[string]any{
					"code":    auction.ErrProposalRejected.Error(),
					"message": "proposal below minimum to win",
				},
				"negotiation": map[string]any{
					"yourProposal": rejected.YourProposal,
					"currentBid":   rejected.CurrentBid,
					"minimumToWin": rejected.MinimumRequired,
					"suggestion":   rejected.Suggestion,
				},
			},
			fmt.Sprintf("%s: minimum to win is %s", auction.ErrProposalRejected.Error(), rejected.MinimumRequired.String()),
		)
		result.IsError = true
		return result
	case errors.As(err, &payment):
		return toolError(payment.Unwrap().Error(), payment.Reason)
	default:
		return mapAuctionError(err)
	}
}

func mapAuctionError(err error) *mcp.CallToolResult {
	var (
		invalid *auction.InvalidWithdrawalError
		closed  *auction.ClosedError
	)
	switch {
	case err == nil:
		return toolError("internal_error", "unknown error")
	case errors.As(err, &invalid):
		return toolError(invalid.Reason, err.Error())
	case errors.As(err, &closed):
		return toolError(auction.ErrAuctionClosed.Error(), closed.Reason)
	case errors.Is(err, auction.ErrInvalidRequest):
		return toolError("invalid_request", err.Error())
	case errors.Is(err, auction.ErrAuctionNotFound):
		return toolError("not_found", err.Error())
	case errors.Is(err, auction.ErrNoBidHistory):
		return toolError(auction.ErrNoBidHistory.Error(), err.Error())
	case errors.Is(err, auction.ErrPayoutMismatch):
		return toolError(auction.ErrPayoutMismatch.Error(), err.Error())
	case errors.Is(err, refund.ErrTransferFailed):
		return toolError("refund_failed", err.Error())
	default:
		return toolError("internal_error", err.Error())
	}
}
