package httptransport

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"adspot-auction/internal/auction"
	"adspot-auction/internal/refund"
)

// writeAuctionError maps core errors to a status and a snake_case code.
func writeAuctionError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalid *auction.InvalidWithdrawalError
		closed  *auction.ClosedError
	)
	switch {
	case errors.As(err, &invalid):
		WriteHTTPError(w, http.StatusBadRequest, invalid.Reason)
	case errors.Is(err, auction.ErrInvalidRequest):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, auction.ErrPayoutMismatch):
		WriteHTTPError(w, http.StatusForbidden, auction.ErrPayoutMismatch.Error())
	case errors.Is(err, auction.ErrNotWinner):
		WriteHTTPError(w, http.StatusForbidden, auction.ErrNotWinner.Error())
	case errors.Is(err, auction.ErrAuctionNotFound):
		WriteHTTPError(w, http.StatusNotFound, auction.ErrAuctionNotFound.Error())
	case errors.Is(err, auction.ErrNoBidHistory):
		WriteHTTPError(w, http.StatusNotFound, auction.ErrNoBidHistory.Error())
	case errors.As(err, &closed):
		writeJSON(w, http.StatusGone, map[string]any{"error": auction.ErrAuctionClosed.Error(), "reason": closed.Reason})
	case errors.Is(err, auction.ErrAuctionNotEnded):
		WriteHTTPError(w, http.StatusConflict, auction.ErrAuctionNotEnded.Error())
	case errors.Is(err, auction.ErrArtifactExists):
		WriteHTTPError(w, http.StatusConflict, auction.ErrArtifactExists.Error())
	case errors.Is(err, refund.ErrTransferFailed):
		WriteHTTPError(w, http.StatusBadGateway, "refund_failed")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
