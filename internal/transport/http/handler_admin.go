package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"adspot-auction/internal/store"
)

type AdminHandlers struct {
	store     store.AuctionStore
	lifecycle Lifecycle
}

func NewAdminHandlers(st store.AuctionStore, lifecycle Lifecycle) *AdminHandlers {
	return &AdminHandlers{store: st, lifecycle: lifecycle}
}

func (h *AdminHandlers) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "store": "down"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "store": "up"})
	}
}

func (h *AdminHandlers) AuthorizeCreative() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AgentID string `json:"agentId"`
		}
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		grant, err := h.lifecycle.AuthorizeCreative(r.Context(), chi.URLParam(r, "slotId"), body.AgentID)
		if err != nil {
			writeAuctionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, grant)
	}
}

func (h *AdminHandlers) RecordArtifact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body store.Artifact
		if err := decodeBody(r, &body); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if err := h.lifecycle.RecordArtifact(r.Context(), chi.URLParam(r, "slotId"), body); err != nil {
			writeAuctionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func (h *AdminHandlers) FailedRefunds() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r)
		items, err := h.store.ListFailedRefunds(r.Context(), limit)
		if err != nil {
			writeAuctionError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit})
	}
}
