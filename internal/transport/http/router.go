package httptransport

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"adspot-auction/internal/auction"
	"adspot-auction/internal/store"
)

// Bidder is the negotiation and settlement side of the auction.
type Bidder interface {
	SubmitBid(ctx context.Context, req auction.BidRequest) (*auction.BidOutcome, error)
}

// Lifecycle is everything else an agent or operator can do to a slot.
type Lifecycle interface {
	Status(ctx context.Context, slotID string) (*auction.Snapshot, error)
	RequestWithdrawal(ctx context.Context, req auction.WithdrawalRequest) (*auction.WithdrawalResult, error)
	RecordSkip(ctx context.Context, slotID, agentID, reason string) (*auction.SkipResult, error)
	AddReflection(ctx context.Context, slotID, agentID, text string) error
	ReportAgentStatus(ctx context.Context, slotID, agentID, status string) error
	AuthorizeCreative(ctx context.Context, slotID, agentID string) (*auction.CreativeGrant, error)
	RecordArtifact(ctx context.Context, slotID string, artifact store.Artifact) error
}

type Deps struct {
	Bidder    Bidder
	Lifecycle Lifecycle
	Store     store.AuctionStore
	// MCP is mounted at /mcp when set.
	MCP http.Handler
	// Events is the websocket event stream mounted at /ws when set.
	Events      http.Handler
	AdminAPIKey string
}

func NewRouter(d Deps) *chi.Mux {
	agentHandlers := NewAgentHandlers(d.Bidder, d.Lifecycle)
	adminHandlers := NewAdminHandlers(d.Store, d.Lifecycle)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", adminHandlers.Health())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if d.Events != nil {
		r.Method(http.MethodGet, "/ws", d.Events)
	}

	if d.MCP != nil {
		r.With(APILogMiddleware()).MethodFunc(http.MethodOptions, "/mcp", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Allow", "POST, GET, DELETE, OPTIONS")
			w.WriteHeader(http.StatusNoContent)
		})
		r.With(APILogMiddleware()).Method(http.MethodPost, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodGet, "/mcp", d.MCP)
		r.With(APILogMiddleware()).Method(http.MethodDelete, "/mcp", d.MCP)
	}

	r.Group(func(r chi.Router) {
		r.Use(APILogMiddleware())
		r.Use(MetricsMiddleware())

		r.Post("/bid/{slotId}", agentHandlers.Bid())
		r.Post("/bid/{slotId}/reflection", agentHandlers.Reflection())
		r.Post("/refund-request/{slotId}", agentHandlers.RefundRequest())
		r.Post("/skip/{slotId}", agentHandlers.Skip())
		r.Post("/agent-status/{slotId}", agentHandlers.AgentStatus())
		r.Get("/status", agentHandlers.Status())

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(d.AdminAPIKey))
			r.Post("/creative/{slotId}/authorize", adminHandlers.AuthorizeCreative())
			r.Post("/creative/{slotId}/artifact", adminHandlers.RecordArtifact())
			r.Get("/admin/refunds/failed", adminHandlers.FailedRefunds())
		})
	})
	return r
}

func LogRoutes(r chi.Router) {
	type routeDef struct {
		Method string
		Path   string
	}
	routes := make([]routeDef, 0, 16)
	err := chi.Walk(r, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, routeDef{Method: method, Path: route})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("walk routes failed")
		return
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path == routes[j].Path {
			return routes[i].Method < routes[j].Method
		}
		return routes[i].Path < routes[j].Path
	})
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Registered routes (%d):\n", len(routes)))
	for _, rt := range routes {
		b.WriteString(fmt.Sprintf("  %-6s %s\n", rt.Method, rt.Path))
	}
	fmt.Print(b.String())
}
