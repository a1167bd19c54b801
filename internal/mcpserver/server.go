// Package mcpserver exposes the agent side of the auction as MCP tools so
// tool-calling agents can bid without speaking raw HTTP.
package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"adspot-auction/internal/auction"
)

type Bidder interface {
	SubmitBid(ctx context.Context, req auction.BidRequest) (*auction.BidOutcome, error)
}

type Lifecycle interface {
	Status(ctx context.Context, slotID string) (*auction.Snapshot, error)
	RequestWithdrawal(ctx context.Context, req auction.WithdrawalRequest) (*auction.WithdrawalResult, error)
	RecordSkip(ctx context.Context, slotID, agentID, reason string) (*auction.SkipResult, error)
	AddReflection(ctx context.Context, slotID, agentID, text string) error
}

type Server struct {
	bidder    Bidder
	lifecycle Lifecycle

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

func New(bidder Bidder, lifecycle Lifecycle) *Server {
	mcpSrv := server.NewMCPServer(
		"adspot-auction",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
		server.WithResourceRecovery(),
	)
	s := &Server{
		bidder:     bidder,
		lifecycle:  lifecycle,
		mcpServer:  mcpSrv,
		httpServer: server.NewStreamableHTTPServer(mcpSrv, server.WithStateLess(true), server.WithDisableStreaming(true)),
	}
	s.registerAuctionTools()
	s.registerResources()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.httpServer
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"auction://{slot_id}/status",
			"auction_status",
			mcp.WithTemplateDescription("Current auction snapshot for an ad slot"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			raw := request.Params.URI
			if !strings.HasPrefix(raw, "auction://") || !strings.HasSuffix(raw, "/status") {
				return nil, nil
			}
			slotID := strings.TrimSuffix(strings.TrimPrefix(raw, "auction://"), "/status")
			if slotID == "" {
				return nil, nil
			}
			snap, err := s.lifecycle.Status(ctx, slotID)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(snap)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{
					URI:      raw,
					MIMEType: "application/json",
					Text:     string(payload),
				},
			}, nil
		},
	)
}
