package mcpserver

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/x402-go"
	"github.com/mark3labs/x402-go/facilitator"
	"github.com/shopspring/decimal"

	"adspot-auction/internal/auction"
	"adspot-auction/internal/custody"
	"adspot-auction/internal/events"
	"adspot-auction/internal/payment"
	"adspot-auction/internal/refund"
	"adspot-auction/internal/store"
)

type okFacilitator struct {
	mu    sync.Mutex
	count int
}

func (f *okFacilitator) Verify(_ context.Context, payload x402.PaymentPayload, _ x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	return &facilitator.VerifyResponse{IsValid: true, Payer: payment.Payer(payload)}, nil
}

func (f *okFacilitator) Settle(_ context.Context, payload x402.PaymentPayload, _ x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	return &x402.SettlementResponse{
		Success:     true,
		Transaction: fmt.Sprintf("0xtx%d", f.count),
		Network:     "base-sepolia",
		Payer:       payment.Payer(payload),
	}, nil
}

func (f *okFacilitator) Supported(context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{Kinds: []facilitator.SupportedKind{
		{X402Version: payment.Version, Scheme: payment.SchemeExact, Network: "base-sepolia"},
	}}, nil
}

type okTransfer struct {
	mu    sync.Mutex
	count int
}

func (t *okTransfer) Transfer(_ context.Context, _ string, _ decimal.Decimal) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count++
	return fmt.Sprintf("0xrefund%d", t.count), nil
}

func newTestServer(t *testing.T) (*Server, *refund.Issuer) {
	t.Helper()
	st := store.NewMemoryStore()
	opts := auction.Options{
		Pricing:         auction.IncrementRule{Starting: decimal.NewFromInt(1), Increment: decimal.NewFromInt(1)},
		Spread:          decimal.NewFromInt(2),
		Cap:             decimal.NewFromInt(10),
		Duration:        5 * time.Minute,
		PayTo:           "0xTREASURY",
		Network:         "base-sepolia",
		ResourceBaseURL: "https://ads.test",
	}
	issuer := refund.NewIssuer(&okTransfer{}, custody.NewLocalLock(), st, events.Nop, refund.Policy{})
	engine := auction.NewEngine(st, &okFacilitator{}, custody.NewLocalLock(), issuer, events.Nop, opts)
	ctrl := auction.NewController(st, issuer, events.Nop, opts)
	return New(engine, ctrl), issuer
}

func TestMCPServerAuctionFlow(t *testing.T) {
	srv, issuer := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	mcpClient, closeClient := newMCPClient(t, httpSrv.URL+"/mcp")
	defer closeClient()

	assertToolNames(t, mustListTools(t, mcpClient),
		"get_auction_status",
		"submit_bid",
		"request_withdrawal",
		"skip_auction",
		"add_reflection",
	)

	status := mustCallTool(t, mcpClient, "get_auction_status", map[string]any{"slot_id": "slot-1"})
	if status.IsError {
		t.Fatalf("status error: %v", status.StructuredContent)
	}
	payload := mapFromStructured(t, status)
	if payload["currentBid"] != nil || asString(payload["minimumNextBid"]) != "1" {
		t.Fatalf("unexpected empty snapshot: %v", payload)
	}

	challenge := mustCallTool(t, mcpClient, "submit_bid", map[string]any{
		"slot_id":         "slot-1",
		"agent_id":        "agent-a",
		"proposed_amount": "1.50",
	})
	if challenge.IsError {
		t.Fatalf("negotiation error: %v", challenge.StructuredContent)
	}
	payload = mapFromStructured(t, challenge)
	if asString(payload["status"]) != "payment_required" {
		t.Fatalf("expected payment_required, got %v", payload)
	}

	low := mustCallTool(t, mcpClient, "submit_bid", map[string]any{
		"slot_id":         "slot-1",
		"agent_id":        "agent-a",
		"proposed_amount": "0.50",
	})
	if !low.IsError {
		t.Fatalf("expected rejection, got %v", low.StructuredContent)
	}
	payload = mapFromStructured(t, low)
	if errorCode(payload) != "proposal_rejected" {
		t.Fatalf("expected proposal_rejected, got %v", payload)
	}
	negotiation, _ := payload["negotiation"].(map[string]any)
	if asString(negotiation["minimumToWin"]) != "1" {
		t.Fatalf("unexpected negotiation: %v", negotiation)
	}

	mustBid(t, mcpClient, "agent-a", "0xA", 1_000_000)
	mustBid(t, mcpClient, "agent-b", "0xB", 2_000_000)

	reflect := mustCallTool(t, mcpClient, "add_reflection", map[string]any{
		"slot_id":    "slot-1",
		"agent_id":   "agent-b",
		"reflection": "worth it",
	})
	if reflect.IsError {
		t.Fatalf("reflection error: %v", reflect.StructuredContent)
	}

	winner := mustCallTool(t, mcpClient, "request_withdrawal", map[string]any{
		"slot_id":        "slot-1",
		"agent_id":       "agent-b",
		"wallet_address": "0xB",
	})
	if !winner.IsError || errorCode(mapFromStructured(t, winner)) != "current_winner" {
		t.Fatalf("expected current_winner rejection, got %v", winner.StructuredContent)
	}

	withdraw := mustCallTool(t, mcpClient, "request_withdrawal", map[string]any{
		"slot_id":        "slot-1",
		"agent_id":       "agent-a",
		"wallet_address": "0xA",
	})
	if withdraw.IsError {
		t.Fatalf("withdrawal error: %v", withdraw.StructuredContent)
	}
	payload = mapFromStructured(t, withdraw)
	if payload["already_refunded"] != true {
		t.Fatalf("displaced bid must not be refunded twice: %v", payload)
	}

	skip := mustCallTool(t, mcpClient, "skip_auction", map[string]any{"slot_id": "slot-1", "agent_id": "agent-c"})
	if skip.IsError {
		t.Fatalf("skip error: %v", skip.StructuredContent)
	}

	status = mustCallTool(t, mcpClient, "get_auction_status", map[string]any{"slot_id": "slot-1"})
	payload = mapFromStructured(t, status)
	if asString(payload["currentBid"]) != "2" {
		t.Fatalf("unexpected current bid: %v", payload)
	}
	current, _ := payload["currentWinner"].(map[string]any)
	if asString(current["agentId"]) != "agent-b" {
		t.Fatalf("unexpected winner: %v", payload["currentWinner"])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := issuer.Wait(ctx); err != nil {
		t.Fatalf("wait refunds: %v", err)
	}
}

func TestMCPServerValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	mcpClient, closeClient := newMCPClient(t, httpSrv.URL+"/mcp")
	defer closeClient()

	cases := []struct {
		tool string
		args map[string]any
		code string
	}{
		{"submit_bid", map[string]any{"slot_id": "slot-1"}, "invalid_request"},
		{"submit_bid", map[string]any{"slot_id": "slot-1", "agent_id": "a", "proposed_amount": "-1"}, "invalid_proposed_bid"},
		{"submit_bid", map[string]any{"slot_id": "slot-1", "agent_id": "a", "payment": "not-base64"}, "verification_failed"},
		{"request_withdrawal", map[string]any{"slot_id": "missing", "agent_id": "a", "wallet_address": "0xA"}, "not_found"},
		{"add_reflection", map[string]any{"slot_id": "slot-1", "agent_id": "a", "reflection": " "}, "invalid_request"},
		{"skip_auction", map[string]any{"slot_id": "slot-1"}, "invalid_request"},
	}
	for _, tc := range cases {
		res := mustCallTool(t, mcpClient, tc.tool, tc.args)
		if !res.IsError {
			t.Fatalf("%s %v: expected error, got %v", tc.tool, tc.args, res.StructuredContent)
		}
		if got := errorCode(mapFromStructured(t, res)); got != tc.code {
			t.Fatalf("%s %v: expected %s, got %s", tc.tool, tc.args, tc.code, got)
		}
	}
}

func mustBid(t *testing.T, c *client.Client, agentID, from string, atomic int64) {
	t.Helper()
	res := mustCallTool(t, c, "submit_bid", map[string]any{
		"slot_id":  "slot-1",
		"agent_id": agentID,
		"payment":  paymentHeader(t, from, fmt.Sprintf("%d", atomic)),
		"thinking": agentID + " bids",
	})
	if res.IsError {
		t.Fatalf("bid %s error: %v", agentID, res.StructuredContent)
	}
	payload := mapFromStructured(t, res)
	if asString(payload["status"]) != "accepted" || asString(payload["current_winner"]) != agentID {
		t.Fatalf("bid %s not accepted: %v", agentID, payload)
	}
	if asString(payload["payment_response"]) == "" {
		t.Fatalf("bid %s missing payment response: %v", agentID, payload)
	}
}

func paymentHeader(t *testing.T, from, atomic string) string {
	t.Helper()
	header, err := payment.EncodePayment(x402.PaymentPayload{
		X402Version: payment.Version,
		Scheme:      payment.SchemeExact,
		Network:     "base-sepolia",
		Payload: x402.EVMPayload{
			Signature: "0xsig",
			Authorization: x402.EVMAuthorization{
				From:        from,
				To:          "0xTREASURY",
				Value:       atomic,
				ValidAfter:  "0",
				ValidBefore: "9999999999",
				Nonce:       "0x01",
			},
		},
	})
	if err != nil {
		t.Fatalf("encode payment: %v", err)
	}
	return header
}

func newMCPClient(t *testing.T, endpoint string) (*client.Client, func()) {
	t.Helper()
	ctx := context.Background()
	trans, err := transport.NewStreamableHTTP(endpoint)
	if err != nil {
		t.Fatalf("new transport: %v", err)
	}
	if err := trans.Start(ctx); err != nil {
		t.Fatalf("transport start: %v", err)
	}
	c := client.NewClient(trans)
	_, err = c.Initialize(ctx, mcp.InitializeRequest{Params: mcp.InitializeParams{ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION}})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return c, func() { _ = trans.Close() }
}

func mustListTools(t *testing.T, c *client.Client) []mcp.Tool {
	t.Helper()
	res, err := c.ListTools(context.Background(), mcp.ListToolsRequest{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	return res.Tools
}

func assertToolNames(t *testing.T, tools []mcp.Tool, expected ...string) {
	t.Helper()
	got := make([]string, 0, len(tools))
	for _, tool := range tools {
		got = append(got, tool.Name)
	}
	sort.Strings(got)
	sort.Strings(expected)
	if len(got) != len(expected) {
		t.Fatalf("tool count mismatch got=%v expected=%v", got, expected)
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Fatalf("tool list mismatch got=%v expected=%v", got, expected)
		}
	}
}

func mustCallTool(t *testing.T, c *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := c.CallTool(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}})
	if err != nil {
		t.Fatalf("call tool %s: %v", name, err)
	}
	return res
}

func mapFromStructured(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	b, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal structured content: %v", err)
	}
	return out
}

func errorCode(payload map[string]any) string {
	e, _ := payload["error"].(map[string]any)
	return asString(e["code"])
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
