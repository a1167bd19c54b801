package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/x402-go"
	"github.com/mark3labs/x402-go/facilitator"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"adspot-auction/internal/custody"
	"adspot-auction/internal/events"
	"adspot-auction/internal/money"
	"adspot-auction/internal/payment"
	"adspot-auction/internal/refund"
	"adspot-auction/internal/store"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeFacilitator accepts every proof unless told otherwise and hands out
// sequential transaction hashes.
type fakeFacilitator struct {
	mu           sync.Mutex
	verifyCalls  int
	settleCalls  int
	invalid      string
	settleErr    error
	settleReason string
	// gate, when set, blocks Settle until closed.
	gate     chan struct{}
	inSettle atomic.Int32
}

func (f *fakeFacilitator) Verify(_ context.Context, proof x402.PaymentPayload, _ x402.PaymentRequirement) (*facilitator.VerifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.invalid != "" {
		return &facilitator.VerifyResponse{IsValid: false, InvalidReason: f.invalid}, nil
	}
	return &facilitator.VerifyResponse{IsValid: true, Payer: payment.Payer(proof)}, nil
}

func (f *fakeFacilitator) Settle(_ context.Context, proof x402.PaymentPayload, _ x402.PaymentRequirement) (*x402.SettlementResponse, error) {
	f.inSettle.Add(1)
	defer f.inSettle.Add(-1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls++
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	if f.settleReason != "" {
		return &x402.SettlementResponse{Success: false, ErrorReason: f.settleReason}, nil
	}
	return &x402.SettlementResponse{
		Success:     true,
		Transaction: fmt.Sprintf("0xtx%d", f.settleCalls),
		Network:     "base-sepolia",
		Payer:       payment.Payer(proof),
	}, nil
}

func (f *fakeFacilitator) Supported(context.Context) (*facilitator.SupportedResponse, error) {
	return &facilitator.SupportedResponse{Kinds: []facilitator.SupportedKind{{X402Version: 1, Scheme: "exact", Network: "base-sepolia"}}}, nil
}

func (f *fakeFacilitator) settling() bool {
	return f.inSettle.Load() > 0
}

func (f *fakeFacilitator) calls() (verify, settle int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls, f.settleCalls
}

// scriptedTransfer fails the first `fails` transfers. onCall, when set, runs
// after each transfer with its 1-based call number.
type scriptedTransfer struct {
	mu     sync.Mutex
	fails  int
	calls  []string
	onCall func(n int)
}

func (s *scriptedTransfer) Transfer(_ context.Context, to string, amount decimal.Decimal) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, to+":"+amount.String())
	n := len(s.calls)
	failed := n <= s.fails
	hook := s.onCall
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if failed {
		return "", errors.New("rpc unavailable")
	}
	return fmt.Sprintf("0xrefund%d", n), nil
}

func (s *scriptedTransfer) transfers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type eventLog struct {
	mu  sync.Mutex
	evs []events.Event
}

func (l *eventLog) Notify(_ context.Context, ev events.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evs = append(l.evs, ev)
}

func (l *eventLog) count(kind events.Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.evs {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

func (l *eventLog) last(kind events.Kind) events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.evs) - 1; i >= 0; i-- {
		if l.evs[i].Kind() == kind {
			return l.evs[i]
		}
	}
	return nil
}

type harness struct {
	store    *store.MemoryStore
	fac      *fakeFacilitator
	transfer *scriptedTransfer
	lock     custody.Locker
	issuer   *refund.Issuer
	events   *eventLog
	clock    *clock
	engine   *Engine
	ctrl     *Controller
}

func testOptions() Options {
	return Options{
		Pricing:          IncrementRule{Starting: dollars("1"), Increment: dollars("1")},
		Spread:           dollars("2"),
		Cap:              dollars("10"),
		SuggestionBuffer: dollars("0.5"),
		Duration:         5 * time.Minute,
		PayTo:            "0xTREASURY",
		Network:          "base-sepolia",
		Asset:            "0xUSDC",
		AssetName:        "USDC",
		AssetVersion:     "2",
		ResourceBaseURL:  "https://ads.test",
	}
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	return newHarnessWithPolicy(t, opts, refund.Policy{})
}

// newHarnessWithPolicy wires the engine and the refund issuer to one custody
// lock, as the server does.
func newHarnessWithPolicy(t *testing.T, opts Options, policy refund.Policy) *harness {
	t.Helper()
	h := &harness{
		store:    store.NewMemoryStore(),
		fac:      &fakeFacilitator{},
		transfer: &scriptedTransfer{},
		lock:     custody.NewLocalLock(),
		events:   &eventLog{},
		clock:    newClock(),
	}
	h.issuer = refund.NewIssuer(h.transfer, h.lock, h.store, h.events, policy)
	h.engine = NewEngine(h.store, h.fac, h.lock, h.issuer, h.events, opts)
	h.engine.now = h.clock.Now
	h.engine.sleep = func(context.Context, time.Duration) error { return nil }
	h.ctrl = NewController(h.store, h.issuer, h.events, opts)
	h.ctrl.now = h.clock.Now
	return h
}

// wait drains scheduled refunds.
func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, h.issuer.Wait(ctx))
}

func (h *harness) propose(t *testing.T, slot, agent, amount string) (*BidOutcome, error) {
	t.Helper()
	p := dollars(amount)
	return h.engine.SubmitBid(context.Background(), BidRequest{SlotID: slot, AgentID: agent, ProposedAmount: &p})
}

func (h *harness) pay(t *testing.T, slot, agent, from, amount string) (*BidOutcome, error) {
	t.Helper()
	p := dollars(amount)
	return h.engine.SubmitBid(context.Background(), BidRequest{
		SlotID:         slot,
		AgentID:        agent,
		ProposedAmount: &p,
		PaymentHeader:  paymentHeader(t, from, money.ToAtomic(p)),
		Thinking:       agent + " thinks " + amount + " is fair",
	})
}

func (h *harness) record(t *testing.T, slot string) *store.AuctionRecord {
	t.Helper()
	rec, err := h.store.GetAuction(context.Background(), slot)
	assert.NoError(t, err)
	return rec
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
	assert.NoError(t, err)
	return header
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 5s")
		}
		time.Sleep(time.Millisecond)
	}
}

func dollars(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
