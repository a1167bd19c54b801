package events

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

func TestEnvelopeCarriesKindFields(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := ToEnvelope(BidPlaced{
		Base:          Base{SlotID: "demo", Timestamp: at},
		AgentID:       "A",
		Payer:         "0xA",
		Amount:        decimal.NewFromInt(2),
		SettlementRef: "0xtx",
	})
	check.Equal(t, KindBidPlaced, env.Type)
	check.Equal(t, "demo", env.SlotID)
	check.Equal(t, "A", env.AgentID)
	check.Equal(t, "0xtx", env.SettlementRef)
	assert.NotNil(t, env.Amount)
	check.True(t, env.Amount.Equal(decimal.NewFromInt(2)))

	raw, err := json.Marshal(env)
	assert.NoError(t, err)
	var decoded map[string]any
	assert.NoError(t, json.Unmarshal(raw, &decoded))
	check.Equal(t, "bid_placed", decoded["type"])
	check.Equal(t, "2", decoded["amount"])
}

func TestEnvelopeEndedWithoutWinner(t *testing.T) {
	env := ToEnvelope(AuctionEnded{Base: Base{SlotID: "s"}, Reason: "all_skipped"})
	check.Equal(t, KindAuctionEnded, env.Type)
	check.Equal(t, "", env.AgentID)
	check.Nil(t, env.Amount)
	check.Equal(t, "all_skipped", env.Data["reason"])
}

func TestFanoutDeliversToAll(t *testing.T) {
	var a, b []Kind
	f := Fanout{
		NotifierFunc(func(_ context.Context, ev Event) { a = append(a, ev.Kind()) }),
		nil,
		NotifierFunc(func(_ context.Context, ev Event) { b = append(b, ev.Kind()) }),
	}
	f.Notify(context.Background(), AgentSkipped{Base: Base{SlotID: "s"}, AgentID: "A"})
	f.Notify(context.Background(), Reflection{Base: Base{SlotID: "s"}, AgentID: "A"})
	check.Equal(t, []Kind{KindAgentSkipped, KindReflection}, a)
	check.Equal(t, a, b)
}

func TestEnvelopeSchema(t *testing.T) {
	compiler := jsonschema.NewCompiler()
	data, err := os.ReadFile("../../api/schema/event_envelope_v1.schema.json")
	assert.NoError(t, err)
	assert.NoError(t, compiler.AddResource("event_envelope_v1.schema.json", strings.NewReader(string(data))))
	schema, err := compiler.Compile("event_envelope_v1.schema.json")
	assert.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	base := Base{SlotID: "demo", Timestamp: at}
	proposed := decimal.RequireFromString("1.5")
	samples := []Event{
		Thinking{Base: base, AgentID: "A", ProposedAmount: &proposed, Thinking: "hmm", Strategy: "probe"},
		BidPlaced{Base: base, AgentID: "A", Payer: "0xA", Amount: decimal.NewFromInt(1), SettlementRef: "0xtx1"},
		Refund{Base: base, AgentID: "A", Address: "0xA", Amount: decimal.NewFromInt(1), SettlementRef: "0xr", Attempts: 1},
		RefundFailed{Base: base, AgentID: "A", Address: "0xA", Amount: decimal.NewFromInt(1), Reason: "rpc", Attempts: 2},
		Withdrawal{Base: base, AgentID: "A", Amount: decimal.NewFromInt(1), SettlementRef: "0xr", Reason: "done"},
		AgentSkipped{Base: base, AgentID: "B", Reason: "too rich"},
		AuctionEnded{Base: base, Reason: "time_expired"},
		Reflection{Base: base, AgentID: "A", Text: "ok"},
		AgentStatus{Base: base, AgentID: "A", Status: "thinking"},
	}
	for _, ev := range samples {
		raw, err := json.Marshal(ToEnvelope(ev))
		assert.NoError(t, err)
		var v any
		assert.NoError(t, json.Unmarshal(raw, &v))
		if err := schema.Validate(v); err != nil {
			t.Fatalf("%s envelope does not match schema: %v", ev.Kind(), err)
		}
	}
}
