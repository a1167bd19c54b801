package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// LogNotifier writes every event to the global zerolog logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, ev Event) {
	env := ToEnvelope(ev)
	e := log.Info()
	if ev.Kind() == KindRefundFailed {
		e = log.Error()
	}
	e = e.Str("event", string(env.Type)).Str("slot_id", env.SlotID)
	if env.AgentID != "" {
		e = e.Str("agent_id", env.AgentID)
	}
	if env.Amount != nil {
		e = e.Str("amount", env.Amount.String())
	}
	if env.SettlementRef != "" {
		e = e.Str("settlement_ref", env.SettlementRef)
	}
	e.Fields(env.Data).Msg("auction event")
}
