package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"adspot-auction/internal/events"
	"adspot-auction/internal/money"
)

const (
	colorBid      = 0x3BA55D
	colorInfo     = 0x5865F2
	colorWarn     = 0xFEE75C
	colorEnded    = 0x57F287
	colorCritical = 0xED4245

	textPreviewLimit = 200
	defaultFooter    = "adspot auction"
)

// FormatMessage renders an event for chat platforms. Thinking events are
// the noisiest and are still rendered; targets filter with allowlists.
func FormatMessage(env events.Envelope) Message {
	msg := Message{
		Timestamp: env.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Footer:    defaultFooter,
		Color:     colorInfo,
	}
	agent := fallback(env.AgentID, "unknown")
	amount := "-"
	if env.Amount != nil {
		amount = money.Format(*env.Amount)
	}
	slot := MessageField{Name: "Slot", Value: env.SlotID, Inline: true}

	switch env.Type {
	case events.KindThinking:
		msg.Title = fmt.Sprintf("%s is thinking", agent)
		msg.Description = preview(dataString(env, "thinking"))
		msg.Fields = []MessageField{slot, {Name: "Proposal", Value: amount, Inline: true}}
		if s := dataString(env, "strategy"); s != "" {
			msg.Fields = append(msg.Fields, MessageField{Name: "Strategy", Value: s, Inline: true})
		}
	case events.KindBidPlaced:
		msg.Title = fmt.Sprintf("New high bid: %s", amount)
		msg.Description = fmt.Sprintf("%s now leads %s.", agent, env.SlotID)
		msg.Color = colorBid
		msg.Fields = []MessageField{slot, {Name: "Tx", Value: fallback(env.SettlementRef, "-"), Inline: true}}
	case events.KindRefund:
		msg.Title = fmt.Sprintf("Refunded %s to %s", amount, agent)
		msg.Fields = []MessageField{slot, {Name: "Tx", Value: fallback(env.SettlementRef, "-"), Inline: true}}
	case events.KindRefundFailed:
		msg.Title = fmt.Sprintf("Refund failed: %s to %s", amount, agent)
		msg.Description = "Manual refund required. " + preview(dataString(env, "reason"))
		msg.Color = colorCritical
		msg.Fields = []MessageField{slot, {Name: "Address", Value: dataString(env, "address"), Inline: false}}
	case events.KindWithdrawal:
		msg.Title = fmt.Sprintf("%s withdrew", agent)
		msg.Description = preview(dataString(env, "reason"))
		msg.Color = colorWarn
		msg.Fields = []MessageField{slot, {Name: "Refunded", Value: amount, Inline: true}}
	case events.KindAgentSkipped:
		msg.Title = fmt.Sprintf("%s skipped", agent)
		msg.Description = preview(dataString(env, "reason"))
		msg.Color = colorWarn
		msg.Fields = []MessageField{slot}
	case events.KindAuctionEnded:
		winner := fallback(dataString(env, "winner"), "no winner")
		msg.Title = fmt.Sprintf("Auction ended: %s", env.SlotID)
		msg.Description = fmt.Sprintf("Winner: %s at %s", winner, amount)
		msg.Color = colorEnded
		msg.Fields = []MessageField{slot, {Name: "Reason", Value: dataString(env, "reason"), Inline: true}}
	case events.KindReflection:
		msg.Title = fmt.Sprintf("%s reflects", agent)
		msg.Description = preview(dataString(env, "reflection"))
		msg.Fields = []MessageField{slot}
	case events.KindAgentStatus:
		msg.Title = fmt.Sprintf("%s: %s", agent, dataString(env, "status"))
		msg.Fields = []MessageField{slot}
	default:
		msg.Title = string(env.Type)
		msg.Fields = []MessageField{slot}
	}
	return msg
}

func dataString(env events.Envelope, key string) string {
	v, ok := env.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= textPreviewLimit {
		return s
	}
	r := []rune(s)
	return string(r[:textPreviewLimit]) + "…"
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
