package notify

import (
	"strings"

	"adspot-auction/internal/events"
)

type Router struct{}

func (r Router) MatchTargets(targets []Target, env events.Envelope) []Target {
	if len(targets) == 0 {
		return nil
	}
	out := make([]Target, 0, len(targets))
	for _, target := range targets {
		if !target.Enabled {
			continue
		}
		if target.SlotID != "" && target.SlotID != env.SlotID {
			continue
		}
		if !eventAllowed(target.EventAllowlist, string(env.Type)) {
			continue
		}
		out = append(out, target)
	}
	return out
}

func eventAllowed(allowlist []string, evType string) bool {
	if len(allowlist) == 0 {
		return true
	}
	evType = strings.ToLower(strings.TrimSpace(evType))
	for _, v := range allowlist {
		if v != "" && strings.ToLower(strings.TrimSpace(v)) == evType {
			return true
		}
	}
	return false
}
