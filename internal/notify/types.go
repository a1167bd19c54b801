// Package notify pushes auction events to external observers: generic
// JSON webhooks and Discord channels. Delivery is asynchronous, retried with
// backoff and guarded by a per-target circuit breaker, so a slow observer
// never holds up a bid.
package notify

import (
	"time"

	"adspot-auction/internal/events"
)

const (
	PlatformWebhook = "webhook"
	PlatformDiscord = "discord"
)

type Target struct {
	Platform string `json:"platform"`
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret"`
	// SlotID limits the target to one slot; empty means every slot.
	SlotID         string   `json:"slot_id"`
	EventAllowlist []string `json:"event_allowlist"`
	Enabled        bool     `json:"enabled"`
}

type Config struct {
	Enabled             bool
	Targets             []Target
	Workers             int
	RetryMax            int
	RetryBase           time.Duration
	FailureThreshold    int
	CircuitOpenDuration time.Duration
	RequestTimeout      time.Duration
	DispatchBuffer      int
}

type MessageField struct {
	Name   string
	Value  string
	Inline bool
}

// Message is the human-readable rendering of an event for chat platforms.
type Message struct {
	Title       string
	Description string
	Color       int
	Timestamp   string
	Footer      string
	Fields      []MessageField
}

type pushJob struct {
	Target   Target
	Envelope events.Envelope
	Message  Message
	Attempt  int
}

func (j pushJob) key() string {
	return targetKey(j.Target)
}

func targetKey(t Target) string {
	return t.Platform + "|" + t.Endpoint + "|" + t.SlotID
}
