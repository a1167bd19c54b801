package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"adspot-auction/internal/httpclient"
)

const SignatureHeader = "X-Auction-Signature"

type Adapter interface {
	Name() string
	Send(ctx context.Context, target Target, job pushJob) error
}

// WebhookAdapter posts the raw event envelope. When the target has a
// secret, the body is signed with HMAC-SHA256.
type WebhookAdapter struct {
	client *httpclient.Client
}

func NewWebhookAdapter(client *httpclient.Client) *WebhookAdapter {
	return &WebhookAdapter{client: client}
}

func (a *WebhookAdapter) Name() string { return PlatformWebhook }

func (a *WebhookAdapter) Send(ctx context.Context, target Target, job pushJob) error {
	body, err := json.Marshal(job.Envelope)
	if err != nil {
		return err
	}
	headers := map[string]string{}
	if target.Secret != "" {
		headers[SignatureHeader] = Sign(target.Secret, body)
	}
	return a.client.PostJSON(ctx, target.Endpoint, headers, json.RawMessage(body))
}

// Sign returns "sha256=" followed by the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type DiscordAdapter struct {
	client *httpclient.Client
}

func NewDiscordAdapter(client *httpclient.Client) *DiscordAdapter {
	return &DiscordAdapter{client: client}
}

func (a *DiscordAdapter) Name() string { return PlatformDiscord }

func (a *DiscordAdapter) Send(ctx context.Context, target Target, job pushJob) error {
	type embedField struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Inline bool   `json:"inline"`
	}
	msg := job.Message
	fields := make([]embedField, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, embedField{Name: f.Name, Value: fallback(f.Value, "-"), Inline: f.Inline})
	}
	embed := map[string]any{
		"title":       msg.Title,
		"description": msg.Description,
		"fields":      fields,
		"color":       msg.Color,
	}
	if msg.Timestamp != "" {
		embed["timestamp"] = msg.Timestamp
	}
	if msg.Footer != "" {
		embed["footer"] = map[string]string{"text": msg.Footer}
	}
	payload := map[string]any{
		"embeds": []map[string]any{embed},
	}
	return a.client.PostJSON(ctx, target.Endpoint, nil, payload)
}
