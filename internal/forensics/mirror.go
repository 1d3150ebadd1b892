package forensics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"tg-sentinel/internal/platform"
)

// ChatMirror posts audit summaries to a dedicated chat via the platform
// gateway.
type ChatMirror struct {
	gateway platform.Gateway
	chatID  int64
}

func NewChatMirror(gateway platform.Gateway, chatID int64) *ChatMirror {
	return &ChatMirror{gateway: gateway, chatID: chatID}
}

func (m *ChatMirror) Name() string {
	return "audit-chat"
}

func (m *ChatMirror) Send(ctx context.Context, summary string) error {
	_, err := m.gateway.SendMessage(ctx, m.chatID, summary)
	return err
}

// WebhookMirror POSTs audit summaries as JSON to an external collector.
// Transient HTTP failures are retried by the client before being reported.
type WebhookMirror struct {
	url    string
	client *retryablehttp.Client
}

func NewWebhookMirror(url string) *WebhookMirror {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 2
	return &WebhookMirror{url: url, client: client}
}

func (m *WebhookMirror) Name() string {
	return "audit-webhook"
}

type webhookPayload struct {
	Text string `json:"text"`
}

func (m *WebhookMirror) Send(ctx context.Context, summary string) error {
	body, err := json.Marshal(webhookPayload{Text: summary})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting audit webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audit webhook returned status %d", resp.StatusCode)
	}
	return nil
}
