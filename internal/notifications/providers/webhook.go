package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gogoonbuntu/naverworks-message-cron-server-sub001/internal/common/constants"
)

// webhookPayload is accepted by NAVER WORKS incoming webhooks (title/body) and
// Slack-compatible endpoints (text).
type webhookPayload struct {
	Title string      `json:"title,omitempty"`
	Body  webhookBody `json:"body"`
	Text  string      `json:"text"`
}

type webhookBody struct {
	Text string `json:"text"`
}

// WebhookProvider posts messages as JSON to an incoming-webhook URL.
type WebhookProvider struct {
	url    string
	client *http.Client
}

// NewWebhookProvider creates a provider posting to url. A nil client uses one
// with the delivery timeout.
func NewWebhookProvider(url string, client *http.Client) *WebhookProvider {
	if client == nil {
		client = &http.Client{Timeout: constants.DeliveryTimeout}
	}
	return &WebhookProvider{url: url, client: client}
}

func (p *WebhookProvider) Name() string { return "webhook" }

func (p *WebhookProvider) Available() bool {
	return strings.HasPrefix(p.url, "http://") || strings.HasPrefix(p.url, "https://")
}

func (p *WebhookProvider) Send(ctx context.Context, message Message) error {
	if !p.Available() {
		return fmt.Errorf("webhook url not configured")
	}
	payload, err := json.Marshal(webhookPayload{
		Title: message.Title,
		Body:  webhookBody{Text: message.Body},
		Text:  message.Body,
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, constants.DeliveryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
