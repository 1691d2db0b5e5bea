package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embed colours.
const (
	ColorSuccess = 5814783
	ColorDanger  = 15158332
)

// Notification is one human-readable message for the operator's channel.
type Notification struct {
	Title   string
	Message string
	URL     string
	Color   int
}

// Notifier delivers notifications. Delivery problems are reported, never
// fatal.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// WebhookNotifier posts Discord-style embeds. An empty webhook URL makes
// it a no-op.
type WebhookNotifier struct {
	client     *http.Client
	webhookURL string
	footer     string
	now        func() time.Time
}

func NewWebhookNotifier(webhookURL, footer string) *WebhookNotifier {
	return &WebhookNotifier{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		footer:     footer,
		now:        time.Now,
	}
}

func (w *WebhookNotifier) Enabled() bool {
	return w.webhookURL != ""
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Footer      *webhookFooter `json:"footer,omitempty"`
}

type webhookFooter struct {
	Text string `json:"text"`
}

type webhookPayload struct {
	Embeds []webhookEmbed `json:"embeds"`
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	if !w.Enabled() {
		return nil
	}

	embed := webhookEmbed{
		Title:       n.Title,
		Description: n.Message,
		URL:         n.URL,
		Color:       n.Color,
		Timestamp:   w.now().Format(time.RFC3339),
	}
	if w.footer != "" {
		embed.Footer = &webhookFooter{Text: w.footer}
	}

	body, err := json.Marshal(webhookPayload{Embeds: []webhookEmbed{embed}})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification rejected: HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
