package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"traffic-monitor/backend/models"
	"traffic-monitor/backend/system"
)

// WebhookService posts alert notifications to a Discord webhook
type WebhookService struct {
	webhookURL string
	client     *http.Client
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents a footer in a Discord embed
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordWebhookPayload represents a Discord webhook message
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// Discord color constants
const (
	ColorRed    = 0xFF0000
	ColorOrange = 0xFFAA00
	ColorGreen  = 0x00FF00
	ColorBlue   = 0x00AAFF
)

// NewWebhookService creates a WebhookService for url
func NewWebhookService(url string) *WebhookService {
	return &WebhookService{
		webhookURL: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns whether a webhook URL is configured
func (w *WebhookService) IsEnabled() bool {
	return w.webhookURL != ""
}

func (w *WebhookService) Name() string {
	return "discord"
}

// Notify sends an alert embed to Discord
func (w *WebhookService) Notify(ctx context.Context, alert *models.Alert) error {
	if !w.IsEnabled() {
		return nil
	}

	color := ColorBlue
	switch alert.Severity {
	case models.SeverityWarning:
		color = ColorOrange
	case models.SeverityCritical:
		color = ColorRed
	}

	embed := DiscordEmbed{
		Title:       fmt.Sprintf("🚨 Alert: %s", alert.AlertType),
		Description: alert.Description,
		Color:       color,
		Fields: []DiscordEmbedField{
			{Name: "Source", Value: fmt.Sprintf("`%s`", alert.SourceIP), Inline: true},
			{Name: "Severity", Value: alert.Severity, Inline: true},
			{Name: "Category", Value: alert.Category, Inline: true},
			{Name: "Alert ID", Value: fmt.Sprintf("%d", alert.ID), Inline: true},
		},
		Footer: &DiscordEmbedFooter{
			Text: "Traffic Monitor",
		},
		Timestamp: alert.Timestamp.UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(ctx, embed)
}

// SendTestAlert posts a sample embed so operators can check the channel
// before a real threshold is crossed.
func (w *WebhookService) SendTestAlert(ctx context.Context) error {
	if !w.IsEnabled() {
		return fmt.Errorf("webhook not configured")
	}

	now := time.Now().UTC()
	return w.sendEmbed(ctx, DiscordEmbed{
		Title:       "Traffic Monitor: test notification",
		Description: "Alerts for high traffic minutes will be delivered here.",
		Color:       ColorGreen,
		Fields: []DiscordEmbedField{
			{Name: "Channel", Value: w.Name(), Inline: true},
			{Name: "Sent", Value: now.Format("2006-01-02 15:04:05") + " UTC", Inline: true},
		},
		Footer:    &DiscordEmbedFooter{Text: "Traffic Monitor"},
		Timestamp: now.Format(time.RFC3339),
	})
}

// sendEmbed sends a Discord embed message
func (w *WebhookService) sendEmbed(ctx context.Context, embed DiscordEmbed) error {
	payload := DiscordWebhookPayload{
		Username: "Traffic Monitor",
		Embeds:   []DiscordEmbed{embed},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned error status: %d", resp.StatusCode)
	}

	system.Debug("Discord webhook sent")
	return nil
}
