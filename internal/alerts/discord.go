package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DiscordSender sends alerts to Discord via webhook
type DiscordSender struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscordSender creates a new Discord sender
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send sends the alert to Discord
func (s *DiscordSender) Send(ctx context.Context, payload *AlertPayload) error {
	webhookPayload := map[string]interface{}{
		"embeds": []interface{}{buildEmbed(payload)},
	}

	body, err := json.Marshal(webhookPayload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

func buildEmbed(payload *AlertPayload) map[string]interface{} {
	title := "🐋 New whale consensus"
	color := 0x0099FF // Blue
	if payload.Severity == SeverityAlert {
		title = "🚨 Elite whale consensus"
		color = 0xFF0000 // Red
	}

	description := fmt.Sprintf("**%d wallets** on **%s %s** @ **%.2f**\nAlpha **%d/100** • suggested **$%.2f** (%s)",
		payload.WalletCount,
		payload.Direction,
		truncate(payload.OutcomeLabel, 120),
		payload.CurrentPrice,
		payload.AlphaScore,
		payload.RecommendedSize,
		payload.Strategy,
	)

	fields := []map[string]interface{}{
		{"name": "Market", "value": truncate(payload.MarketName, 100), "inline": true},
		{"name": "Category", "value": payload.Category, "inline": true},
		{"name": "Avg Entry", "value": fmt.Sprintf("%.3f", payload.AvgEntryPrice), "inline": true},
		{"name": "Whale Quality", "value": fmt.Sprintf("%d/100", payload.WeightedScore), "inline": true},
		{"name": "Wallets", "value": truncate(contributorsText(payload, "\n"), 1000), "inline": false},
	}

	footer := map[string]interface{}{
		"text": fmt.Sprintf("Whale Consensus • %s • %s", payload.Environment, payload.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC")),
	}

	return map[string]interface{}{
		"title":       title,
		"url":         payload.MarketURL,
		"description": description,
		"color":       color,
		"fields":      fields,
		"footer":      footer,
		"timestamp":   payload.Timestamp.Format(time.RFC3339),
	}
}
