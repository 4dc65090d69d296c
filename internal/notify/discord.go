package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// discordLimit is the webhook content length limit.
const discordLimit = 2000

// DiscordSender delivers notifications via a Discord webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string, timeout time.Duration) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
	}
}

// Send posts a message to the Discord webhook. Reports are wrapped in a code
// block so the columns line up.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	content := fmt.Sprintf("**%s**\n```\n%s\n```", title, message)
	if r := []rune(content); len(r) > discordLimit {
		content = string(r[:discordLimit-4]) + "\n```"
	}

	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return Permanent(fmt.Errorf("discord: marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("discord: create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	// Discord returns 204 No Content on success.
	return checkSendStatus("discord", resp)
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
