package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"kalshi-edge/internal/ports"
)

// Slack message text is truncated past this length.
const slackMaxMessageLen = 3500

// Slack implements ports.AlertChannel over an incoming webhook.
// Delivery failures are logged and reported, never fatal.
type Slack struct {
	http       *http.Client
	webhookURL string
	logger     *slog.Logger
}

var _ ports.AlertChannel = (*Slack)(nil)

// NewSlack builds a webhook alert channel. An empty URL disables
// delivery: Deliver reports failure without sending.
func NewSlack(webhookURL string, logger *slog.Logger) *Slack {
	return &Slack{
		http:       &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// Deliver posts the message to the webhook. Long messages are truncated
// to stay under the webhook's payload limit.
func (s *Slack) Deliver(ctx context.Context, level, title, message string) bool {
	if s.webhookURL == "" {
		return false
	}

	icon := ":information_source:"
	switch level {
	case "warning":
		icon = ":warning:"
	case "error":
		icon = ":rotating_light:"
	}

	if len(message) > slackMaxMessageLen {
		message = message[:slackMaxMessageLen] + "\n… (truncated)"
	}
	text := fmt.Sprintf("%s *%s*\n```%s```", icon, title, message)

	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		s.logger.Warn("slack payload marshal failed", "err", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("slack request build failed", "err", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Warn("slack delivery failed", "err", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		s.logger.Warn("slack delivery rejected",
			"status", resp.StatusCode, "body", string(respBody))
		return false
	}
	return true
}
