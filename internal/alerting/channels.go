package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// LogChannel writes notifications to the structured log. Always succeeds.
type LogChannel struct {
	Logger *slog.Logger
}

func (c *LogChannel) Send(ctx context.Context, message string, cfg ChannelConfig) error {
	c.Logger.Info("alert notification", slog.String("message", message))
	return nil
}

// WebhookChannel posts the rendered message as JSON to cfg.Target.
type WebhookChannel struct {
	Client *http.Client
}

func NewWebhookChannel() *WebhookChannel {
	return &WebhookChannel{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *WebhookChannel) Send(ctx context.Context, message string, cfg ChannelConfig) error {
	if cfg.Target == "" {
		return fmt.Errorf("webhook target required")
	}
	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NATSChannel publishes notifications on the event bus. Target overrides the
// subject when set.
type NATSChannel struct {
	Publisher EventPublisher
}

func (c *NATSChannel) Send(ctx context.Context, message string, cfg ChannelConfig) error {
	subject := cfg.Target
	if subject == "" {
		subject = "alert.notification"
	}
	return c.Publisher.Publish(subject, map[string]string{"text": message})
}
