package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bapu077/quantstream-dashboard/internal/config"
)

// WebhookNotifier POSTs events as JSON to a configured HTTP endpoint.
// Deliveries are paced by a rate limiter so a burst of alert triggers cannot
// flood the receiver.
type WebhookNotifier struct {
	client  *resty.Client
	url     string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// webhookPayload is the wire format sent to the endpoint.
type webhookPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SentAt      string `json:"sent_at"`
}

// NewWebhookNotifier creates a webhook notifier from the notifier config.
func NewWebhookNotifier(cfg *config.Notifier, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &WebhookNotifier{
		client:  client,
		url:     cfg.WebhookURL,
		logger:  logger.Named("webhook"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookPayload{
			Title:       event.Title,
			Description: event.Description,
			SentAt:      time.Now().UTC().Format(time.RFC3339Nano),
		}).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	n.logger.Debug("Notification delivered", zap.String("title", event.Title))
	return nil
}
