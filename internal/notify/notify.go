// Package notify delivers outbound notification events (alert triggers, trade
// fills, command rejections) to an external collaborator. The core never
// depends on how notifications are rendered; it only invokes the Notifier.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Event is a single user-visible notification payload.
type Event struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Notify delivers an event. Returns an error if delivery fails.
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the application log. It is the default backend
// when no webhook is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info(event.Title, zap.String("description", event.Description))
	return nil
}
