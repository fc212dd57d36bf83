// Package alert evaluates user-defined price threshold alerts against the
// latest price and emits a single notification event per trigger.
package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bapu077/quantstream-dashboard/internal/notify"
)

// Type of threshold condition.
type Type string

const (
	// Above fires when the latest price moves strictly above the threshold.
	Above Type = "above"
	// Below fires when the latest price moves strictly below the threshold.
	Below Type = "below"
)

// ErrInvalidType is returned when an alert is created with an unknown condition.
var ErrInvalidType = errors.New("alert type must be \"above\" or \"below\"")

// Alert is a one-shot price threshold watch. Triggered flips exactly once and
// never resets; alerts are never deleted automatically.
type Alert struct {
	ID        string  `json:"id"`
	Type      Type    `json:"type"`
	Threshold float64 `json:"threshold"`
	Triggered bool    `json:"triggered"`
}

// Monitor owns the alert set. It is not safe for concurrent use; the engine
// serializes all calls.
type Monitor struct {
	alerts   []*Alert
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewMonitor creates an empty monitor.
func NewMonitor(notifier notify.Notifier, logger *zap.Logger) *Monitor {
	return &Monitor{
		notifier: notifier,
		logger:   logger.Named("alerts"),
	}
}

// Add registers a new non-triggered alert and returns it.
func (m *Monitor) Add(typ Type, threshold float64) (Alert, error) {
	if typ != Above && typ != Below {
		return Alert{}, ErrInvalidType
	}
	a := &Alert{
		ID:        uuid.NewString(),
		Type:      typ,
		Threshold: threshold,
	}
	m.alerts = append(m.alerts, a)
	m.logger.Info("Alert added",
		zap.String("id", a.ID),
		zap.String("type", string(typ)),
		zap.Float64("threshold", threshold))
	return *a, nil
}

// Evaluate checks every non-triggered alert against the latest price.
// A satisfied condition flips Triggered permanently and emits exactly one
// notification; re-evaluating a triggered alert is a no-op. Equality never
// triggers. Returns the alerts that fired on this call.
func (m *Monitor) Evaluate(ctx context.Context, latestPrice float64) []Alert {
	var fired []Alert
	for _, a := range m.alerts {
		if a.Triggered {
			continue
		}
		conditionMet := (a.Type == Above && latestPrice > a.Threshold) ||
			(a.Type == Below && latestPrice < a.Threshold)
		if !conditionMet {
			continue
		}

		a.Triggered = true
		fired = append(fired, *a)

		event := notify.Event{
			Title: "Price Alert Triggered!",
			Description: fmt.Sprintf("Price crossed %s $%.2f. Current price: $%.2f",
				a.Type, a.Threshold, latestPrice),
		}
		if err := m.notifier.Notify(ctx, event); err != nil {
			m.logger.Warn("Failed to deliver alert notification",
				zap.String("id", a.ID), zap.Error(err))
		}
	}
	return fired
}

// Alerts returns a read-only snapshot of the alert set in creation order.
func (m *Monitor) Alerts() []Alert {
	cp := make([]Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		cp = append(cp, *a)
	}
	return cp
}

// PendingCount returns the number of alerts that have not yet triggered.
func (m *Monitor) PendingCount() int {
	n := 0
	for _, a := range m.alerts {
		if !a.Triggered {
			n++
		}
	}
	return n
}
