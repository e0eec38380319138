// Package delivery sends generated advice to the athlete.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"example.com/runcoach/internal/observability"
)

// Notifier delivers one message and reports whether it was accepted.
// Transport failures are logged by the implementation, never returned.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, subject, body string) bool
}

// Multi fans a message out to every notifier. All notifiers are attempted
// even after a failure.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti constructs a fan-out notifier.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

// Name identifies the notifier.
func (m *Multi) Name() string { return "multi" }

// Notify returns true only when every channel succeeded. With no channels
// configured nothing is delivered and it returns false.
func (m *Multi) Notify(ctx context.Context, subject, body string) bool {
	if len(m.notifiers) == 0 {
		m.logger.Warn("no delivery channels configured")
		return false
	}
	ok := true
	for _, n := range m.notifiers {
		if !n.Notify(ctx, subject, body) {
			m.logger.Warn("delivery channel failed", "channel", n.Name())
			ok = false
		}
	}
	if ok {
		observability.RecordAdviceDelivered(time.Now())
	}
	return ok
}
