// Package notify delivers best-effort booking events to users.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Type names a booking event.
type Type string

const (
	BookingCreated   Type = "booking_created"
	BookingConfirmed Type = "booking_confirmed"
	BookingExpired   Type = "booking_expired"
	BookingCancelled Type = "booking_cancelled"
	BookingLost      Type = "booking_lost"
	BookingJoined    Type = "booking_joined"
	BookingReminder  Type = "booking_reminder"
	PaymentFailed    Type = "payment_failed"
)

// Event is a message addressed to one user.
type Event struct {
	Type    Type           `json:"type"`
	Message string         `json:"message"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// Notifier delivers an event to a user.
type Notifier interface {
	Notify(ctx context.Context, userID string, ev Event) error
}

// Log writes events to a structured logger.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(_ context.Context, userID string, ev Event) error {
	l.Logger.Info("notify", "user_id", userID, "type", ev.Type, "message", ev.Message, "meta", ev.Meta)
	return nil
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID string, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher is the only notification entry point the booking engine uses.
// Delivery runs with its own timeout, detached from the caller's
// cancellation, and failures are logged, never returned.
type Dispatcher struct {
	n       Notifier
	log     *slog.Logger
	timeout time.Duration
}

// NewDispatcher wraps n.
func NewDispatcher(n Notifier, log *slog.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{n: n, log: log, timeout: timeout}
}

// Send delivers ev to each non-empty, distinct user id.
func (d *Dispatcher) Send(ctx context.Context, ev Event, userIDs ...string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := d.n.Notify(ctx, id, ev); err != nil {
			d.log.Warn("notification failed", "user_id", id, "type", ev.Type, "err", err)
		}
	}
}
