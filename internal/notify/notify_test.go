package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type recorder struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (r *recorder) Notify(ctx context.Context, userID string, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	r.users = append(r.users, userID)
	return r.err
}

func TestDispatcherSwallowsErrorsAndDedups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	rec := &recorder{err: errors.New("socket closed")}
	d := NewDispatcher(rec, log, 0)

	d.Send(context.Background(), Event{Type: BookingCreated}, "u1", "", "owner", "u1")

	if strings.Join(rec.users, ",") != "u1,owner" {
		t.Fatalf("delivered to %v", rec.users)
	}
	if !strings.Contains(buf.String(), "notification failed") {
		t.Fatalf("failure not logged: %s", buf.String())
	}
}

func TestDispatcherIgnoresCallerCancellation(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Send(ctx, Event{Type: BookingExpired}, "u1")

	if len(rec.users) != 1 {
		t.Fatal("cancelled request context suppressed notification")
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}
	err := Multi{bad, ok}.Notify(context.Background(), "u1", Event{Type: BookingLost})
	if err == nil || len(ok.users) != 1 {
		t.Fatalf("err=%v delivered=%v", err, ok.users)
	}
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func TestAMQPPublishesJSON(t *testing.T) {
	ch := &fakeChannel{}
	a := &AMQP{ch: ch, exchange: "booking.exchange"}

	err := a.Notify(context.Background(), "u1", Event{
		Type: BookingConfirmed, Message: "confirmed", Meta: map[string]any{"booking_id": "b1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ch.exchange != "booking.exchange" || ch.key != "booking.booking_confirmed" {
		t.Fatalf("published to %s/%s", ch.exchange, ch.key)
	}
	var m message
	if err := json.Unmarshal(ch.msg.Body, &m); err != nil {
		t.Fatal(err)
	}
	if m.UserID != "u1" || m.Type != BookingConfirmed || m.Meta["booking_id"] != "b1" {
		t.Fatalf("body = %+v", m)
	}
	if ch.msg.ContentType != "application/json" {
		t.Fatalf("content type = %q", ch.msg.ContentType)
	}
}
