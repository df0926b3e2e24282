package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/holiday"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/payment"
)

// Monday. Reservations in tests are for Wednesday 2026-03-04.
var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

const (
	day     = "2026-03-04"
	holiDay = "2026-03-06"
	owner   = "owner-1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	mu      sync.Mutex
	status  payment.Status
	amount  int64
	err     error
	delay   time.Duration
	lookups int
	// refs, when set, are handed out by Initiate in order.
	refs []string
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) Initiate(_ context.Context, in payment.InitiateRequest) (payment.Initiation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return payment.Initiation{}, g.err
	}
	ref := "ref-" + in.OrderID
	if len(g.refs) > 0 {
		ref, g.refs = g.refs[0], g.refs[1:]
	}
	return payment.Initiation{TransactionRef: ref, RedirectURL: "https://pay.test/" + ref}, nil
}

func (g *fakeGateway) Lookup(ctx context.Context, ref string) (payment.Lookup, error) {
	g.mu.Lock()
	g.lookups++
	status, amount, err, delay := g.status, g.amount, g.err, g.delay
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return payment.Lookup{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return payment.Lookup{}, err
	}
	return payment.Lookup{Ref: ref, Status: status, Amount: amount, TransactionID: "txn-" + ref}, nil
}

type sent struct {
	user string
	typ  notify.Type
}

type inbox struct {
	mu   sync.Mutex
	sent []sent
}

func (in *inbox) Notify(_ context.Context, userID string, ev notify.Event) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.sent = append(in.sent, sent{userID, ev.Type})
	return nil
}

func (in *inbox) count(user string, typ notify.Type) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for _, s := range in.sent {
		if s.user == user && s.typ == typ {
			n++
		}
	}
	return n
}

type harness struct {
	svc   *BookingService
	store *memStore
	gw    *fakeGateway
	inbox *inbox
	clock *testClock
	venue *model.Venue
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newMemStore(),
		gw:    &fakeGateway{status: payment.StatusCompleted},
		inbox: &inbox{},
		clock: &testClock{now: t0},
	}
	hol, err := holiday.NewStatic([]string{holiDay})
	if err != nil {
		t.Fatal(err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.svc = NewBookingService(h.store, h.store.venueStore(), hol, h.gw,
		notify.NewDispatcher(h.inbox, log, time.Second), log, Options{
			PaymentWindow:  15 * time.Minute,
			MaxPending:     3,
			PaymentTimeout: 50 * time.Millisecond,
			Now:            h.clock.Now,
		})
	h.venue = h.addVenue(t, owner)
	return h
}

func (h *harness) addVenue(t *testing.T, ownerID string) *model.Venue {
	t.Helper()
	v := &model.Venue{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Name:    "Arena " + ownerID,
		Hours: model.OperatingHours{
			Weekday: model.Window{Open: 6 * 60, Close: 22 * 60},
			Weekend: model.Window{Open: 7 * 60, Close: 23 * 60},
			Holiday: model.Window{Open: 9 * 60, Close: 20 * 60},
		},
		Pricing:  model.Pricing{BasePrice: 1200},
		Closures: []string{"2026-03-05"},
		IsActive: true,
	}
	if err := h.store.Create(context.Background(), v); err != nil {
		t.Fatal(err)
	}
	return v
}

func user(id string) model.Actor  { return model.Actor{UserID: id, Role: model.RoleUser} }
func admin(id string) model.Actor { return model.Actor{UserID: id, Role: model.RoleAdmin} }

func clk(s string) *model.Clock {
	c, err := model.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return &c
}

func flag(b bool) *bool { return &b }

func fullReq(venueID, date, start, end string) model.CreateReservationRequest {
	return model.CreateReservationRequest{
		VenueID: venueID,
		Date:    date,
		Start:   clk(start),
		End:     clk(end),
		Mode:    model.ModeFull,
		TeamA:   flag(true),
		TeamB:   flag(true),
	}
}

func (h *harness) reserve(t *testing.T, who, start, end string) *model.Booking {
	t.Helper()
	b, err := h.svc.CreateReservation(context.Background(), user(who), fullReq(h.venue.ID, day, start, end))
	if err != nil {
		t.Fatalf("reserve %s %s-%s: %v", who, start, end, err)
	}
	return b
}

func (h *harness) initiate(t *testing.T, b *model.Booking) string {
	t.Helper()
	started, err := h.svc.InitiatePayment(context.Background(), user(b.UserID), b.ID, "")
	if err != nil {
		t.Fatalf("initiate %s: %v", b.ID, err)
	}
	return started.TransactionRef
}

func (h *harness) settle(t *testing.T, b *model.Booking) *model.Booking {
	t.Helper()
	ref := h.initiate(t, b)
	won, err := h.svc.VerifySettlement(context.Background(), user(b.UserID), b.ID, ref)
	if err != nil {
		t.Fatalf("settle %s: %v", b.ID, err)
	}
	return won
}

func (h *harness) get(t *testing.T, id string) *model.Booking {
	t.Helper()
	b, err := h.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return b
}

func wantKind(t *testing.T, err error, k apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", k)
	}
	if got := apperr.KindOf(err); got != k {
		t.Fatalf("error kind = %s (%v), want %s", got, err, k)
	}
}
