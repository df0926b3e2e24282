package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/repository"
)

func TestDurationBoundaries(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		minutes int
		ok      bool
	}{
		{29, false}, {30, true}, {31, false}, {45, true}, {60, true},
		{90, true}, {120, true}, {121, false}, {135, false}, {0, false}, {-30, false},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprint(tc.minutes), func(t *testing.T) {
			start := model.Clock(8*60 + i*60)
			end := start + model.Clock(tc.minutes)
			req := model.CreateReservationRequest{
				VenueID: h.venue.ID, Date: day, Start: &start, End: &end,
				Mode: model.ModeFull, TeamA: flag(true), TeamB: flag(true),
			}
			_, err := h.svc.CreateReservation(context.Background(), user(fmt.Sprintf("dur-%d", i)), req)
			if tc.ok && err != nil {
				t.Fatalf("%d minutes rejected: %v", tc.minutes, err)
			}
			if !tc.ok {
				wantKind(t, err, apperr.Validation)
			}
		})
	}
}

func TestFirstReservationIsPendingWithDeadline(t *testing.T) {
	h := newHarness(t)

	b := h.reserve(t, "alice", "10:00", "11:00")

	if b.Status != model.StatusPending || b.IsPaid || b.PaymentStatus != model.PaymentPending {
		t.Fatalf("new booking state = %s/%v/%s", b.Status, b.IsPaid, b.PaymentStatus)
	}
	if b.PaymentDeadline == nil || !b.PaymentDeadline.Equal(t0.Add(15*time.Minute)) {
		t.Fatalf("deadline = %v, want %v", b.PaymentDeadline, t0.Add(15*time.Minute))
	}
	if len(b.Competitors) != 0 {
		t.Fatalf("competitors = %v, want none", b.Competitors)
	}
	if b.Price != 1200 {
		t.Fatalf("price = %d, want 1200", b.Price)
	}
	if h.inbox.count("alice", notify.BookingCreated) != 1 || h.inbox.count(owner, notify.BookingCreated) != 1 {
		t.Fatalf("created notifications = %+v", h.inbox.sent)
	}
}

func TestOverlappingClaimsAreLinkedBothWays(t *testing.T) {
	h := newHarness(t)

	a := h.reserve(t, "alice", "10:00", "11:00")
	b := h.reserve(t, "bob", "10:30", "11:30")
	c := h.reserve(t, "carol", "11:00", "12:00") // touches a, overlaps b

	if len(b.Competitors) != 1 || b.Competitors[0] != a.ID {
		t.Fatalf("b competitors = %v, want [%s]", b.Competitors, a.ID)
	}
	if got := h.get(t, a.ID).Competitors; len(got) != 1 || got[0] != b.ID {
		t.Fatalf("a competitors = %v, want [%s]", got, b.ID)
	}
	if len(c.Competitors) != 1 || c.Competitors[0] != b.ID {
		t.Fatalf("c competitors = %v, want [%s]", c.Competitors, b.ID)
	}
	if got := h.get(t, b.ID).Competitors; len(got) != 2 {
		t.Fatalf("b competitors after c = %v, want two", got)
	}
}

func TestReservationRejectsOccupiedSlot(t *testing.T) {
	h := newHarness(t)
	a := h.reserve(t, "alice", "10:00", "11:00")
	h.settle(t, a)

	_, err := h.svc.CreateReservation(context.Background(), user("bob"), fullReq(h.venue.ID, day, "10:30", "11:30"))
	wantKind(t, err, apperr.Conflict)

	// Adjacent slots do not overlap.
	h.reserve(t, "bob", "11:00", "12:00")
}

func TestReservationRejectsUserDoubleBooking(t *testing.T) {
	h := newHarness(t)
	other := h.addVenue(t, "owner-2")
	a := h.reserve(t, "alice", "10:00", "11:00")
	h.settle(t, a)

	_, err := h.svc.CreateReservation(context.Background(), user("alice"), fullReq(other.ID, day, "10:30", "11:30"))
	wantKind(t, err, apperr.Conflict)
}

func TestPendingCap(t *testing.T) {
	h := newHarness(t)
	for _, s := range []string{"08:00", "10:00", "12:00"} {
		c := *clk(s) + 60
		h.reserve(t, "alice", s, c.String())
	}

	_, err := h.svc.CreateReservation(context.Background(), user("alice"), fullReq(h.venue.ID, day, "16:00", "17:00"))
	wantKind(t, err, apperr.Conflict)

	// Once a claim expires it no longer counts.
	h.clock.Advance(16 * time.Minute)
	if _, err := h.svc.CreateReservation(context.Background(), user("alice"), fullReq(h.venue.ID, day, "16:00", "17:00")); err != nil {
		t.Fatalf("reservation after expiry: %v", err)
	}
}

func TestReservationValidation(t *testing.T) {
	h := newHarness(t)
	inactive := h.addVenue(t, "owner-3")
	inactive.IsActive = false
	_ = h.store.Create(context.Background(), inactive)

	partial := fullReq(h.venue.ID, day, "10:00", "11:00")
	partial.Mode = model.ModePartial
	fullMissingB := fullReq(h.venue.ID, day, "10:00", "11:00")
	fullMissingB.TeamB = flag(false)
	noFlags := fullReq(h.venue.ID, day, "10:00", "11:00")
	noFlags.TeamA = nil

	cases := []struct {
		name string
		req  model.CreateReservationRequest
		kind apperr.Kind
	}{
		{"past slot", fullReq(h.venue.ID, "2026-03-01", "10:00", "11:00"), apperr.Validation},
		{"earlier today", fullReq(h.venue.ID, "2026-03-02", "07:00", "08:00"), apperr.Validation},
		{"closure date", fullReq(h.venue.ID, "2026-03-05", "10:00", "11:00"), apperr.Validation},
		{"before opening", fullReq(h.venue.ID, day, "05:30", "06:30"), apperr.Validation},
		{"after closing", fullReq(h.venue.ID, day, "21:30", "22:30"), apperr.Validation},
		{"holiday window", fullReq(h.venue.ID, holiDay, "08:00", "09:00"), apperr.Validation},
		{"partial with team b", partial, apperr.Validation},
		{"full without team b", fullMissingB, apperr.Validation},
		{"missing team flag", noFlags, apperr.Validation},
		{"bad date", fullReq(h.venue.ID, "04-03-2026", "10:00", "11:00"), apperr.Validation},
		{"unknown venue", fullReq("7f1d2a52-9a55-4d8c-8a8e-7fb0c3f0a111", day, "10:00", "11:00"), apperr.NotFound},
		{"malformed venue id", fullReq("nope", day, "10:00", "11:00"), apperr.NotFound},
		{"inactive venue", fullReq(inactive.ID, day, "10:00", "11:00"), apperr.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.CreateReservation(context.Background(), user("alice"), tc.req)
			wantKind(t, err, tc.kind)
		})
	}

	// Weekend hours run later than weekday hours.
	if _, err := h.svc.CreateReservation(context.Background(), user("alice"), fullReq(h.venue.ID, "2026-03-07", "21:30", "22:30")); err != nil {
		t.Fatalf("weekend late slot: %v", err)
	}
}

func TestCashReservationCancelsPendingClaims(t *testing.T) {
	h := newHarness(t)
	a := h.reserve(t, "alice", "10:00", "11:00")
	ctx := context.Background()
	req := model.CreateCashReservationRequest{
		CreateReservationRequest: fullReq(h.venue.ID, day, "10:30", "11:30"),
		CustomerID:               "walk-in",
	}

	_, err := h.svc.CreateCashReservation(ctx, user("mallory"), req)
	wantKind(t, err, apperr.Forbidden)

	b, err := h.svc.CreateCashReservation(ctx, model.Actor{UserID: owner, Role: model.RoleOwner}, req)
	if err != nil {
		t.Fatalf("cash reservation: %v", err)
	}
	if !b.IsPaid || b.Status != model.StatusConfirmed || b.PaymentMethod != model.MethodCash || b.UserID != "walk-in" {
		t.Fatalf("cash booking = %+v", b)
	}
	if got := h.get(t, a.ID); got.Status != model.StatusCancelled {
		t.Fatalf("pending claim status = %s, want cancelled", got.Status)
	}
	if h.inbox.count("alice", notify.BookingLost) != 1 {
		t.Fatal("losing claimant was not notified")
	}
	ps, _ := h.store.PaymentsFor(ctx, b.ID)
	if len(ps) != 1 || ps[0].Method != model.MethodCash || ps[0].Amount != b.Price {
		t.Fatalf("cash ledger = %+v", ps)
	}

	_, err = h.svc.CreateCashReservation(ctx, admin("root"), req)
	wantKind(t, err, apperr.Conflict)
}

// serializationStore fails the first reservation with a serialization error
// after letting the clock move on, as a slow contended transaction would.
type serializationStore struct {
	*memStore
	clock    *testClock
	stall    time.Duration
	attempts []time.Time
}

func (s *serializationStore) Reserve(ctx context.Context, p repository.ReserveParams) (*repository.ReserveResult, error) {
	s.attempts = append(s.attempts, p.Now)
	if len(s.attempts) == 1 {
		s.clock.Advance(s.stall)
		return nil, &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
	}
	return s.memStore.Reserve(ctx, p)
}

func TestReservationRetryReadsClockAgain(t *testing.T) {
	h := newHarness(t)
	a := h.reserve(t, "alice", "10:00", "11:00")
	h.clock.Advance(14 * time.Minute)

	st := &serializationStore{memStore: h.store, clock: h.clock, stall: 2 * time.Minute}
	h.svc.bookings = st

	b, err := h.svc.CreateReservation(context.Background(), user("bob"), fullReq(h.venue.ID, day, "10:30", "11:30"))
	if err != nil {
		t.Fatalf("reserve after a serialization failure: %v", err)
	}
	if len(st.attempts) != 2 || !st.attempts[1].After(st.attempts[0]) {
		t.Fatalf("attempt clocks = %v, want a later clock on retry", st.attempts)
	}
	// alice's claim lapsed while the first attempt stalled.
	if len(b.Competitors) != 0 {
		t.Fatalf("competitors = %v, want none", b.Competitors)
	}
	if len(h.get(t, a.ID).Competitors) != 0 {
		t.Fatal("expired claim was linked to a new reservation")
	}
	want := st.attempts[1].Add(15 * time.Minute)
	if b.PaymentDeadline == nil || !b.PaymentDeadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", b.PaymentDeadline, want)
	}
}
