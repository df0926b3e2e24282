package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/pricing"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/repository"
)

// slotRequest is a validated reservation intent.
type slotRequest struct {
	venue *model.Venue
	date  time.Time
	b     model.Booking
}

// validateShape checks required fields, mode/team consistency and duration.
// It needs no I/O.
func validateShape(req model.CreateReservationRequest) error {
	switch {
	case req.VenueID == "":
		return apperr.Validationf("venue_id is required")
	case req.Date == "":
		return apperr.Validationf("date is required")
	case req.Start == nil || req.End == nil:
		return apperr.Validationf("start_time and end_time are required")
	case req.Mode == "":
		return apperr.Validationf("booking_type is required")
	case req.TeamA == nil || req.TeamB == nil:
		return apperr.Validationf("team_a and team_b are required")
	}
	if _, err := model.ParseDate(req.Date); err != nil {
		return apperr.Validationf("%v", err)
	}

	switch req.Mode {
	case model.ModeFull:
		if !*req.TeamA || !*req.TeamB {
			return apperr.Validationf("both team_a and team_b must be true for a full booking")
		}
	case model.ModePartial:
		if !*req.TeamA || *req.TeamB {
			return apperr.Validationf("a partial booking needs team_a true and team_b false")
		}
	default:
		return apperr.Validationf("booking_type must be full or partial")
	}

	return validateDuration(*req.Start, *req.End)
}

func validateDuration(start, end model.Clock) error {
	d := int(end - start)
	if d < minDuration || d > maxDuration || d%durationStep != 0 {
		return apperr.Validationf("duration %d minutes is invalid: must be %d-%d minutes in %d-minute steps",
			d, minDuration, maxDuration, durationStep)
	}
	return nil
}

// validateSlot loads the venue and checks it is open for the requested
// window on a future date. It returns the day's holiday flag for pricing.
func (s *BookingService) validateSlot(ctx context.Context, req model.CreateReservationRequest) (*slotRequest, bool, error) {
	if err := validateShape(req); err != nil {
		return nil, false, err
	}
	v, err := s.activeVenue(ctx, req.VenueID)
	if err != nil {
		return nil, false, err
	}
	if err := v.Bookable(); err != nil {
		return nil, false, apperr.Validationf("venue is not bookable: %v", err)
	}

	start, end := *req.Start, *req.End
	startsAt, _ := model.At(req.Date, start, s.opts.Location)
	if startsAt.Before(s.now()) {
		return nil, false, apperr.Validationf("cannot book a slot in the past (%s %s)", req.Date, start)
	}
	if v.ClosedOn(req.Date) {
		return nil, false, apperr.Validationf("venue is closed on %s", req.Date)
	}

	date, _ := model.ParseDate(req.Date)
	hol := s.isHoliday(ctx, date)
	dt := model.DayTypeFor(date, hol)
	w := v.Hours.For(dt)
	if !w.Contains(start, end) {
		return nil, false, apperr.Validationf("%s-%s is outside %s operating hours %s-%s", start, end, dt, w.Open, w.Close)
	}

	return &slotRequest{
		venue: v,
		date:  date,
		b: model.Booking{
			VenueID: v.ID,
			Date:    req.Date,
			Start:   start,
			End:     end,
			Mode:    req.Mode,
			TeamA:   *req.TeamA,
			TeamB:   *req.TeamB,
		},
	}, hol, nil
}

func (s *BookingService) price(v *model.Venue, date time.Time, b *model.Booking, holiday bool, from *model.GeoPoint) int64 {
	hourly := pricing.Quote(v, pricing.QuoteInput{Date: date, Start: b.Start, Holiday: holiday, From: from})
	return pricing.PriceFor(hourly, b.Duration())
}

// checkOccupied rejects the new booking if any occupying booking in snap
// overlaps it, first at the venue and then for the requester anywhere.
func checkOccupied(nb *model.Booking, snap repository.DaySnapshot) error {
	for i := range snap.Venue {
		if o := &snap.Venue[i]; o.Occupies() && o.OverlapsWith(nb) {
			return apperr.Conflictf("time slot %s-%s is already booked", o.Start, o.End)
		}
	}
	for i := range snap.User {
		if o := &snap.User[i]; o.Occupies() && o.OverlapsWith(nb) {
			return apperr.Conflictf("you already have a booking from %s to %s on %s", o.Start, o.End, o.Date)
		}
	}
	return nil
}

// contending returns the ids of claims in snap still competing with nb.
func contending(nb *model.Booking, snap repository.DaySnapshot, now time.Time) []string {
	var out []string
	for i := range snap.Venue {
		o := &snap.Venue[i]
		if o.ID != nb.ID && o.Contending(now) && o.OverlapsWith(nb) {
			out = append(out, o.ID)
		}
	}
	return out
}

// pending stamps nb as a fresh unpaid claim created at now and returns its
// payment deadline.
func (s *BookingService) pending(nb *model.Booking, now time.Time) time.Time {
	deadline := now.Add(s.opts.PaymentWindow)
	nb.Status = model.StatusPending
	nb.PaymentStatus = model.PaymentPending
	nb.PaymentDeadline = &deadline
	nb.CreatedAt, nb.UpdatedAt = now, now
	return deadline
}

// claimPlan decides a pending reservation against a snapshot: the slot must
// be free, the requester under the pending cap, and every live overlapping
// claim becomes a competitor. sameRequest counts claims the current request
// has already made, which do not count against the cap.
func (s *BookingService) claimPlan(nb *model.Booking, now time.Time, sameRequest int) func(repository.DaySnapshot) (repository.ReservePlan, error) {
	return func(snap repository.DaySnapshot) (repository.ReservePlan, error) {
		if err := checkOccupied(nb, snap); err != nil {
			return repository.ReservePlan{}, err
		}
		if others := snap.ActivePending - sameRequest; others >= s.opts.MaxPending {
			return repository.ReservePlan{}, apperr.Conflictf(
				"you already have %d unpaid reservations (max %d); pay or let one expire first",
				others, s.opts.MaxPending)
		}
		return repository.ReservePlan{Competitors: contending(nb, snap, now)}, nil
	}
}

// CreateReservation accepts a tentative claim on a slot. The claim is
// pending and unpaid with a payment deadline, and is linked both ways to
// every other live claim on an overlapping window.
func (s *BookingService) CreateReservation(ctx context.Context, actor model.Actor, req model.CreateReservationRequest) (_ *model.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.create", attribute.String("venue.id", req.VenueID), attribute.String("booking.date", req.Date))
	defer func() { endSpan(span, err) }()

	sr, hol, err := s.validateSlot(ctx, req)
	if err != nil {
		return nil, err
	}

	nb := sr.b
	nb.ID = uuid.New().String()
	nb.UserID = actor.UserID
	nb.Price = s.price(sr.venue, sr.date, &nb, hol, req.From)

	var deadline time.Time
	res, err := retry(ctx, func() (*repository.ReserveResult, error) {
		// fresh clock per attempt; claims that expired meanwhile are not competitors
		now := s.now()
		deadline = s.pending(&nb, now)
		return s.bookings.Reserve(ctx, repository.ReserveParams{
			Booking: &nb,
			Now:     now,
			Plan:    s.claimPlan(&nb, now, 0),
		})
	})
	if err != nil {
		return nil, storeErr(err, "venue")
	}
	b := res.Booking
	span.SetAttributes(attribute.String("booking.id", b.ID), attribute.Int("booking.competitors", len(b.Competitors)))

	s.log.Info("reservation created", "booking_id", b.ID, "venue_id", b.VenueID, "user_id", b.UserID,
		"slot", slotText(b), "price", b.Price, "competitors", len(b.Competitors))
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingCreated,
		Message: fmt.Sprintf("Your booking for %s at %s is reserved. Pay by %s to confirm it.", slotText(b), sr.venue.Name, deadline.In(s.opts.Location).Format("15:04")),
		Meta:    bookingMeta(b),
	}, b.UserID)
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingCreated,
		Message: fmt.Sprintf("New reservation attempt at %s for %s.", sr.venue.Name, slotText(b)),
		Meta:    bookingMeta(b),
	}, sr.venue.OwnerID)
	return b, nil
}

// CreateCashReservation records a booking paid in cash at the venue. It runs
// the same validation as CreateReservation but settles immediately: the
// booking is confirmed and paid, a completed cash payment is recorded, and
// pending claims on the window are cancelled. Only the venue owner or an
// admin may record one.
func (s *BookingService) CreateCashReservation(ctx context.Context, actor model.Actor, req model.CreateCashReservationRequest) (_ *model.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.create_cash", attribute.String("venue.id", req.VenueID), attribute.String("booking.date", req.Date))
	defer func() { endSpan(span, err) }()

	sr, hol, err := s.validateSlot(ctx, req.CreateReservationRequest)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.UserID != sr.venue.OwnerID {
		return nil, apperr.Forbiddenf("only the venue owner can record cash bookings")
	}

	customer := req.CustomerID
	if customer == "" {
		customer = actor.UserID
	}

	nb := sr.b
	nb.ID = uuid.New().String()
	nb.UserID = customer
	nb.Price = s.price(sr.venue, sr.date, &nb, hol, req.From)
	nb.Status = model.StatusConfirmed
	nb.IsPaid = true
	nb.PaymentStatus = model.PaymentPaid
	nb.PaymentMethod = model.MethodCash
	txn := "cash-" + uuid.New().String()

	res, err := retry(ctx, func() (*repository.ReserveResult, error) {
		now := s.now()
		nb.CreatedAt, nb.UpdatedAt = now, now
		return s.bookings.Reserve(ctx, repository.ReserveParams{
			Booking: &nb,
			Payment: &model.Payment{
				ID:            uuid.New().String(),
				BookingID:     nb.ID,
				UserID:        customer,
				VenueID:       nb.VenueID,
				Amount:        nb.Price,
				Currency:      s.opts.Currency,
				TransactionID: txn,
				Status:        model.LedgerCompleted,
				Method:        model.MethodCash,
				PaidAt:        &now,
				CreatedAt:     now,
			},
			Now: now,
			Plan: func(snap repository.DaySnapshot) (repository.ReservePlan, error) {
				if err := checkOccupied(&nb, snap); err != nil {
					return repository.ReservePlan{}, err
				}
				return repository.ReservePlan{
					Cancel:       contending(&nb, snap, now),
					CancelReason: "slot sold at the venue",
				}, nil
			},
		})
	})
	if err != nil {
		return nil, storeErr(err, "venue")
	}
	b := res.Booking
	b.Competitors = []string{}

	s.log.Info("cash reservation recorded", "booking_id", b.ID, "venue_id", b.VenueID, "user_id", b.UserID,
		"slot", slotText(b), "price", b.Price, "cancelled", len(res.Cancelled))
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingConfirmed,
		Message: fmt.Sprintf("Your booking for %s at %s is confirmed (paid in cash).", slotText(b), sr.venue.Name),
		Meta:    bookingMeta(b),
	}, b.UserID, sr.venue.OwnerID)
	s.notifyLosers(ctx, res.Cancelled)
	return b, nil
}
