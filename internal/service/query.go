package service

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/pricing"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Get returns a booking visible to the actor: its owner, the venue owner or
// an admin.
func (s *BookingService) Get(ctx context.Context, actor model.Actor, bookingID string) (*model.Booking, error) {
	if err := checkID(bookingID, "booking"); err != nil {
		return nil, err
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr(err, "booking")
	}
	if b.UserID == actor.UserID || actor.IsAdmin() {
		return b, nil
	}
	if owner := s.venueOwner(ctx, b.VenueID); owner != "" && owner == actor.UserID {
		return b, nil
	}
	// Hide existence from unrelated callers.
	return nil, apperr.NotFoundf("booking not found")
}

// Payments returns the ledger entries of a booking visible to the actor.
func (s *BookingService) Payments(ctx context.Context, actor model.Actor, bookingID string) ([]model.Payment, error) {
	if _, err := s.Get(ctx, actor, bookingID); err != nil {
		return nil, err
	}
	ps, err := s.bookings.PaymentsFor(ctx, bookingID)
	if err != nil {
		return nil, storeErr(err, "booking")
	}
	if ps == nil {
		ps = []model.Payment{}
	}
	return ps, nil
}

// ListMine returns the actor's own bookings.
func (s *BookingService) ListMine(ctx context.Context, actor model.Actor) ([]model.Booking, error) {
	bs, err := s.bookings.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if bs == nil {
		bs = []model.Booking{}
	}
	return bs, nil
}

// ListAll is the admin listing with filters and paging.
func (s *BookingService) ListAll(ctx context.Context, actor model.Actor, f model.BookingFilter) ([]model.Booking, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbiddenf("admin role required")
	}
	if f.Date != "" {
		if _, err := model.ParseDate(f.Date); err != nil {
			return nil, apperr.Validationf("%v", err)
		}
	}
	switch f.Status {
	case "", model.StatusPending, model.StatusConfirmed, model.StatusCancelled:
	default:
		return nil, apperr.Validationf("unknown status %q", f.Status)
	}
	if f.VenueID != "" {
		if err := checkID(f.VenueID, "venue"); err != nil {
			return []model.Booking{}, nil
		}
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	bs, err := s.bookings.List(ctx, f)
	if err != nil {
		return nil, storeErr(err, "booking")
	}
	if bs == nil {
		bs = []model.Booking{}
	}
	return bs, nil
}

// Availability returns the occupied intervals for a venue on a date, with
// the operating window that applies that day. Pending claims are not
// occupied: a slot with only unpaid claims on it is still offered.
func (s *BookingService) Availability(ctx context.Context, venueID, date string) (_ *model.Availability, err error) {
	ctx, span := s.startSpan(ctx, "booking.availability", attribute.String("venue.id", venueID), attribute.String("booking.date", date))
	defer func() { endSpan(span, err) }()

	d, err := model.ParseDate(date)
	if err != nil {
		return nil, apperr.Validationf("%v", err)
	}
	v, err := s.activeVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}

	dt := model.DayTypeFor(d, s.isHoliday(ctx, d))
	out := &model.Availability{
		VenueID:  v.ID,
		Date:     date,
		DayType:  dt,
		Open:     v.Hours.For(dt),
		Closed:   v.ClosedOn(date),
		Occupied: []model.Interval{},
	}

	bs, err := s.bookings.ListOccupied(ctx, v.ID, date)
	if err != nil {
		return nil, storeErr(err, "venue")
	}
	for i := range bs {
		if bs[i].Occupies() {
			out.Occupied = append(out.Occupied, model.Interval{BookingID: bs[i].ID, Start: bs[i].Start, End: bs[i].End})
		}
	}
	sort.Slice(out.Occupied, func(i, j int) bool { return out.Occupied[i].Start < out.Occupied[j].Start })
	return out, nil
}

// Quote prices a slot without reserving it, running the same checks as a
// reservation except the contention ones.
func (s *BookingService) Quote(ctx context.Context, venueID, date string, start, end model.Clock, from *model.GeoPoint) (*model.Quote, error) {
	yes := true
	sr, hol, err := s.validateSlot(ctx, model.CreateReservationRequest{
		VenueID: venueID,
		Date:    date,
		Start:   &start,
		End:     &end,
		Mode:    model.ModeFull,
		TeamA:   &yes,
		TeamB:   &yes,
	})
	if err != nil {
		return nil, err
	}
	hourly := pricing.Quote(sr.venue, pricing.QuoteInput{Date: sr.date, Start: start, Holiday: hol, From: from})
	return &model.Quote{
		VenueID:  sr.venue.ID,
		Date:     date,
		Start:    start,
		End:      end,
		Hourly:   hourly,
		Price:    pricing.PriceFor(hourly, int(end-start)),
		Duration: int(end - start),
	}, nil
}
