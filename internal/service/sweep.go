package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
)

// SweepExpired deletes up to limit claims whose payment window has closed
// and tells their users. It returns how many it removed.
func (s *BookingService) SweepExpired(ctx context.Context, limit int) (_ int, err error) {
	ctx, span := s.startSpan(ctx, "booking.sweep")
	defer func() { endSpan(span, err) }()

	gone, err := retry(ctx, func() ([]model.Booking, error) {
		return s.bookings.SweepExpired(ctx, s.now(), limit)
	})
	if err != nil {
		return 0, storeErr(err, "booking")
	}
	span.SetAttributes(attribute.Int("booking.expired", len(gone)))

	owners := map[string]string{}
	for i := range gone {
		b := &gone[i]
		owner, ok := owners[b.VenueID]
		if !ok {
			owner = s.venueOwner(ctx, b.VenueID)
			owners[b.VenueID] = owner
		}
		s.notify.Send(ctx, notify.Event{
			Type:    notify.BookingExpired,
			Message: fmt.Sprintf("Your reservation for %s expired because payment was not completed in time.", slotText(b)),
			Meta:    bookingMeta(b),
		}, b.UserID)
		s.notify.Send(ctx, notify.Event{
			Type:    notify.BookingExpired,
			Message: fmt.Sprintf("Unpaid reservation %s for %s expired and was released.", b.ID, slotText(b)),
			Meta:    bookingMeta(b),
		}, owner)
	}
	if len(gone) > 0 {
		s.log.Info("expired reservations swept", "count", len(gone))
	}
	return len(gone), nil
}
