package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
)

// SendReminders reminds the players of every confirmed booking on date.
// Bookings made within a day of date are skipped, their confirmation is
// still fresh. It returns how many bookings were reminded.
func (s *BookingService) SendReminders(ctx context.Context, date string) (_ int, err error) {
	ctx, span := s.startSpan(ctx, "booking.remind", attribute.String("booking.date", date))
	defer func() { endSpan(span, err) }()

	dayStart, err := model.At(date, 0, s.opts.Location)
	if err != nil {
		return 0, apperr.Validationf("%v", err)
	}
	cutoff := dayStart.Add(-24 * time.Hour)

	sent := 0
	for offset := 0; ; offset += maxPageSize {
		page, err := s.bookings.List(ctx, model.BookingFilter{
			Date:   date,
			Status: model.StatusConfirmed,
			Limit:  maxPageSize,
			Offset: offset,
		})
		if err != nil {
			return sent, storeErr(err, "booking")
		}
		for i := range page {
			b := &page[i]
			if !b.CreatedAt.Before(cutoff) {
				continue
			}
			s.notify.Send(ctx, notify.Event{
				Type:    notify.BookingReminder,
				Message: fmt.Sprintf("Reminder: you are playing on %s.", slotText(b)),
				Meta:    bookingMeta(b),
			}, b.UserID, b.JoinedBy)
			sent++
		}
		if len(page) < maxPageSize {
			break
		}
	}
	span.SetAttributes(attribute.Int("booking.reminded", sent))
	if sent > 0 {
		s.log.Info("booking reminders sent", "date", date, "count", sent)
	}
	return sent, nil
}
