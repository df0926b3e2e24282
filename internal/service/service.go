// Package service implements the booking engine: reservation, settlement,
// competing-claim resolution, expiry and the read-side queries. Storage and
// external collaborators are injected.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/database"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/holiday"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/payment"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/repository"
)

// BookingStore is the persistence the engine needs for bookings.
type BookingStore interface {
	Reserve(ctx context.Context, p repository.ReserveParams) (*repository.ReserveResult, error)
	Settle(ctx context.Context, p repository.SettleParams) (*repository.SettleResult, error)
	Join(ctx context.Context, p repository.JoinParams) (*repository.JoinResult, error)
	Cancel(ctx context.Context, id, reason string, now time.Time, guard func(*model.Booking) error) (*model.Booking, error)
	SettleGroup(ctx context.Context, p repository.SettleGroupParams) (*repository.SettleGroupResult, error)
	MarkPaymentFailed(ctx context.Context, id string) error
	AttachGatewayRef(ctx context.Context, ref string, bookingIDs []string) error
	GatewayRefOwners(ctx context.Context, ref string) ([]string, error)
	SweepExpired(ctx context.Context, now time.Time, limit int) ([]model.Booking, error)

	GetByID(ctx context.Context, id string) (*model.Booking, error)
	ListOccupied(ctx context.Context, venueID, date string) ([]model.Booking, error)
	ListByUser(ctx context.Context, userID string) ([]model.Booking, error)
	List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	ListGroup(ctx context.Context, groupID string) ([]model.Booking, error)
	PaymentsFor(ctx context.Context, bookingID string) ([]model.Payment, error)
}

// VenueStore is the persistence the engine needs for venues.
type VenueStore interface {
	Create(ctx context.Context, v *model.Venue) error
	GetByID(ctx context.Context, id string) (*model.Venue, error)
}

// Options are the booking policy knobs.
type Options struct {
	Location       *time.Location
	PaymentWindow  time.Duration
	MaxPending     int
	MaxBulkDays    int
	PaymentTimeout time.Duration
	Currency       string
	ReturnURL      string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

const (
	minDuration  = 30
	maxDuration  = 120
	durationStep = 15

	loseReason = "slot won by another payment"
)

// BookingService orchestrates booking operations.
type BookingService struct {
	bookings BookingStore
	venues   VenueStore
	holidays holiday.Oracle
	gateway  payment.Gateway
	notify   *notify.Dispatcher
	log      *slog.Logger
	tracer   trace.Tracer
	opts     Options
}

// NewBookingService constructs a BookingService with its dependencies.
func NewBookingService(
	bookings BookingStore,
	venues VenueStore,
	holidays holiday.Oracle,
	gateway payment.Gateway,
	dispatcher *notify.Dispatcher,
	log *slog.Logger,
	opts Options,
) *BookingService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PaymentWindow <= 0 {
		opts.PaymentWindow = 15 * time.Minute
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 3
	}
	if opts.MaxBulkDays <= 0 {
		opts.MaxBulkDays = 30
	}
	if opts.PaymentTimeout <= 0 {
		opts.PaymentTimeout = 10 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "NPR"
	}
	return &BookingService{
		bookings: bookings,
		venues:   venues,
		holidays: holidays,
		gateway:  gateway,
		notify:   dispatcher,
		log:      log,
		tracer:   otel.Tracer("github.com/Shivanand-hulikatti/futsal-booking/internal/service"),
		opts:     opts,
	}
}

func (s *BookingService) now() time.Time { return s.opts.Now().UTC() }

func (s *BookingService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}

// storeErr translates repository errors into the error taxonomy. what names
// the missing entity for ErrNotFound.
func storeErr(err error, what string) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFoundf("%s not found", what)
	case errors.Is(err, repository.ErrStaleState):
		return apperr.Wrap(apperr.Conflict, err, "booking was changed by another request, reload and retry")
	case database.IsUniqueViolation(err):
		return apperr.Wrap(apperr.Conflict, err, what+" already exists")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return apperr.Wrap(apperr.Consistency, err, "request aborted, nothing was changed")
	default:
		return apperr.Wrap(apperr.Consistency, err, "storage failure, nothing was changed")
	}
}

// retry runs fn again, up to three attempts, while it fails with a
// serialization or deadlock error. Each attempt is a fresh transaction.
func retry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var (
		v   T
		err error
	)
	for attempt := 1; attempt <= 3; attempt++ {
		v, err = fn()
		if err == nil || !database.IsRetryable(err) {
			return v, err
		}
		select {
		case <-ctx.Done():
			return v, err
		case <-time.After(time.Duration(attempt*25) * time.Millisecond):
		}
	}
	return v, err
}

// checkID rejects ids that cannot name a stored row.
func checkID(id, what string) error {
	if id == "" {
		return apperr.Validationf("%s id is required", what)
	}
	if _, err := uuid.Parse(id); err != nil {
		return apperr.NotFoundf("%s not found", what)
	}
	return nil
}

// isHoliday asks the oracle and treats any failure as "not a holiday".
func (s *BookingService) isHoliday(ctx context.Context, date time.Time) bool {
	if s.holidays == nil {
		return false
	}
	ok, err := s.holidays.IsHoliday(ctx, date)
	if err != nil {
		s.log.Warn("holiday lookup failed, assuming working day", "date", date.Format(model.DateLayout), "err", err)
		return false
	}
	return ok
}

// activeVenue loads a venue that exists and is active.
func (s *BookingService) activeVenue(ctx context.Context, id string) (*model.Venue, error) {
	if err := checkID(id, "venue"); err != nil {
		return nil, err
	}
	v, err := s.venues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFoundf("venue not found or inactive")
		}
		return nil, storeErr(err, "venue")
	}
	if !v.IsActive {
		return nil, apperr.NotFoundf("venue not found or inactive")
	}
	return v, nil
}

// venueOwner returns a venue's owner id, or "" when the venue cannot be read.
func (s *BookingService) venueOwner(ctx context.Context, venueID string) string {
	v, err := s.venues.GetByID(ctx, venueID)
	if err != nil {
		s.log.Warn("venue owner lookup failed", "venue_id", venueID, "err", err)
		return ""
	}
	return v.OwnerID
}

func slotText(b *model.Booking) string {
	return fmt.Sprintf("%s %s-%s", b.Date, b.Start, b.End)
}

func bookingMeta(b *model.Booking) map[string]any {
	return map[string]any{"booking_id": b.ID, "venue_id": b.VenueID, "date": b.Date, "start_time": b.Start.String(), "end_time": b.End.String()}
}

// notifyLosers tells every cancelled competitor that the slot went elsewhere.
func (s *BookingService) notifyLosers(ctx context.Context, losers []model.Booking) {
	for i := range losers {
		l := &losers[i]
		s.notify.Send(ctx, notify.Event{
			Type:    notify.BookingLost,
			Message: fmt.Sprintf("Your pending booking for %s was cancelled: %s.", slotText(l), l.CancelReason),
			Meta:    bookingMeta(l),
		}, l.UserID)
	}
}
