// Package repository implements all database queries for the booking system.
// It uses pgx directly (no ORM). Every multi-step write is one transaction.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleState is returned when a conditional update found the row no longer
// in the state the caller expected, e.g. a concurrent settlement won.
var ErrStaleState = errors.New("booking state changed concurrently")

// bookingCols is the column list every booking query selects, in scan order.
const bookingCols = `b.id::text, b.venue_id::text, b.user_id, b.booking_date, b.start_min, b.end_min,
	b.price, b.mode, b.team_a, b.team_b, b.joined_by, b.status, b.cancel_reason,
	b.is_paid, b.payment_status, b.payment_method, b.gateway_ref, b.payment_deadline,
	b.group_id, b.created_at, b.updated_at`

// competitorsCol aggregates a booking's competing-claim edges.
const competitorsCol = `COALESCE((SELECT array_agg(c.competitor_id::text ORDER BY c.competitor_id)
	FROM booking_competitors c WHERE c.booking_id = b.id), '{}')`

// BookingRepository handles persistence for bookings, their competing-claim
// edges and their payment ledger.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

func scanBooking(row pgx.Row, withCompetitors bool) (model.Booking, error) {
	var (
		b          model.Booking
		start, end int
		deadline   *time.Time
	)
	dest := []any{
		&b.ID, &b.VenueID, &b.UserID, &b.Date, &start, &end,
		&b.Price, &b.Mode, &b.TeamA, &b.TeamB, &b.JoinedBy, &b.Status, &b.CancelReason,
		&b.IsPaid, &b.PaymentStatus, &b.PaymentMethod, &b.GatewayRef, &deadline,
		&b.GroupID, &b.CreatedAt, &b.UpdatedAt,
	}
	if withCompetitors {
		dest = append(dest, &b.Competitors)
	}
	if err := row.Scan(dest...); err != nil {
		return model.Booking{}, err
	}
	b.Start, b.End = model.Clock(start), model.Clock(end)
	b.PaymentDeadline = deadline
	if b.Competitors == nil {
		b.Competitors = []string{}
	}
	return b, nil
}

func collectBookings(rows pgx.Rows, withCompetitors bool) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows, withCompetitors)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// rollback is deferred by every write path; it is a no-op after Commit.
func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(context.WithoutCancel(ctx))
}

// lockVenueOf locks the venue row owning a booking. Every writer that can make
// a booking occupy its slot takes this lock first, so those writers are
// serialized per venue and always acquire locks in the same order.
func lockVenueOf(ctx context.Context, tx pgx.Tx, bookingID string) (string, error) {
	var venueID string
	err := tx.QueryRow(ctx,
		`SELECT v.id::text FROM venues v JOIN bookings b ON b.venue_id = v.id
		 WHERE b.id = $1
		 FOR UPDATE OF v`,
		bookingID,
	).Scan(&venueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lock venue: %w", err)
	}
	return venueID, nil
}

func lockBooking(ctx context.Context, tx pgx.Tx, id string) (model.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx,
		`SELECT `+bookingCols+`, `+competitorsCol+`
		 FROM bookings b WHERE b.id = $1
		 FOR UPDATE OF b`,
		id,
	), true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, ErrNotFound
		}
		return model.Booking{}, fmt.Errorf("lock booking: %w", err)
	}
	return b, nil
}

// occupying returns the non-cancelled, paid or confirmed bookings at a venue
// overlapping [start, end) on date, excluding one booking id.
func occupying(ctx context.Context, tx pgx.Tx, venueID, date string, start, end model.Clock, exclude string) ([]model.Booking, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+bookingCols+`
		 FROM bookings b
		 WHERE b.venue_id = $1 AND b.booking_date = $2 AND b.id <> $3
		   AND b.status <> 'cancelled' AND (b.is_paid OR b.status = 'confirmed')
		   AND b.start_min < $5 AND b.end_min > $4`,
		venueID, date, exclude, int(start), int(end),
	)
	if err != nil {
		return nil, fmt.Errorf("query occupying: %w", err)
	}
	return collectBookings(rows, false)
}

// cancelPending cancels those of ids still pending and unpaid and returns them.
func cancelPending(ctx context.Context, tx pgx.Tx, ids []string, reason string, now time.Time) ([]model.Booking, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := tx.Query(ctx,
		`UPDATE bookings b
		 SET status = 'cancelled', cancel_reason = $2, updated_at = $3
		 WHERE b.id = ANY($1::text[]::uuid[]) AND b.status = 'pending' AND b.is_paid = FALSE
		 RETURNING `+bookingCols,
		ids, reason, now,
	)
	if err != nil {
		return nil, fmt.Errorf("cancel competitors: %w", err)
	}
	return collectBookings(rows, false)
}

// pruneEdges removes every competing-claim edge touching ids.
func pruneEdges(ctx context.Context, tx pgx.Tx, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx,
		`DELETE FROM booking_competitors
		 WHERE booking_id = ANY($1::text[]::uuid[]) OR competitor_id = ANY($1::text[]::uuid[])`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("prune competitor edges: %w", err)
	}
	return nil
}

func ids(bs []model.Booking) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.ID)
	}
	return out
}
