package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// DaySnapshot is the state a reservation is decided against, read under the
// venue lock and the requester's lock.
type DaySnapshot struct {
	// Venue holds every non-cancelled booking at the venue on the date.
	Venue []model.Booking
	// User holds every non-cancelled booking of the requester on the date,
	// at any venue.
	User []model.Booking
	// ActivePending counts the requester's unpaid pending claims whose
	// deadline has not passed.
	ActivePending int
}

// ReservePlan is the decision taken from a DaySnapshot.
type ReservePlan struct {
	// Competitors are existing claims to link to the new booking.
	Competitors []string
	// Cancel are existing pending claims to cancel, with CancelReason.
	Cancel       []string
	CancelReason string
}

// ReserveParams describes one reservation write.
type ReserveParams struct {
	Booking *model.Booking
	// Payment, when set, is recorded in the same transaction (cash).
	Payment *model.Payment
	Now     time.Time
	// Plan runs inside the transaction. An error aborts the reservation and
	// is returned unchanged.
	Plan func(DaySnapshot) (ReservePlan, error)
}

// ReserveResult is what a reservation wrote.
type ReserveResult struct {
	Booking   *model.Booking
	Cancelled []model.Booking
}

// Reserve inserts a booking after re-checking the slot under lock.
//
// The venue row is locked FOR UPDATE so that two reservations for the same
// venue cannot both read a snapshot without the other's booking in it. A
// transaction-scoped advisory lock on the requester does the same for the
// per-user checks, which span venues.
func (r *BookingRepository) Reserve(ctx context.Context, p ReserveParams) (*ReserveResult, error) {
	b := p.Booking

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	var active bool
	err = tx.QueryRow(ctx,
		`SELECT is_active FROM venues WHERE id = $1 FOR UPDATE`,
		b.VenueID,
	).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lock venue row: %w", err)
	}
	if !active {
		return nil, ErrNotFound
	}

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "booking-user:"+b.UserID); err != nil {
		return nil, fmt.Errorf("lock requester: %w", err)
	}

	snap, err := readSnapshot(ctx, tx, b, p.Now)
	if err != nil {
		return nil, err
	}
	plan, err := p.Plan(snap)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, venue_id, user_id, booking_date, start_min, end_min, price, mode,
		                       team_a, team_b, joined_by, status, cancel_reason, is_paid, payment_status,
		                       payment_method, gateway_ref, payment_deadline, group_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '', $13, $14, $15, $16, $17, $18, $19, $19)`,
		b.ID, b.VenueID, b.UserID, b.Date, int(b.Start), int(b.End), b.Price, string(b.Mode),
		b.TeamA, b.TeamB, b.JoinedBy, string(b.Status), b.IsPaid, string(b.PaymentStatus),
		string(b.PaymentMethod), b.GatewayRef, b.PaymentDeadline, b.GroupID, b.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}

	if p.Payment != nil {
		if err = insertPayment(ctx, tx, p.Payment); err != nil {
			return nil, err
		}
	}

	cancelled, err := cancelPending(ctx, tx, plan.Cancel, plan.CancelReason, p.Now)
	if err != nil {
		return nil, err
	}
	if err = pruneEdges(ctx, tx, ids(cancelled)); err != nil {
		return nil, err
	}

	// Both directions of every edge, so each side lists the other.
	if len(plan.Competitors) > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO booking_competitors (booking_id, competitor_id)
			 SELECT $1::uuid, c::uuid FROM unnest($2::text[]) AS c
			 UNION ALL
			 SELECT c::uuid, $1::uuid FROM unnest($2::text[]) AS c
			 ON CONFLICT DO NOTHING`,
			b.ID, plan.Competitors,
		)
		if err != nil {
			return nil, fmt.Errorf("insert competitor edges: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	out := *b
	out.Competitors = append([]string{}, plan.Competitors...)
	return &ReserveResult{Booking: &out, Cancelled: cancelled}, nil
}

func readSnapshot(ctx context.Context, tx pgx.Tx, b *model.Booking, now time.Time) (DaySnapshot, error) {
	var snap DaySnapshot

	rows, err := tx.Query(ctx,
		`SELECT `+bookingCols+`
		 FROM bookings b
		 WHERE b.venue_id = $1 AND b.booking_date = $2 AND b.status <> 'cancelled'`,
		b.VenueID, b.Date,
	)
	if err != nil {
		return snap, fmt.Errorf("query venue day: %w", err)
	}
	if snap.Venue, err = collectBookings(rows, false); err != nil {
		return snap, err
	}

	rows, err = tx.Query(ctx,
		`SELECT `+bookingCols+`
		 FROM bookings b
		 WHERE b.user_id = $1 AND b.booking_date = $2 AND b.status <> 'cancelled'`,
		b.UserID, b.Date,
	)
	if err != nil {
		return snap, fmt.Errorf("query user day: %w", err)
	}
	if snap.User, err = collectBookings(rows, false); err != nil {
		return snap, err
	}

	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings
		 WHERE user_id = $1 AND status = 'pending' AND is_paid = FALSE AND payment_deadline > $2`,
		b.UserID, now,
	).Scan(&snap.ActivePending)
	if err != nil {
		return snap, fmt.Errorf("count pending: %w", err)
	}
	return snap, nil
}

// insertPayment records a ledger entry. Recording the same transaction for
// the same booking twice is a no-op.
func insertPayment(ctx context.Context, tx pgx.Tx, p *model.Payment) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO payments (id, booking_id, user_id, venue_id, amount, currency, transaction_id,
		                       status, method, provider, paid_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (transaction_id, booking_id) DO NOTHING`,
		p.ID, p.BookingID, p.UserID, p.VenueID, p.Amount, p.Currency, p.TransactionID,
		string(p.Status), string(p.Method), p.Provider, p.PaidAt, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}
