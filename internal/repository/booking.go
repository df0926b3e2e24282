package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// GetByID returns a booking with its competing claims, or ErrNotFound.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx,
		`SELECT `+bookingCols+`, `+competitorsCol+` FROM bookings b WHERE b.id = $1`,
		id,
	), true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

// ListOccupied returns the bookings that hold a slot at a venue on a date:
// not cancelled, and paid or confirmed.
func (r *BookingRepository) ListOccupied(ctx context.Context, venueID, date string) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+bookingCols+`
		 FROM bookings b
		 WHERE b.venue_id = $1 AND b.booking_date = $2
		   AND b.status <> 'cancelled' AND (b.is_paid OR b.status = 'confirmed')
		 ORDER BY b.start_min`,
		venueID, date,
	)
	if err != nil {
		return nil, fmt.Errorf("list occupied: %w", err)
	}
	return collectBookings(rows, false)
}

// ListByUser returns a user's bookings, newest slot first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID string) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+bookingCols+`, `+competitorsCol+`
		 FROM bookings b
		 WHERE b.user_id = $1
		 ORDER BY b.booking_date DESC, b.start_min DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list user bookings: %w", err)
	}
	return collectBookings(rows, true)
}

// List returns bookings matching f, newest first.
func (r *BookingRepository) List(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.VenueID != "" {
		add("b.venue_id = $%d", f.VenueID)
	}
	if f.UserID != "" {
		add("b.user_id = $%d", f.UserID)
	}
	if f.Date != "" {
		add("b.booking_date = $%d", f.Date)
	}
	if f.Status != "" {
		add("b.status = $%d", string(f.Status))
	}

	q := `SELECT ` + bookingCols + `, ` + competitorsCol + ` FROM bookings b`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY b.booking_date DESC, b.start_min DESC, b.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collectBookings(rows, true)
}

// PaymentsFor returns the ledger entries recorded for a booking.
func (r *BookingRepository) PaymentsFor(ctx context.Context, bookingID string) ([]model.Payment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, booking_id::text, user_id, venue_id::text, amount, currency, transaction_id,
		        status, method, provider, paid_at, created_at
		 FROM payments WHERE booking_id = $1
		 ORDER BY created_at`,
		bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := rows.Scan(&p.ID, &p.BookingID, &p.UserID, &p.VenueID, &p.Amount, &p.Currency, &p.TransactionID,
			&p.Status, &p.Method, &p.Provider, &p.PaidAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkPaymentFailed records a failed payment attempt on a still-pending claim.
// The claim stays pending so the user can retry before the deadline.
func (r *BookingRepository) MarkPaymentFailed(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE bookings SET payment_status = 'failed', updated_at = now()
		 WHERE id = $1 AND status = 'pending' AND is_paid = FALSE`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleState
	}
	return nil
}

// AttachGatewayRef records a provider reference issued for pending claims.
// Earlier references stay valid; gateway_ref shows the latest. Either every
// claim takes the reference or none does.
func (r *BookingRepository) AttachGatewayRef(ctx context.Context, ref string, bookingIDs []string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	tag, err := tx.Exec(ctx,
		`UPDATE bookings SET gateway_ref = $2, payment_status = 'pending', updated_at = now()
		 WHERE id = ANY($1::text[]::uuid[]) AND status = 'pending' AND is_paid = FALSE`,
		bookingIDs, ref,
	)
	if err != nil {
		return fmt.Errorf("attach gateway ref: %w", err)
	}
	if tag.RowsAffected() != int64(len(bookingIDs)) {
		return ErrStaleState
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO booking_gateway_refs (ref, booking_id)
		 SELECT $1, id::uuid FROM unnest($2::text[]) AS id
		 ON CONFLICT DO NOTHING`,
		ref, bookingIDs,
	)
	if err != nil {
		return fmt.Errorf("record gateway ref: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GatewayRefOwners returns the bookings a provider reference was issued for.
func (r *BookingRepository) GatewayRefOwners(ctx context.Context, ref string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT booking_id::text FROM booking_gateway_refs WHERE ref = $1 ORDER BY booking_id`,
		ref,
	)
	if err != nil {
		return nil, fmt.Errorf("gateway ref owners: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan gateway ref owners: %w", err)
	}
	return ids, nil
}

// ListGroup returns the bookings of a bulk request in date order.
func (r *BookingRepository) ListGroup(ctx context.Context, groupID string) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+bookingCols+`, `+competitorsCol+`
		 FROM bookings b
		 WHERE b.group_id = $1
		 ORDER BY b.booking_date, b.start_min`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list group: %w", err)
	}
	return collectBookings(rows, true)
}
