package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// SweepExpired deletes up to limit unpaid pending claims whose deadline is at
// or before now, together with every competing-claim edge that references
// them, and returns what it deleted.
//
// It locks venue rows before booking rows, in the same order as Reserve and
// Settle, so a claim cannot vanish while a reservation at its venue is
// linking to it. Venues and rows locked by in-flight writers are skipped and
// picked up by a later sweep.
func (r *BookingRepository) SweepExpired(ctx context.Context, now time.Time, limit int) ([]model.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	rows, err := tx.Query(ctx,
		`SELECT v.id::text FROM venues v
		 WHERE EXISTS (
		     SELECT 1 FROM bookings b
		     WHERE b.venue_id = v.id AND b.status = 'pending' AND b.is_paid = FALSE AND b.payment_deadline <= $1)
		 ORDER BY v.id
		 LIMIT $2
		 FOR UPDATE OF v SKIP LOCKED`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lock venues: %w", err)
	}
	venues, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("lock venues: %w", err)
	}
	if len(venues) == 0 {
		return nil, nil
	}

	rows, err = tx.Query(ctx,
		`SELECT `+bookingCols+`, `+competitorsCol+`
		 FROM bookings b
		 WHERE b.venue_id = ANY($3::text[]::uuid[])
		   AND b.status = 'pending' AND b.is_paid = FALSE AND b.payment_deadline <= $1
		 ORDER BY b.payment_deadline
		 LIMIT $2
		 FOR UPDATE OF b SKIP LOCKED`,
		now, limit, venues,
	)
	if err != nil {
		return nil, fmt.Errorf("select expired: %w", err)
	}
	expired, err := collectBookings(rows, true)
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	gone := ids(expired)
	if err = pruneEdges(ctx, tx, gone); err != nil {
		return nil, err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM bookings WHERE id = ANY($1::text[]::uuid[])`, gone); err != nil {
		return nil, fmt.Errorf("delete expired: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return expired, nil
}
