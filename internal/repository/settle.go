package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// Guard inspects a locked booking, and the bookings already occupying its
// slot, and vetoes the write by returning an error.
type Guard func(b *model.Booking, occupying []model.Booking) error

// SettleParams describes one settlement.
type SettleParams struct {
	BookingID string
	// Payment is the completed ledger entry to record. BookingID, UserID
	// and VenueID are filled from the locked booking.
	Payment    model.Payment
	GatewayRef string
	Now        time.Time
	Guard      Guard
	LoseReason string
}

// SettleResult is what a settlement wrote.
type SettleResult struct {
	Booking *model.Booking
	// Losers are the competing claims cancelled by this settlement.
	Losers []model.Booking
	// AlreadyPaid is set when the booking was paid before this call; nothing
	// was written.
	AlreadyPaid bool
}

// Settle flips a pending claim to paid and confirmed, records its payment and
// cancels every claim it competes with, all in one transaction.
//
// The flip is conditional on is_paid = false and status = 'pending', so of
// two racing settlements for the same booking only one writes; the other
// sees the booking already paid, or gets ErrStaleState.
func (r *BookingRepository) Settle(ctx context.Context, p SettleParams) (*SettleResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err = lockVenueOf(ctx, tx, p.BookingID); err != nil {
		return nil, err
	}
	cur, err := lockBooking(ctx, tx, p.BookingID)
	if err != nil {
		return nil, err
	}
	if cur.IsPaid {
		return &SettleResult{Booking: &cur, AlreadyPaid: true}, nil
	}

	occ, err := occupying(ctx, tx, cur.VenueID, cur.Date, cur.Start, cur.End, cur.ID)
	if err != nil {
		return nil, err
	}
	if p.Guard != nil {
		if err = p.Guard(&cur, occ); err != nil {
			return nil, err
		}
	}

	won, losers, err := settleLocked(ctx, tx, &cur, p.Payment, p.GatewayRef, p.Now, p.LoseReason)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return &SettleResult{Booking: &won, Losers: losers}, nil
}

// settleLocked flips a locked claim to paid, records its payment and cancels
// the claims it competes with. The caller holds the venue and booking locks.
func settleLocked(ctx context.Context, tx pgx.Tx, cur *model.Booking, pay model.Payment, ref string, now time.Time, loseReason string) (model.Booking, []model.Booking, error) {
	won, err := scanBooking(tx.QueryRow(ctx,
		`UPDATE bookings b
		 SET is_paid = TRUE, payment_status = 'paid', status = 'confirmed',
		     payment_method = $2, gateway_ref = $3, updated_at = $4
		 WHERE b.id = $1 AND b.is_paid = FALSE AND b.status = 'pending'
		 RETURNING `+bookingCols,
		cur.ID, string(pay.Method), ref, now,
	), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, nil, ErrStaleState
		}
		return model.Booking{}, nil, fmt.Errorf("settle booking: %w", err)
	}

	pay.BookingID, pay.UserID, pay.VenueID = cur.ID, cur.UserID, cur.VenueID
	if err = insertPayment(ctx, tx, &pay); err != nil {
		return model.Booking{}, nil, err
	}

	losers, err := cancelPending(ctx, tx, cur.Competitors, loseReason, now)
	if err != nil {
		return model.Booking{}, nil, err
	}
	if err = pruneEdges(ctx, tx, append([]string{cur.ID}, ids(losers)...)); err != nil {
		return model.Booking{}, nil, err
	}
	won.Competitors = []string{}
	return won, losers, nil
}

// SettleGroupParams describes one gateway payment settling several claims.
type SettleGroupParams struct {
	// Payments holds one completed ledger entry per claim, BookingID set.
	Payments   []model.Payment
	GatewayRef string
	Now        time.Time
	// Guard runs once per claim. Any veto aborts the whole group.
	Guard      Guard
	LoseReason string
}

// SettleGroupResult is what a group settlement wrote.
type SettleGroupResult struct {
	Bookings    []model.Booking
	Losers      []model.Booking
	AlreadyPaid bool
}

// SettleGroup settles every claim of a group in one transaction: all of them
// are paid, or none is. Claims are locked in id order after the venue row.
func (r *BookingRepository) SettleGroup(ctx context.Context, p SettleGroupParams) (*SettleGroupResult, error) {
	if len(p.Payments) == 0 {
		return nil, ErrNotFound
	}
	pays := append([]model.Payment(nil), p.Payments...)
	sort.Slice(pays, func(i, j int) bool { return pays[i].BookingID < pays[j].BookingID })

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	venueID, err := lockVenueOf(ctx, tx, pays[0].BookingID)
	if err != nil {
		return nil, err
	}
	curs := make([]model.Booking, 0, len(pays))
	paid := 0
	for _, pay := range pays {
		cur, err := lockBooking(ctx, tx, pay.BookingID)
		if err != nil {
			return nil, err
		}
		if cur.VenueID != venueID {
			return nil, fmt.Errorf("settle group: booking %s is at another venue", cur.ID)
		}
		if cur.IsPaid {
			paid++
		}
		curs = append(curs, cur)
	}
	if paid == len(curs) {
		return &SettleGroupResult{Bookings: curs, AlreadyPaid: true}, nil
	}

	out := &SettleGroupResult{}
	for i := range curs {
		cur := &curs[i]
		occ, err := occupying(ctx, tx, cur.VenueID, cur.Date, cur.Start, cur.End, cur.ID)
		if err != nil {
			return nil, err
		}
		if p.Guard != nil {
			if err = p.Guard(cur, occ); err != nil {
				return nil, err
			}
		}
		won, losers, err := settleLocked(ctx, tx, cur, pays[i], p.GatewayRef, p.Now, p.LoseReason)
		if err != nil {
			return nil, err
		}
		out.Bookings = append(out.Bookings, won)
		out.Losers = append(out.Losers, losers...)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return out, nil
}

// JoinParams describes a team B join.
type JoinParams struct {
	BookingID  string
	Joiner     string
	Now        time.Time
	Guard      Guard
	LoseReason string
}

// JoinResult is what a join wrote.
type JoinResult struct {
	Booking *model.Booking
	Losers  []model.Booking
}

// Join fills team B of a pending partial booking, confirms it and cancels its
// still-pending competitors.
func (r *BookingRepository) Join(ctx context.Context, p JoinParams) (*JoinResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err = lockVenueOf(ctx, tx, p.BookingID); err != nil {
		return nil, err
	}
	cur, err := lockBooking(ctx, tx, p.BookingID)
	if err != nil {
		return nil, err
	}
	occ, err := occupying(ctx, tx, cur.VenueID, cur.Date, cur.Start, cur.End, cur.ID)
	if err != nil {
		return nil, err
	}
	if p.Guard != nil {
		if err = p.Guard(&cur, occ); err != nil {
			return nil, err
		}
	}

	joined, err := scanBooking(tx.QueryRow(ctx,
		`UPDATE bookings b
		 SET team_b = TRUE, joined_by = $2, status = 'confirmed', updated_at = $3
		 WHERE b.id = $1 AND b.mode = 'partial' AND b.team_b = FALSE AND b.status = 'pending'
		 RETURNING `+bookingCols,
		cur.ID, p.Joiner, p.Now,
	), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("join booking: %w", err)
	}

	losers, err := cancelPending(ctx, tx, cur.Competitors, p.LoseReason, p.Now)
	if err != nil {
		return nil, err
	}
	if err = pruneEdges(ctx, tx, append([]string{cur.ID}, ids(losers)...)); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	joined.Competitors = []string{}
	return &JoinResult{Booking: &joined, Losers: losers}, nil
}

// Cancel marks a booking cancelled and removes its competing-claim edges.
// guard sees the locked booking and may veto.
func (r *BookingRepository) Cancel(ctx context.Context, id, reason string, now time.Time, guard func(*model.Booking) error) (*model.Booking, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	cur, err := lockBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err = guard(&cur); err != nil {
			return nil, err
		}
	}

	out, err := scanBooking(tx.QueryRow(ctx,
		`UPDATE bookings b
		 SET status = 'cancelled', cancel_reason = $2, updated_at = $3
		 WHERE b.id = $1 AND b.status <> 'cancelled'
		 RETURNING `+bookingCols,
		id, reason, now,
	), false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleState
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	if err = pruneEdges(ctx, tx, []string{id}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	out.Competitors = []string{}
	return &out, nil
}
