package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/payment"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/repository"
)

// InitiatePayment starts a gateway payment for the caller's pending claim and
// stores the gateway reference on it.
func (s *BookingService) InitiatePayment(ctx context.Context, actor model.Actor, bookingID, returnURL string) (_ *model.InitiatePaymentResponse, err error) {
	ctx, span := s.startSpan(ctx, "booking.initiate_payment", attribute.String("booking.id", bookingID))
	defer func() { endSpan(span, err) }()

	if err := checkID(bookingID, "booking"); err != nil {
		return nil, err
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr(err, "booking")
	}
	if b.UserID != actor.UserID {
		return nil, apperr.Forbiddenf("only the booking owner can pay for it")
	}
	if err := payable(b, s.now()); err != nil {
		return nil, err
	}
	if returnURL == "" {
		returnURL = s.opts.ReturnURL
	}

	name := "Futsal booking " + slotText(b)
	if v, err := s.venues.GetByID(ctx, b.VenueID); err == nil {
		name = fmt.Sprintf("Booking for %s %s", v.Name, slotText(b))
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
	defer cancel()
	started, err := s.gateway.Initiate(gctx, payment.InitiateRequest{
		Amount:    b.Price,
		OrderID:   b.ID,
		OrderName: name,
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Gateway, err, "could not start payment")
	}

	if err := s.bookings.AttachGatewayRef(ctx, started.TransactionRef, []string{b.ID}); err != nil {
		return nil, storeErr(err, "booking")
	}
	s.log.Info("payment initiated", "booking_id", b.ID, "provider", s.gateway.Name(), "ref", started.TransactionRef)
	return &model.InitiatePaymentResponse{
		BookingID:      b.ID,
		TransactionRef: started.TransactionRef,
		RedirectURL:    started.RedirectURL,
		Amount:         b.Price,
	}, nil
}

// payable rejects claims that can no longer be settled.
func payable(b *model.Booking, now time.Time) error {
	switch {
	case b.IsPaid:
		return apperr.Conflictf("booking is already paid")
	case b.Status == model.StatusCancelled:
		return apperr.Conflictf("booking was cancelled: %s", b.CancelReason)
	case b.Status != model.StatusPending:
		return apperr.Conflictf("booking is %s and cannot be paid", b.Status)
	case b.Expired(now):
		return apperr.Expiredf("payment window closed at %s; reserve the slot again", b.PaymentDeadline.UTC().Format(time.RFC3339))
	}
	return nil
}

// issuedFor returns those of ids the gateway reference was issued for, and
// rejects the reference when it covers none of them. Every reference issued
// for a claim stays valid, so a payment made on an older payment page still
// settles.
func (s *BookingService) issuedFor(ctx context.Context, ref string, ids []string) ([]string, error) {
	owners, err := s.bookings.GatewayRefOwners(ctx, ref)
	if err != nil {
		return nil, storeErr(err, "payment")
	}
	var out []string
	for _, id := range ids {
		if slices.Contains(owners, id) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, apperr.Validationf("transaction %s was not issued for this booking", ref)
	}
	return out, nil
}

// VerifySettlement confirms a claim once the gateway reports its payment
// completed. Settling cancels every competing claim on the slot. Calling it
// again for a paid booking returns the booking without side effects.
func (s *BookingService) VerifySettlement(ctx context.Context, actor model.Actor, bookingID, txnRef string) (_ *model.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.settle", attribute.String("booking.id", bookingID))
	defer func() { endSpan(span, err) }()

	if txnRef == "" {
		return nil, apperr.Validationf("transaction_id is required")
	}
	if err := checkID(bookingID, "booking"); err != nil {
		return nil, err
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr(err, "booking")
	}
	if b.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, apperr.Forbiddenf("not authorized to settle this booking")
	}
	if b.IsPaid {
		return b, nil
	}
	if err := payable(b, s.now()); err != nil {
		return nil, err
	}
	if _, err := s.issuedFor(ctx, txnRef, []string{b.ID}); err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
	defer cancel()
	lk, err := s.gateway.Lookup(gctx, txnRef)
	if err != nil {
		s.log.Warn("payment lookup failed", "booking_id", b.ID, "ref", txnRef, "err", err)
		return nil, apperr.Wrap(apperr.Gateway, err, "payment status unavailable, retry shortly")
	}
	span.SetAttributes(attribute.String("payment.status", string(lk.Status)))

	if lk.Status != payment.StatusCompleted {
		if err := s.bookings.MarkPaymentFailed(ctx, b.ID); err != nil && !errors.Is(err, repository.ErrStaleState) {
			s.log.Error("mark payment failed", "booking_id", b.ID, "err", err)
		}
		s.notify.Send(ctx, notify.Event{
			Type:    notify.PaymentFailed,
			Message: fmt.Sprintf("Payment for %s was not completed (%s). You can retry before the deadline.", slotText(b), lk.Status),
			Meta:    bookingMeta(b),
		}, b.UserID)
		return nil, apperr.Unsettledf("payment not completed: provider status %s", lk.Status)
	}
	if lk.Amount > 0 && lk.Amount != b.Price {
		s.log.Error("paid amount mismatch", "booking_id", b.ID, "ref", txnRef, "paid", lk.Amount, "price", b.Price)
		return nil, apperr.Validationf("paid amount %d does not match booking price %d", lk.Amount, b.Price)
	}

	now := s.now()
	amount := lk.Amount
	if amount == 0 {
		amount = b.Price
	}
	res, err := retry(ctx, func() (*repository.SettleResult, error) {
		return s.bookings.Settle(ctx, repository.SettleParams{
			BookingID: b.ID,
			Payment: model.Payment{
				ID:            uuid.New().String(),
				Amount:        amount,
				Currency:      s.opts.Currency,
				TransactionID: txnRef,
				Status:        model.LedgerCompleted,
				Method:        model.MethodGateway,
				Provider:      s.gateway.Name(),
				PaidAt:        &now,
				CreatedAt:     now,
			},
			GatewayRef: txnRef,
			Now:        now,
			LoseReason: loseReason,
			Guard: func(cur *model.Booking, occ []model.Booking) error {
				if err := payable(cur, now); err != nil {
					return err
				}
				if len(occ) > 0 {
					return apperr.Conflictf("slot %s-%s was already taken by another booking", occ[0].Start, occ[0].End)
				}
				return nil
			},
		})
	})
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.Conflict || k == apperr.Expired {
			// The provider holds a completed payment we could not honour.
			s.log.Error("completed payment not applied, refund required",
				"booking_id", b.ID, "ref", txnRef, "amount", amount, "err", err)
		}
		return nil, storeErr(err, "booking")
	}
	if res.AlreadyPaid {
		return res.Booking, nil
	}

	won := res.Booking
	s.log.Info("booking settled", "booking_id", won.ID, "ref", txnRef, "losers", len(res.Losers))
	owner := s.venueOwner(ctx, won.VenueID)
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingConfirmed,
		Message: fmt.Sprintf("Payment received. Your booking for %s is confirmed.", slotText(won)),
		Meta:    bookingMeta(won),
	}, won.UserID)
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingConfirmed,
		Message: fmt.Sprintf("Booking %s for %s is confirmed and paid.", won.ID, slotText(won)),
		Meta:    bookingMeta(won),
	}, owner)
	s.notifyLosers(ctx, res.Losers)
	return won, nil
}

// JoinAsTeamB fills team B of an open partial booking and confirms it
// without a payment step. Pending competitors lose the slot.
func (s *BookingService) JoinAsTeamB(ctx context.Context, actor model.Actor, bookingID string) (_ *model.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.join", attribute.String("booking.id", bookingID))
	defer func() { endSpan(span, err) }()

	if err := checkID(bookingID, "booking"); err != nil {
		return nil, err
	}
	now := s.now()
	res, err := retry(ctx, func() (*repository.JoinResult, error) {
		return s.bookings.Join(ctx, repository.JoinParams{
			BookingID:  bookingID,
			Joiner:     actor.UserID,
			Now:        now,
			LoseReason: "slot filled by a team B join",
			Guard: func(cur *model.Booking, occ []model.Booking) error {
				switch {
				case cur.Mode != model.ModePartial || cur.TeamB:
					return apperr.Conflictf("this booking is not open for joining")
				case cur.Status != model.StatusPending:
					return apperr.Conflictf("booking is %s and cannot be joined", cur.Status)
				case cur.UserID == actor.UserID:
					return apperr.Validationf("you cannot join your own booking")
				case cur.Expired(now):
					return apperr.Expiredf("this booking's hold has lapsed")
				case len(occ) > 0:
					return apperr.Conflictf("slot %s-%s was already taken by another booking", occ[0].Start, occ[0].End)
				}
				return nil
			},
		})
	})
	if err != nil {
		return nil, storeErr(err, "booking")
	}

	b := res.Booking
	s.log.Info("team B joined", "booking_id", b.ID, "joined_by", actor.UserID, "losers", len(res.Losers))
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingJoined,
		Message: fmt.Sprintf("A team joined your booking for %s. It is now confirmed.", slotText(b)),
		Meta:    bookingMeta(b),
	}, b.UserID, s.venueOwner(ctx, b.VenueID))
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingConfirmed,
		Message: fmt.Sprintf("You joined the booking for %s as team B.", slotText(b)),
		Meta:    bookingMeta(b),
	}, actor.UserID)
	s.notifyLosers(ctx, res.Losers)
	return b, nil
}

// Cancel cancels a booking in any non-cancelled state. Only its owner or an
// admin may cancel it.
func (s *BookingService) Cancel(ctx context.Context, actor model.Actor, bookingID string) (_ *model.Booking, err error) {
	ctx, span := s.startSpan(ctx, "booking.cancel", attribute.String("booking.id", bookingID))
	defer func() { endSpan(span, err) }()

	if err := checkID(bookingID, "booking"); err != nil {
		return nil, err
	}
	reason := "cancelled by user"
	if actor.IsAdmin() {
		reason = "cancelled by admin"
	}
	b, err := s.bookings.Cancel(ctx, bookingID, reason, s.now(), func(cur *model.Booking) error {
		if cur.UserID != actor.UserID && !actor.IsAdmin() {
			return apperr.Forbiddenf("not authorized to cancel this booking")
		}
		if cur.Status == model.StatusCancelled {
			return apperr.Conflictf("booking is already cancelled")
		}
		return nil
	})
	if err != nil {
		return nil, storeErr(err, "booking")
	}

	s.log.Info("booking cancelled", "booking_id", b.ID, "by", actor.UserID, "was_paid", b.IsPaid)
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingCancelled,
		Message: fmt.Sprintf("The booking for %s has been cancelled.", slotText(b)),
		Meta:    bookingMeta(b),
	}, b.UserID, s.venueOwner(ctx, b.VenueID))
	return b, nil
}

// SettleReturn settles whatever a gateway reference was issued for, on
// behalf of the booking owner. It serves the provider's browser redirect,
// which carries no credentials: nothing is settled unless the provider
// reports the payment completed.
func (s *BookingService) SettleReturn(ctx context.Context, txnRef string) ([]model.Booking, error) {
	if txnRef == "" {
		return nil, apperr.Validationf("transaction_id is required")
	}
	owners, err := s.bookings.GatewayRefOwners(ctx, txnRef)
	if err != nil {
		return nil, storeErr(err, "payment")
	}
	if len(owners) == 0 {
		return nil, apperr.NotFoundf("payment %s not found", txnRef)
	}
	b, err := s.bookings.GetByID(ctx, owners[0])
	if err != nil {
		return nil, storeErr(err, "booking")
	}
	actor := model.Actor{UserID: b.UserID, Role: model.RoleUser}

	if len(owners) == 1 {
		won, err := s.VerifySettlement(ctx, actor, b.ID, txnRef)
		if err != nil {
			return nil, err
		}
		return []model.Booking{*won}, nil
	}
	g, err := s.VerifyGroupSettlement(ctx, actor, b.GroupID, txnRef)
	if err != nil {
		return nil, err
	}
	return g.Bookings, nil
}
