package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/notify"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/payment"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/repository"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func bookingIDs(bs []model.Booking) []string {
	out := make([]string, 0, len(bs))
	for i := range bs {
		out = append(out, bs[i].ID)
	}
	return out
}

// bulkDates expands a bulk request into the dates it covers.
func (s *BookingService) bulkDates(req model.CreateBulkReservationRequest) ([]string, error) {
	switch {
	case req.StartDate == "" || req.EndDate == "":
		return nil, apperr.Validationf("start_date and end_date are required")
	case len(req.DaysOfWeek) == 0:
		return nil, apperr.Validationf("days_of_week is required")
	}
	from, err := model.ParseDate(req.StartDate)
	if err != nil {
		return nil, apperr.Validationf("%v", err)
	}
	to, err := model.ParseDate(req.EndDate)
	if err != nil {
		return nil, apperr.Validationf("%v", err)
	}
	if to.Before(from) {
		return nil, apperr.Validationf("end_date %s is before start_date %s", req.EndDate, req.StartDate)
	}
	if days := int(to.Sub(from).Hours() / 24); days > s.opts.MaxBulkDays {
		return nil, apperr.Validationf("bulk booking cannot span more than %d days (got %d)", s.opts.MaxBulkDays, days)
	}

	want := map[time.Weekday]bool{}
	for _, d := range req.DaysOfWeek {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, apperr.Validationf("unknown day of week %q", d)
		}
		want[wd] = true
	}

	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if want[d.Weekday()] {
			out = append(out, d.Format(model.DateLayout))
		}
	}
	if len(out) == 0 {
		return nil, apperr.Validationf("no date between %s and %s falls on the requested days", req.StartDate, req.EndDate)
	}
	return out, nil
}

// CreateBulkReservation reserves the same window on every matching weekday
// of a date range. Each date goes through the same checks and contention as
// a single reservation; dates that fail are reported in Rejected and the
// rest are created as one group. It fails only when no date could be
// reserved.
func (s *BookingService) CreateBulkReservation(ctx context.Context, actor model.Actor, req model.CreateBulkReservationRequest) (_ *model.BookingGroup, err error) {
	ctx, span := s.startSpan(ctx, "booking.create_bulk", attribute.String("venue.id", req.VenueID))
	defer func() { endSpan(span, err) }()

	dates, err := s.bulkDates(req)
	if err != nil {
		return nil, err
	}
	single := func(date string) model.CreateReservationRequest {
		return model.CreateReservationRequest{
			VenueID: req.VenueID,
			Date:    date,
			Start:   req.Start,
			End:     req.End,
			Mode:    req.Mode,
			TeamA:   req.TeamA,
			TeamB:   req.TeamB,
			From:    req.From,
		}
	}
	// Request-wide problems fail the whole request instead of every date.
	if err := validateShape(single(dates[0])); err != nil {
		return nil, err
	}
	v, err := s.activeVenue(ctx, req.VenueID)
	if err != nil {
		return nil, err
	}

	g := &model.BookingGroup{ID: uuid.New().String(), Bookings: []model.Booking{}}
	for _, date := range dates {
		b, err := s.reserveInGroup(ctx, actor, single(date), g.ID, len(g.Bookings))
		if err != nil {
			switch apperr.KindOf(err) {
			case apperr.Validation, apperr.Conflict:
				g.Rejected = append(g.Rejected, model.DateRejection{Date: date, Reason: apperr.Public(err, true)})
				continue
			}
			// Claims already made stay pending and expire unpaid.
			s.log.Error("bulk reservation aborted", "group_id", g.ID, "date", date, "created", len(g.Bookings), "err", err)
			return nil, err
		}
		g.Bookings = append(g.Bookings, *b)
		g.TotalPrice += b.Price
	}
	span.SetAttributes(attribute.String("booking.group", g.ID), attribute.Int("booking.count", len(g.Bookings)))

	if len(g.Bookings) == 0 {
		first := g.Rejected[0]
		return nil, apperr.Conflictf("none of the %d requested dates could be reserved (%s: %s)", len(dates), first.Date, first.Reason)
	}

	s.log.Info("bulk reservation created", "group_id", g.ID, "venue_id", v.ID, "user_id", actor.UserID,
		"created", len(g.Bookings), "rejected", len(g.Rejected), "total", g.TotalPrice)
	meta := map[string]any{"group_id": g.ID, "venue_id": v.ID, "booking_ids": bookingIDs(g.Bookings)}
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingCreated,
		Message: fmt.Sprintf("%d bookings at %s are reserved for %d in total. Pay for them together to confirm.", len(g.Bookings), v.Name, g.TotalPrice),
		Meta:    meta,
	}, actor.UserID)
	s.notify.Send(ctx, notify.Event{
		Type:    notify.BookingCreated,
		Message: fmt.Sprintf("New recurring reservation attempt at %s for %d dates.", v.Name, len(g.Bookings)),
		Meta:    meta,
	}, v.OwnerID)
	return g, nil
}

// reserveInGroup creates one pending claim of a group. made is how many
// claims the group already holds.
func (s *BookingService) reserveInGroup(ctx context.Context, actor model.Actor, req model.CreateReservationRequest, groupID string, made int) (*model.Booking, error) {
	sr, hol, err := s.validateSlot(ctx, req)
	if err != nil {
		return nil, err
	}
	nb := sr.b
	nb.ID = uuid.New().String()
	nb.UserID = actor.UserID
	nb.GroupID = groupID
	nb.Price = s.price(sr.venue, sr.date, &nb, hol, req.From)

	res, err := retry(ctx, func() (*repository.ReserveResult, error) {
		now := s.now()
		s.pending(&nb, now)
		return s.bookings.Reserve(ctx, repository.ReserveParams{
			Booking: &nb,
			Now:     now,
			Plan:    s.claimPlan(&nb, now, made),
		})
	})
	if err != nil {
		return nil, storeErr(err, "venue")
	}
	return res.Booking, nil
}

// loadGroup returns the bookings of a group, or NotFound.
func (s *BookingService) loadGroup(ctx context.Context, groupID string) ([]model.Booking, error) {
	if err := checkID(groupID, "booking group"); err != nil {
		return nil, err
	}
	members, err := s.bookings.ListGroup(ctx, groupID)
	if err != nil {
		return nil, storeErr(err, "booking group")
	}
	if len(members) == 0 {
		return nil, apperr.NotFoundf("booking group not found")
	}
	return members, nil
}

func groupView(groupID string, members []model.Booking) *model.BookingGroup {
	g := &model.BookingGroup{ID: groupID, Bookings: members}
	for i := range members {
		if members[i].Status != model.StatusCancelled {
			g.TotalPrice += members[i].Price
		}
	}
	return g
}

// GetGroup returns a bulk request's bookings. It is visible to the booking
// owner, admins and the venue owner.
func (s *BookingService) GetGroup(ctx context.Context, actor model.Actor, groupID string) (*model.BookingGroup, error) {
	members, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	first := &members[0]
	if first.UserID != actor.UserID && !actor.IsAdmin() && s.venueOwner(ctx, first.VenueID) != actor.UserID {
		return nil, apperr.NotFoundf("booking group not found")
	}
	return groupView(groupID, members), nil
}

// InitiateGroupPayment starts one gateway payment covering every claim of a
// group still awaiting payment.
func (s *BookingService) InitiateGroupPayment(ctx context.Context, actor model.Actor, groupID, returnURL string) (_ *model.InitiatePaymentResponse, err error) {
	ctx, span := s.startSpan(ctx, "booking.initiate_group_payment", attribute.String("booking.group", groupID))
	defer func() { endSpan(span, err) }()

	members, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if members[0].UserID != actor.UserID {
		return nil, apperr.Forbiddenf("only the booking owner can pay for it")
	}

	now := s.now()
	var (
		due   []model.Booking
		total int64
	)
	for i := range members {
		if payable(&members[i], now) == nil {
			due = append(due, members[i])
			total += members[i].Price
		}
	}
	if len(due) == 0 {
		return nil, apperr.Conflictf("no booking in this group is awaiting payment")
	}
	if returnURL == "" {
		returnURL = s.opts.ReturnURL
	}

	name := fmt.Sprintf("Recurring futsal booking (%d dates)", len(due))
	if v, err := s.venues.GetByID(ctx, due[0].VenueID); err == nil {
		name = fmt.Sprintf("Recurring booking for %s (%d dates)", v.Name, len(due))
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
	defer cancel()
	started, err := s.gateway.Initiate(gctx, payment.InitiateRequest{
		Amount:    total,
		OrderID:   groupID,
		OrderName: name,
		ReturnURL: returnURL,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Gateway, err, "could not start payment")
	}

	ids := bookingIDs(due)
	if err := s.bookings.AttachGatewayRef(ctx, started.TransactionRef, ids); err != nil {
		return nil, storeErr(err, "booking")
	}
	s.log.Info("group payment initiated", "group_id", groupID, "bookings", len(ids), "amount", total, "ref", started.TransactionRef)
	return &model.InitiatePaymentResponse{
		GroupID:        groupID,
		BookingIDs:     ids,
		TransactionRef: started.TransactionRef,
		RedirectURL:    started.RedirectURL,
		Amount:         total,
	}, nil
}

// VerifyGroupSettlement settles every claim a group payment was issued for,
// all together or not at all. Calling it again after success returns the
// group unchanged.
func (s *BookingService) VerifyGroupSettlement(ctx context.Context, actor model.Actor, groupID, txnRef string) (_ *model.BookingGroup, err error) {
	ctx, span := s.startSpan(ctx, "booking.settle_group", attribute.String("booking.group", groupID))
	defer func() { endSpan(span, err) }()

	if txnRef == "" {
		return nil, apperr.Validationf("transaction_id is required")
	}
	members, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if members[0].UserID != actor.UserID && !actor.IsAdmin() {
		return nil, apperr.Forbiddenf("not authorized to settle this booking")
	}
	covered, err := s.issuedFor(ctx, txnRef, bookingIDs(members))
	if err != nil {
		return nil, err
	}

	var set []model.Booking
	paid := 0
	for i := range members {
		for _, id := range covered {
			if members[i].ID == id {
				set = append(set, members[i])
				if members[i].IsPaid {
					paid++
				}
			}
		}
	}
	if paid == len(set) {
		return groupView(groupID, members), nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
	defer cancel()
	lk, err := s.gateway.Lookup(gctx, txnRef)
	if err != nil {
		s.log.Warn("payment lookup failed", "group_id", groupID, "ref", txnRef, "err", err)
		return nil, apperr.Wrap(apperr.Gateway, err, "payment status unavailable, retry shortly")
	}
	span.SetAttributes(attribute.String("payment.status", string(lk.Status)))

	if lk.Status != payment.StatusCompleted {
		for i := range set {
			if err := s.bookings.MarkPaymentFailed(ctx, set[i].ID); err != nil && !errors.Is(err, repository.ErrStaleState) {
				s.log.Error("mark payment failed", "booking_id", set[i].ID, "err", err)
			}
		}
		s.notify.Send(ctx, notify.Event{
			Type:    notify.PaymentFailed,
			Message: fmt.Sprintf("Payment for your %d bookings was not completed (%s). You can retry before the deadline.", len(set), lk.Status),
			Meta:    map[string]any{"group_id": groupID},
		}, members[0].UserID)
		return nil, apperr.Unsettledf("payment not completed: provider status %s", lk.Status)
	}

	var total int64
	for i := range set {
		total += set[i].Price
	}
	if lk.Amount > 0 && lk.Amount != total {
		s.log.Error("paid amount mismatch", "group_id", groupID, "ref", txnRef, "paid", lk.Amount, "price", total)
		return nil, apperr.Validationf("paid amount %d does not match group price %d", lk.Amount, total)
	}

	now := s.now()
	pays := make([]model.Payment, 0, len(set))
	for i := range set {
		pays = append(pays, model.Payment{
			ID:            uuid.New().String(),
			BookingID:     set[i].ID,
			Amount:        set[i].Price,
			Currency:      s.opts.Currency,
			TransactionID: txnRef,
			Status:        model.LedgerCompleted,
			Method:        model.MethodGateway,
			Provider:      s.gateway.Name(),
			PaidAt:        &now,
			CreatedAt:     now,
		})
	}
	res, err := retry(ctx, func() (*repository.SettleGroupResult, error) {
		return s.bookings.SettleGroup(ctx, repository.SettleGroupParams{
			Payments:   pays,
			GatewayRef: txnRef,
			Now:        now,
			LoseReason: loseReason,
			Guard: func(cur *model.Booking, occ []model.Booking) error {
				if err := payable(cur, now); err != nil {
					return apperr.Wrap(apperr.KindOf(err), err, fmt.Sprintf("booking on %s: %s", cur.Date, apperr.Public(err, true)))
				}
				if len(occ) > 0 {
					return apperr.Conflictf("slot %s %s-%s was already taken by another booking", cur.Date, occ[0].Start, occ[0].End)
				}
				return nil
			},
		})
	})
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.Conflict || k == apperr.Expired {
			s.log.Error("completed payment not applied, refund required",
				"group_id", groupID, "ref", txnRef, "amount", total, "err", err)
		}
		return nil, storeErr(err, "booking")
	}

	if !res.AlreadyPaid {
		s.log.Info("booking group settled", "group_id", groupID, "ref", txnRef, "bookings", len(res.Bookings), "losers", len(res.Losers))
		owner := s.venueOwner(ctx, members[0].VenueID)
		meta := map[string]any{"group_id": groupID, "booking_ids": bookingIDs(res.Bookings)}
		s.notify.Send(ctx, notify.Event{
			Type:    notify.BookingConfirmed,
			Message: fmt.Sprintf("Payment received. Your %d bookings are confirmed.", len(res.Bookings)),
			Meta:    meta,
		}, members[0].UserID)
		s.notify.Send(ctx, notify.Event{
			Type:    notify.BookingConfirmed,
			Message: fmt.Sprintf("Recurring booking %s is confirmed and paid (%d dates).", groupID, len(res.Bookings)),
			Meta:    meta,
		}, owner)
		s.notifyLosers(ctx, res.Losers)
	}

	members, err = s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return groupView(groupID, members), nil
}
