package service

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/repository"
)

// memStore is an in-memory BookingStore and VenueStore with the same
// observable semantics as the Postgres repositories. One mutex stands in for
// the row and advisory locks.
type memStore struct {
	mu       sync.Mutex
	venues   map[string]*model.Venue
	bookings map[string]*model.Booking
	edges    map[string]map[string]struct{}
	payments []model.Payment
	refs     map[string][]string

	// failures injected per operation
	settleErr error
}

func newMemStore() *memStore {
	return &memStore{
		venues:   map[string]*model.Venue{},
		bookings: map[string]*model.Booking{},
		edges:    map[string]map[string]struct{}{},
		refs:     map[string][]string{},
	}
}

func (m *memStore) Create(_ context.Context, v *model.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.venues[v.ID] = &cp
	return nil
}

func (m *memStore) venueStore() VenueStore { return venueView{m} }

// venueView exposes the venue half; GetByID collides with the booking half.
type venueView struct{ m *memStore }

func (v venueView) Create(ctx context.Context, x *model.Venue) error { return v.m.Create(ctx, x) }

func (v venueView) GetByID(_ context.Context, id string) (*model.Venue, error) {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	x, ok := v.m.venues[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *x
	return &cp, nil
}

func (m *memStore) competitorsOf(id string) []string {
	out := []string{}
	for c := range m.edges[id] {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (m *memStore) copyOf(b *model.Booking, withCompetitors bool) model.Booking {
	cp := *b
	if b.PaymentDeadline != nil {
		d := *b.PaymentDeadline
		cp.PaymentDeadline = &d
	}
	cp.Competitors = []string{}
	if withCompetitors {
		cp.Competitors = m.competitorsOf(b.ID)
	}
	return cp
}

func (m *memStore) link(a, b string) {
	if m.edges[a] == nil {
		m.edges[a] = map[string]struct{}{}
	}
	m.edges[a][b] = struct{}{}
}

func (m *memStore) prune(ids []string) {
	for _, id := range ids {
		for c := range m.edges[id] {
			delete(m.edges[c], id)
		}
		delete(m.edges, id)
	}
}

func (m *memStore) cancelPending(ids []string, reason string, now time.Time) []model.Booking {
	var out []model.Booking
	for _, id := range ids {
		b, ok := m.bookings[id]
		if !ok || b.Status != model.StatusPending || b.IsPaid {
			continue
		}
		b.Status = model.StatusCancelled
		b.CancelReason = reason
		b.UpdatedAt = now
		out = append(out, m.copyOf(b, false))
	}
	return out
}

func (m *memStore) occupying(cur *model.Booking) []model.Booking {
	var out []model.Booking
	for _, b := range m.bookings {
		if b.ID != cur.ID && b.VenueID == cur.VenueID && b.Occupies() && b.OverlapsWith(cur) {
			out = append(out, m.copyOf(b, false))
		}
	}
	return out
}

func (m *memStore) insertPayment(p model.Payment) {
	for _, x := range m.payments {
		if x.TransactionID == p.TransactionID && x.BookingID == p.BookingID {
			return
		}
	}
	m.payments = append(m.payments, p)
}

func (m *memStore) Reserve(_ context.Context, p repository.ReserveParams) (*repository.ReserveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nb := p.Booking
	if v, ok := m.venues[nb.VenueID]; !ok || !v.IsActive {
		return nil, repository.ErrNotFound
	}
	var snap repository.DaySnapshot
	for _, b := range m.bookings {
		if b.Status == model.StatusCancelled {
			continue
		}
		if b.VenueID == nb.VenueID && b.Date == nb.Date {
			snap.Venue = append(snap.Venue, m.copyOf(b, false))
		}
		if b.UserID == nb.UserID && b.Date == nb.Date {
			snap.User = append(snap.User, m.copyOf(b, false))
		}
		if b.UserID == nb.UserID && b.Contending(p.Now) {
			snap.ActivePending++
		}
	}
	plan, err := p.Plan(snap)
	if err != nil {
		return nil, err
	}

	if p.Payment != nil {
		m.insertPayment(*p.Payment)
	}
	stored := m.copyOf(nb, false)
	m.bookings[nb.ID] = &stored

	cancelled := m.cancelPending(plan.Cancel, plan.CancelReason, p.Now)
	m.prune(ids(cancelled))
	for _, c := range plan.Competitors {
		m.link(nb.ID, c)
		m.link(c, nb.ID)
	}

	out := m.copyOf(&stored, false)
	out.Competitors = append([]string{}, plan.Competitors...)
	return &repository.ReserveResult{Booking: &out, Cancelled: cancelled}, nil
}

func (m *memStore) Settle(_ context.Context, p repository.SettleParams) (*repository.SettleResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleErr != nil {
		return nil, m.settleErr
	}

	b, ok := m.bookings[p.BookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if b.IsPaid {
		out := m.copyOf(b, true)
		return &repository.SettleResult{Booking: &out, AlreadyPaid: true}, nil
	}
	cur := m.copyOf(b, true)
	if p.Guard != nil {
		if err := p.Guard(&cur, m.occupying(b)); err != nil {
			return nil, err
		}
	}
	if b.Status != model.StatusPending {
		return nil, repository.ErrStaleState
	}

	won, losers := m.settleLocked(b, &cur, p.Payment, p.GatewayRef, p.Now, p.LoseReason)
	return &repository.SettleResult{Booking: &won, Losers: losers}, nil
}

func (m *memStore) settleLocked(b, cur *model.Booking, pay model.Payment, ref string, now time.Time, reason string) (model.Booking, []model.Booking) {
	pay.BookingID, pay.UserID, pay.VenueID = b.ID, b.UserID, b.VenueID
	m.insertPayment(pay)
	b.IsPaid = true
	b.PaymentStatus = model.PaymentPaid
	b.Status = model.StatusConfirmed
	b.PaymentMethod = pay.Method
	b.GatewayRef = ref
	b.UpdatedAt = now

	losers := m.cancelPending(cur.Competitors, reason, now)
	m.prune(append([]string{b.ID}, ids(losers)...))
	return m.copyOf(b, false), losers
}

// SettleGroup checks every guard before writing anything, so a veto leaves
// the whole group untouched.
func (m *memStore) SettleGroup(_ context.Context, p repository.SettleGroupParams) (*repository.SettleGroupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleErr != nil {
		return nil, m.settleErr
	}
	if len(p.Payments) == 0 {
		return nil, repository.ErrNotFound
	}

	var (
		live []*model.Booking
		curs []model.Booking
		paid int
	)
	for _, pay := range p.Payments {
		b, ok := m.bookings[pay.BookingID]
		if !ok {
			return nil, repository.ErrNotFound
		}
		if b.IsPaid {
			paid++
		}
		live = append(live, b)
		curs = append(curs, m.copyOf(b, true))
	}
	if paid == len(live) {
		return &repository.SettleGroupResult{Bookings: curs, AlreadyPaid: true}, nil
	}
	for i, b := range live {
		if p.Guard != nil {
			if err := p.Guard(&curs[i], m.occupying(b)); err != nil {
				return nil, err
			}
		}
		if b.Status != model.StatusPending || b.IsPaid {
			return nil, repository.ErrStaleState
		}
	}

	out := &repository.SettleGroupResult{}
	for i, b := range live {
		won, losers := m.settleLocked(b, &curs[i], p.Payments[i], p.GatewayRef, p.Now, p.LoseReason)
		out.Bookings = append(out.Bookings, won)
		out.Losers = append(out.Losers, losers...)
	}
	return out, nil
}

func (m *memStore) Join(_ context.Context, p repository.JoinParams) (*repository.JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[p.BookingID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cur := m.copyOf(b, true)
	if p.Guard != nil {
		if err := p.Guard(&cur, m.occupying(b)); err != nil {
			return nil, err
		}
	}
	if b.Mode != model.ModePartial || b.TeamB || b.Status != model.StatusPending {
		return nil, repository.ErrStaleState
	}
	b.TeamB = true
	b.JoinedBy = p.Joiner
	b.Status = model.StatusConfirmed
	b.UpdatedAt = p.Now

	losers := m.cancelPending(cur.Competitors, p.LoseReason, p.Now)
	m.prune(append([]string{b.ID}, ids(losers)...))
	out := m.copyOf(b, false)
	return &repository.JoinResult{Booking: &out, Losers: losers}, nil
}

func (m *memStore) Cancel(_ context.Context, id, reason string, now time.Time, guard func(*model.Booking) error) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cur := m.copyOf(b, true)
	if guard != nil {
		if err := guard(&cur); err != nil {
			return nil, err
		}
	}
	if b.Status == model.StatusCancelled {
		return nil, repository.ErrStaleState
	}
	b.Status = model.StatusCancelled
	b.CancelReason = reason
	b.UpdatedAt = now
	m.prune([]string{id})
	out := m.copyOf(b, false)
	return &out, nil
}

func (m *memStore) MarkPaymentFailed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != model.StatusPending || b.IsPaid {
		return repository.ErrStaleState
	}
	b.PaymentStatus = model.PaymentFailed
	return nil
}

func (m *memStore) AttachGatewayRef(_ context.Context, ref string, bookingIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range bookingIDs {
		b, ok := m.bookings[id]
		if !ok || b.Status != model.StatusPending || b.IsPaid {
			return repository.ErrStaleState
		}
	}
	for _, id := range bookingIDs {
		b := m.bookings[id]
		b.GatewayRef = ref
		b.PaymentStatus = model.PaymentPending
		if !slices.Contains(m.refs[ref], id) {
			m.refs[ref] = append(m.refs[ref], id)
		}
	}
	return nil
}

func (m *memStore) GatewayRefOwners(_ context.Context, ref string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range m.refs[ref] {
		if _, ok := m.bookings[id]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) ListGroup(_ context.Context, groupID string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if b.GroupID == groupID {
			out = append(out, m.copyOf(b, true))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *memStore) SweepExpired(_ context.Context, now time.Time, limit int) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []model.Booking
	for _, b := range m.bookings {
		if len(expired) == limit {
			break
		}
		if b.Expired(now) {
			expired = append(expired, m.copyOf(b, true))
		}
	}
	gone := ids(expired)
	m.prune(gone)
	for _, id := range gone {
		delete(m.bookings, id)
	}
	return expired, nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := m.copyOf(b, true)
	return &out, nil
}

func (m *memStore) ListOccupied(_ context.Context, venueID, date string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if b.VenueID == venueID && b.Date == date && b.Occupies() {
			out = append(out, m.copyOf(b, false))
		}
	}
	return out, nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, m.copyOf(b, true))
		}
	}
	return out, nil
}

func (m *memStore) List(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if (f.VenueID == "" || b.VenueID == f.VenueID) && (f.UserID == "" || b.UserID == f.UserID) &&
			(f.Date == "" || b.Date == f.Date) && (f.Status == "" || b.Status == f.Status) {
			out = append(out, m.copyOf(b, true))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) PaymentsFor(_ context.Context, bookingID string) ([]model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Payment
	for _, p := range m.payments {
		if p.BookingID == bookingID {
			out = append(out, p)
		}
	}
	return out, nil
}

func ids(bs []model.Booking) []string {
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.ID)
	}
	return out
}
