// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/apperr"
	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// BookingService is the booking engine as the HTTP layer sees it.
type BookingService interface {
	CreateReservation(ctx context.Context, actor model.Actor, req model.CreateReservationRequest) (*model.Booking, error)
	CreateCashReservation(ctx context.Context, actor model.Actor, req model.CreateCashReservationRequest) (*model.Booking, error)
	InitiatePayment(ctx context.Context, actor model.Actor, bookingID, returnURL string) (*model.InitiatePaymentResponse, error)
	VerifySettlement(ctx context.Context, actor model.Actor, bookingID, txnRef string) (*model.Booking, error)
	SettleReturn(ctx context.Context, txnRef string) ([]model.Booking, error)
	JoinAsTeamB(ctx context.Context, actor model.Actor, bookingID string) (*model.Booking, error)
	Cancel(ctx context.Context, actor model.Actor, bookingID string) (*model.Booking, error)

	CreateBulkReservation(ctx context.Context, actor model.Actor, req model.CreateBulkReservationRequest) (*model.BookingGroup, error)
	GetGroup(ctx context.Context, actor model.Actor, groupID string) (*model.BookingGroup, error)
	InitiateGroupPayment(ctx context.Context, actor model.Actor, groupID, returnURL string) (*model.InitiatePaymentResponse, error)
	VerifyGroupSettlement(ctx context.Context, actor model.Actor, groupID, txnRef string) (*model.BookingGroup, error)

	Get(ctx context.Context, actor model.Actor, bookingID string) (*model.Booking, error)
	Payments(ctx context.Context, actor model.Actor, bookingID string) ([]model.Payment, error)
	ListMine(ctx context.Context, actor model.Actor) ([]model.Booking, error)
	ListAll(ctx context.Context, actor model.Actor, f model.BookingFilter) ([]model.Booking, error)
	Availability(ctx context.Context, venueID, date string) (*model.Availability, error)
	Quote(ctx context.Context, venueID, date string, start, end model.Clock, from *model.GeoPoint) (*model.Quote, error)

	CreateVenue(ctx context.Context, actor model.Actor, req model.CreateVenueRequest) (*model.Venue, error)
	GetVenue(ctx context.Context, id string) (*model.Venue, error)
}

// BookingHandler holds all HTTP handlers for the booking API.
type BookingHandler struct {
	svc BookingService
	log *slog.Logger
	// detailed exposes internal error text to callers; off in production.
	detailed bool
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(svc BookingService, log *slog.Logger, detailed bool) *BookingHandler {
	return &BookingHandler{svc: svc, log: log, detailed: detailed}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps a service error to its status code and public text.
func (h *BookingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	}
	writeError(w, status, apperr.Public(err, h.detailed))
}

// ─── Bookings ─────────────────────────────────────────────────────────────────

// CreateReservation handles POST /bookings
func (h *BookingHandler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	b, err := h.svc.CreateReservation(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// CreateCashReservation handles POST /bookings/cash
// Venue owners record a walk-in booking paid at the counter.
func (h *BookingHandler) CreateCashReservation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCashReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	b, err := h.svc.CreateCashReservation(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// InitiatePayment handles POST /bookings/{id}/payment
func (h *BookingHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req model.InitiatePaymentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	res, err := h.svc.InitiatePayment(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), req.ReturnURL)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// refFrom reads the gateway reference from the provider's redirect query
// (pidx or transaction_id) or, for POST, from the JSON body.
func refFrom(r *http.Request) (string, error) {
	if r.Method == http.MethodGet {
		if ref := r.URL.Query().Get("pidx"); ref != "" {
			return ref, nil
		}
		return r.URL.Query().Get("transaction_id"), nil
	}
	var req model.VerifySettlementRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", err
	}
	return req.TransactionID, nil
}

// VerifySettlement handles POST /bookings/{id}/verify and
// GET /bookings/{id}/verify?pidx=...
func (h *BookingHandler) VerifySettlement(w http.ResponseWriter, r *http.Request) {
	ref, err := refFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	b, err := h.svc.VerifySettlement(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"), ref)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PaymentReturn handles GET /payments/return?pidx=...
// It is the provider's browser redirect and carries no token.
func (h *BookingHandler) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	ref, _ := refFrom(r)
	bs, err := h.svc.SettleReturn(r.Context(), ref)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bs})
}

// Join handles POST /bookings/{id}/join
func (h *BookingHandler) Join(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.JoinAsTeamB(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Cancel handles DELETE /bookings/{id}
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Cancel(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetBooking handles GET /bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListPayments handles GET /bookings/{id}/payments
func (h *BookingHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ps, err := h.svc.Payments(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// ListMine handles GET /bookings/me
func (h *BookingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	bs, err := h.svc.ListMine(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

// ListAll handles GET /bookings
// Admin listing filtered by venue_id, user_id, date and status, paged with
// limit and offset.
func (h *BookingHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.BookingFilter{
		VenueID: q.Get("venue_id"),
		UserID:  q.Get("user_id"),
		Date:    q.Get("date"),
		Status:  model.BookingStatus(q.Get("status")),
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	bs, err := h.svc.ListAll(r.Context(), actorFrom(r.Context()), f)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// ─── Booking groups ───────────────────────────────────────────────────────────

// CreateBulkReservation handles POST /bookings/bulk
func (h *BookingHandler) CreateBulkReservation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBulkReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	g, err := h.svc.CreateBulkReservation(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// GetGroup handles GET /bookings/groups/{gid}
func (h *BookingHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.svc.GetGroup(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "gid"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// InitiateGroupPayment handles POST /bookings/groups/{gid}/payment
func (h *BookingHandler) InitiateGroupPayment(w http.ResponseWriter, r *http.Request) {
	var req model.InitiatePaymentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	res, err := h.svc.InitiateGroupPayment(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "gid"), req.ReturnURL)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VerifyGroupSettlement handles POST and GET /bookings/groups/{gid}/verify
func (h *BookingHandler) VerifyGroupSettlement(w http.ResponseWriter, r *http.Request) {
	ref, err := refFrom(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	g, err := h.svc.VerifyGroupSettlement(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "gid"), ref)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ─── Venues ───────────────────────────────────────────────────────────────────

// CreateVenue handles POST /venues
func (h *BookingHandler) CreateVenue(w http.ResponseWriter, r *http.Request) {
	var req model.CreateVenueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	v, err := h.svc.CreateVenue(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetVenue handles GET /venues/{id}
func (h *BookingHandler) GetVenue(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetVenue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Availability handles GET /venues/{id}/availability?date=YYYY-MM-DD
func (h *BookingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}

	av, err := h.svc.Availability(r.Context(), chi.URLParam(r, "id"), date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, av)
}

// Quote handles GET /venues/{id}/quote?date=&start=&end=[&lat=&lng=]
func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := model.ParseClock(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := model.ParseClock(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}
	var from *model.GeoPoint
	if q.Get("lat") != "" || q.Get("lng") != "" {
		lat, lerr := strconv.ParseFloat(q.Get("lat"), 64)
		lng, gerr := strconv.ParseFloat(q.Get("lng"), 64)
		if lerr != nil || gerr != nil {
			writeError(w, http.StatusBadRequest, "lat and lng must both be numbers")
			return
		}
		from = &model.GeoPoint{Lat: lat, Lng: lng}
	}

	quote, err := h.svc.Quote(r.Context(), chi.URLParam(r, "id"), q.Get("date"), start, end, from)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
