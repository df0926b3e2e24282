package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Router builds the HTTP API.
func Router(h *BookingHandler, jwtSecret string, log *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Trace)
	r.Use(Logger(log))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	// Gateway redirect; the reference itself is the credential.
	r.Get("/payments/return", h.PaymentReturn)

	// Public read side
	r.Route("/venues", func(r chi.Router) {
		r.Get("/{id}", h.GetVenue)
		r.Get("/{id}/availability", h.Availability)
		r.Get("/{id}/quote", h.Quote)
		r.With(Authenticate(jwtSecret)).Post("/", h.CreateVenue)
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Use(Authenticate(jwtSecret))
		r.Post("/", h.CreateReservation)
		r.Post("/cash", h.CreateCashReservation)
		r.Post("/bulk", h.CreateBulkReservation)
		r.Get("/groups/{gid}", h.GetGroup)
		r.Post("/groups/{gid}/payment", h.InitiateGroupPayment)
		r.Post("/groups/{gid}/verify", h.VerifyGroupSettlement)
		r.Get("/groups/{gid}/verify", h.VerifyGroupSettlement)
		r.Get("/", h.ListAll)
		r.Get("/me", h.ListMine)
		r.Get("/{id}", h.GetBooking)
		r.Get("/{id}/payments", h.ListPayments)
		r.Post("/{id}/join", h.Join)
		r.Post("/{id}/payment", h.InitiatePayment)
		r.Post("/{id}/verify", h.VerifySettlement)
		r.Get("/{id}/verify", h.VerifySettlement)
		r.Delete("/{id}", h.Cancel)
	})

	return r
}
