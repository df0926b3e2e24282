// Package model defines the core domain types for the futsal booking system.
package model

import (
	"fmt"
	"time"
)

// Role is the caller's role as asserted by the auth token.
type Role string

const (
	RoleUser  Role = "user"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// Actor identifies who is calling a booking operation.
type Actor struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the actor has the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Window is an open/close pair for one day type.
type Window struct {
	Open  Clock `json:"open"`
	Close Clock `json:"close"`
}

// Valid reports whether the window is well formed (open < close).
func (w Window) Valid() bool { return w.Open >= 0 && w.Open < w.Close && w.Close <= 24*60 }

// Contains reports whether [start, end) lies fully inside the window.
func (w Window) Contains(start, end Clock) bool {
	return start >= w.Open && end <= w.Close
}

// OperatingHours holds one window per day type.
type OperatingHours struct {
	Weekday Window `json:"weekday"`
	Weekend Window `json:"weekend"`
	Holiday Window `json:"holiday"`
}

// DayType selects which operating-hours window applies on a date.
type DayType string

const (
	DayWeekday DayType = "weekday"
	DayWeekend DayType = "weekend"
	DayHoliday DayType = "holiday"
)

// DayTypeFor classifies a date. Holiday takes precedence over weekend,
// weekend over weekday.
func DayTypeFor(date time.Time, holiday bool) DayType {
	switch {
	case holiday:
		return DayHoliday
	case date.Weekday() == time.Saturday || date.Weekday() == time.Sunday:
		return DayWeekend
	default:
		return DayWeekday
	}
}

// For returns the window for a day type.
func (h OperatingHours) For(dt DayType) Window {
	switch dt {
	case DayHoliday:
		return h.Holiday
	case DayWeekend:
		return h.Weekend
	default:
		return h.Weekday
	}
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TimeOfDayModifier adjusts the price by the hour the slot starts.
type TimeOfDayModifier struct {
	Enabled bool    `json:"enabled"`
	Morning float64 `json:"morning"` // 06:00-12:00
	Midday  float64 `json:"midday"`  // 12:00-18:00
	Evening float64 `json:"evening"` // 18:00-22:00
}

// PercentModifier is a flat fraction applied when its condition holds.
type PercentModifier struct {
	Enabled    bool    `json:"enabled"`
	Percentage float64 `json:"percentage"`
}

// LocationModifier adjusts the price by the caller's distance to the venue.
type LocationModifier struct {
	Enabled bool    `json:"enabled"`
	Near    float64 `json:"near"`
	Far     float64 `json:"far"`
}

// RatingModifier enables the review-rating adjustment.
type RatingModifier struct {
	Enabled bool `json:"enabled"`
}

// Modifiers is the closed set of pricing adjustments. Each value is a
// fraction of the base price (0.05 = +5%).
type Modifiers struct {
	TimeOfDay TimeOfDayModifier `json:"time_of_day"`
	Holiday   PercentModifier   `json:"holiday"`
	Weekend   PercentModifier   `json:"weekend"`
	Location  LocationModifier  `json:"location"`
	Rating    RatingModifier    `json:"rating"`
}

// Pricing is the base hourly price plus modifiers.
type Pricing struct {
	BasePrice int64     `json:"base_price"`
	Modifiers Modifiers `json:"modifiers"`
}

// Venue is a bookable futsal court.
type Venue struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"owner_id"`
	Name      string         `json:"name"`
	Location  GeoPoint       `json:"location"`
	Hours     OperatingHours `json:"operating_hours"`
	Pricing   Pricing        `json:"pricing"`
	AvgRating *float64       `json:"avg_rating,omitempty"`
	Closures  []string       `json:"closures"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
}

// Bookable checks the venue invariant: all three operating-hour windows must
// be present and well formed.
func (v *Venue) Bookable() error {
	for dt, w := range map[DayType]Window{
		DayWeekday: v.Hours.Weekday,
		DayWeekend: v.Hours.Weekend,
		DayHoliday: v.Hours.Holiday,
	} {
		if !w.Valid() {
			return fmt.Errorf("%s operating hours %s-%s are not well formed", dt, w.Open, w.Close)
		}
	}
	return nil
}

// ClosedOn reports whether date is one of the venue's closure dates.
func (v *Venue) ClosedOn(date string) bool {
	for _, c := range v.Closures {
		if c == date {
			return true
		}
	}
	return false
}

// BookingMode is full (entire venue) or partial (team A now, team B later).
type BookingMode string

const (
	ModeFull    BookingMode = "full"
	ModePartial BookingMode = "partial"
)

// BookingStatus is the lifecycle state of a claim.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// PaymentStatus tracks the payment side of a booking.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// PaymentMethod is how a booking was settled.
type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodGateway PaymentMethod = "gateway"
)

// Booking is one party's claim on a slot.
type Booking struct {
	ID              string        `json:"id"`
	VenueID         string        `json:"venue_id"`
	UserID          string        `json:"user_id"`
	Date            string        `json:"date"`
	Start           Clock         `json:"start_time"`
	End             Clock         `json:"end_time"`
	Price           int64         `json:"price"`
	Mode            BookingMode   `json:"booking_type"`
	TeamA           bool          `json:"team_a"`
	TeamB           bool          `json:"team_b"`
	JoinedBy        string        `json:"joined_by,omitempty"`
	Status          BookingStatus `json:"status"`
	CancelReason    string        `json:"cancel_reason,omitempty"`
	IsPaid          bool          `json:"is_paid"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentMethod   PaymentMethod `json:"payment_method,omitempty"`
	GatewayRef      string        `json:"gateway_ref,omitempty"`
	PaymentDeadline *time.Time    `json:"payment_deadline,omitempty"`
	Competitors     []string      `json:"competing_bookings"`
	GroupID         string        `json:"group_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Duration returns the booked length in minutes.
func (b *Booking) Duration() int { return int(b.End - b.Start) }

// Occupies reports whether the booking holds its slot for availability and
// conflict purposes: paid, or otherwise confirmed, and not cancelled.
func (b *Booking) Occupies() bool {
	return b.Status != StatusCancelled && (b.IsPaid || b.Status == StatusConfirmed)
}

// Contending reports whether the booking is an unsettled claim whose payment
// deadline is still open at now.
func (b *Booking) Contending(now time.Time) bool {
	return b.Status == StatusPending && !b.IsPaid &&
		b.PaymentDeadline != nil && b.PaymentDeadline.After(now)
}

// Expired reports whether an unsettled claim's deadline has passed at now.
func (b *Booking) Expired(now time.Time) bool {
	return b.Status == StatusPending && !b.IsPaid &&
		b.PaymentDeadline != nil && !b.PaymentDeadline.After(now)
}

// OverlapsWith reports whether two bookings share a slot window on the same date.
func (b *Booking) OverlapsWith(o *Booking) bool {
	return b.Date == o.Date && Overlaps(b.Start, b.End, o.Start, o.End)
}

// PaymentRecordStatus is the ledger status of a payment.
type PaymentRecordStatus string

const (
	LedgerPending   PaymentRecordStatus = "pending"
	LedgerCompleted PaymentRecordStatus = "completed"
	LedgerFailed    PaymentRecordStatus = "failed"
)

// Payment is a ledger entry, immutable once completed.
type Payment struct {
	ID            string              `json:"id"`
	BookingID     string              `json:"booking_id"`
	UserID        string              `json:"user_id"`
	VenueID       string              `json:"venue_id"`
	Amount        int64               `json:"amount"`
	Currency      string              `json:"currency"`
	TransactionID string              `json:"transaction_id"`
	Status        PaymentRecordStatus `json:"status"`
	Method        PaymentMethod       `json:"method"`
	Provider      string              `json:"provider,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// Interval is an occupied span on a day.
type Interval struct {
	BookingID string `json:"booking_id"`
	Start     Clock  `json:"start_time"`
	End       Clock  `json:"end_time"`
}

// Availability is the read-only slot-picker projection for a venue and date.
type Availability struct {
	VenueID  string     `json:"venue_id"`
	Date     string     `json:"date"`
	DayType  DayType    `json:"day_type"`
	Open     Window     `json:"operating_hours"`
	Closed   bool       `json:"closed"`
	Occupied []Interval `json:"occupied"`
}

// BookingFilter narrows admin listings.
type BookingFilter struct {
	VenueID string
	UserID  string
	Date    string
	Status  BookingStatus
	Limit   int
	Offset  int
}

// CreateReservationRequest is the payload for a new reservation.
type CreateReservationRequest struct {
	VenueID string      `json:"venue_id"`
	Date    string      `json:"date"`
	Start   *Clock      `json:"start_time"`
	End     *Clock      `json:"end_time"`
	Mode    BookingMode `json:"booking_type"`
	TeamA   *bool       `json:"team_a"`
	TeamB   *bool       `json:"team_b"`
	From    *GeoPoint   `json:"from,omitempty"`
}

// CreateCashReservationRequest is recorded by a venue owner for a walk-in
// customer. CustomerID defaults to the caller.
type CreateCashReservationRequest struct {
	CreateReservationRequest
	CustomerID string `json:"customer_id,omitempty"`
}

// InitiatePaymentRequest asks the gateway for a payment page.
type InitiatePaymentRequest struct {
	ReturnURL string `json:"return_url"`
}

// InitiatePaymentResponse carries the gateway reference and redirect.
type InitiatePaymentResponse struct {
	BookingID      string   `json:"booking_id,omitempty"`
	GroupID        string   `json:"group_id,omitempty"`
	BookingIDs     []string `json:"booking_ids,omitempty"`
	TransactionRef string   `json:"transaction_ref"`
	RedirectURL    string   `json:"payment_url"`
	Amount         int64    `json:"amount"`
}

// VerifySettlementRequest is the payload for verify-settlement.
type VerifySettlementRequest struct {
	TransactionID string `json:"transaction_id"`
}

// CreateBulkReservationRequest books the same window on every matching
// weekday between StartDate and EndDate, inclusive.
type CreateBulkReservationRequest struct {
	VenueID    string      `json:"venue_id"`
	StartDate  string      `json:"start_date"`
	EndDate    string      `json:"end_date"`
	DaysOfWeek []string    `json:"days_of_week"`
	Start      *Clock      `json:"start_time"`
	End        *Clock      `json:"end_time"`
	Mode       BookingMode `json:"booking_type"`
	TeamA      *bool       `json:"team_a"`
	TeamB      *bool       `json:"team_b"`
	From       *GeoPoint   `json:"from,omitempty"`
}

// DateRejection explains why one date of a bulk request was not reserved.
type DateRejection struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// BookingGroup is the set of claims created by one bulk request.
type BookingGroup struct {
	ID         string          `json:"group_id"`
	Bookings   []Booking       `json:"bookings"`
	Rejected   []DateRejection `json:"rejected,omitempty"`
	TotalPrice int64           `json:"total_price"`
}

// CreateVenueRequest bootstraps a venue.
type CreateVenueRequest struct {
	OwnerID   string         `json:"owner_id"`
	Name      string         `json:"name"`
	Location  GeoPoint       `json:"location"`
	Hours     OperatingHours `json:"operating_hours"`
	Pricing   Pricing        `json:"pricing"`
	AvgRating *float64       `json:"avg_rating,omitempty"`
	Closures  []string       `json:"closures"`
	IsActive  bool           `json:"is_active"`
}

// Quote is a priced slot.
type Quote struct {
	VenueID  string `json:"venue_id"`
	Date     string `json:"date"`
	Start    Clock  `json:"start_time"`
	End      Clock  `json:"end_time"`
	Hourly   int64  `json:"hourly_price"`
	Price    int64  `json:"price"`
	Duration int    `json:"duration_minutes"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
