// Package payment adapts third-party payment gateways to one initiate/lookup
// contract. Amounts cross this boundary in whole currency units; each
// adapter converts to its provider's minor unit.
package payment

import (
	"context"
	"errors"
)

// Status is a provider status normalized across gateways.
type Status string

const (
	StatusCompleted    Status = "Completed"
	StatusPending      Status = "Pending"
	StatusInitiated    Status = "Initiated"
	StatusFailed       Status = "Failed"
	StatusExpired      Status = "Expired"
	StatusRefunded     Status = "Refunded"
	StatusUserCanceled Status = "User canceled"
)

// ErrUnexpectedResponse is returned when a provider answers with a shape or
// status this package does not understand.
var ErrUnexpectedResponse = errors.New("unexpected payment provider response")

// Customer is optional payer information forwarded to the provider.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// InitiateRequest starts a remote payment.
type InitiateRequest struct {
	Amount    int64
	OrderID   string
	OrderName string
	ReturnURL string
	Customer  Customer
}

// Initiation is the provider's handle for a started payment.
type Initiation struct {
	TransactionRef string
	RedirectURL    string
}

// Lookup is the provider's view of a payment.
type Lookup struct {
	Ref           string
	Status        Status
	Amount        int64 // whole units, 0 when not reported
	TransactionID string
}

// Gateway is a remote payment provider.
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (Initiation, error)
	Lookup(ctx context.Context, ref string) (Lookup, error)
}
