package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

// chargeAPI is the slice of the Omise SDK this adapter uses.
type chargeAPI interface {
	createSource(typ string, amount int64, currency string) (*omise.Source, error)
	createCharge(op *operations.CreateCharge) (*omise.Charge, error)
	retrieveCharge(id string) (*omise.Charge, error)
}

type sdkCharges struct{ c *omise.Client }

func (s sdkCharges) createSource(typ string, amount int64, currency string) (*omise.Source, error) {
	src := &omise.Source{}
	err := s.c.Do(src, &operations.CreateSource{Type: typ, Amount: amount, Currency: currency})
	return src, err
}

func (s sdkCharges) createCharge(op *operations.CreateCharge) (*omise.Charge, error) {
	ch := &omise.Charge{}
	err := s.c.Do(ch, op)
	return ch, err
}

func (s sdkCharges) retrieveCharge(id string) (*omise.Charge, error) {
	ch := &omise.Charge{}
	err := s.c.Do(ch, &operations.RetrieveCharge{ChargeID: id})
	return ch, err
}

// Omise adapts the Omise charges API. A payment is a charge created from an
// offsite source; the charge id is the transaction reference.
type Omise struct {
	api        chargeAPI
	currency   string
	sourceType string
}

// NewOmise constructs an Omise adapter from API keys.
func NewOmise(publicKey, secretKey, currency, sourceType string) (*Omise, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	c.SetDebug(false)
	return &Omise{api: sdkCharges{c: c}, currency: strings.ToLower(currency), sourceType: sourceType}, nil
}

func (o *Omise) Name() string { return "omise" }

func (o *Omise) Initiate(ctx context.Context, in InitiateRequest) (Initiation, error) {
	amount := in.Amount * 100
	ch, err := withContext(ctx, func() (*omise.Charge, error) {
		src, err := o.api.createSource(o.sourceType, amount, o.currency)
		if err != nil {
			return nil, err
		}
		return o.api.createCharge(&operations.CreateCharge{
			Amount:    amount,
			Currency:  o.currency,
			Source:    src.ID,
			ReturnURI: in.ReturnURL,
			Metadata:  map[string]any{"booking_id": in.OrderID},
		})
	})
	if err != nil {
		return Initiation{}, fmt.Errorf("omise initiate: %w", err)
	}
	if ch.ID == "" {
		return Initiation{}, fmt.Errorf("omise initiate: empty charge id: %w", ErrUnexpectedResponse)
	}
	return Initiation{TransactionRef: ch.ID, RedirectURL: ch.AuthorizeURI}, nil
}

func (o *Omise) Lookup(ctx context.Context, ref string) (Lookup, error) {
	ch, err := withContext(ctx, func() (*omise.Charge, error) { return o.api.retrieveCharge(ref) })
	if err != nil {
		return Lookup{}, fmt.Errorf("omise lookup: %w", err)
	}
	var st Status
	switch string(ch.Status) {
	case "successful":
		st = StatusCompleted
	case "pending":
		st = StatusPending
	case "failed":
		st = StatusFailed
	case "expired":
		st = StatusExpired
	case "reversed":
		st = StatusRefunded
	default:
		return Lookup{}, fmt.Errorf("omise lookup: status %q: %w", ch.Status, ErrUnexpectedResponse)
	}
	return Lookup{Ref: ch.ID, Status: st, Amount: ch.Amount / 100, TransactionID: ch.ID}, nil
}

// withContext runs a blocking SDK call and gives up when ctx is done. The
// SDK call itself keeps running until its own HTTP timeout.
func withContext(ctx context.Context, fn func() (*omise.Charge, error)) (*omise.Charge, error) {
	type result struct {
		ch  *omise.Charge
		err error
	}
	done := make(chan result, 1)
	go func() {
		ch, err := fn()
		done <- result{ch, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.ch, r.err
	}
}
