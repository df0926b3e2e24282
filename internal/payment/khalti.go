package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Khalti is a client for the Khalti ePayment API.
type Khalti struct {
	base       string
	secret     string
	websiteURL string
	hc         *http.Client
}

// NewKhalti constructs a Khalti client. base is the API root, e.g.
// https://a.khalti.com/api/v2.
func NewKhalti(base, secretKey, websiteURL string) *Khalti {
	return &Khalti{
		base:       strings.TrimRight(base, "/"),
		secret:     secretKey,
		websiteURL: websiteURL,
		hc:         &http.Client{Timeout: 15 * time.Second},
	}
}

func (k *Khalti) Name() string { return "khalti" }

type khaltiCustomer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type khaltiInitiateBody struct {
	ReturnURL         string          `json:"return_url"`
	WebsiteURL        string          `json:"website_url"`
	Amount            int64           `json:"amount"`
	PurchaseOrderID   string          `json:"purchase_order_id"`
	PurchaseOrderName string          `json:"purchase_order_name"`
	CustomerInfo      *khaltiCustomer `json:"customer_info,omitempty"`
}

type khaltiInitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
}

type khaltiLookupResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int64  `json:"total_amount"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

// Initiate starts an ePayment. Amount is converted to paisa.
func (k *Khalti) Initiate(ctx context.Context, in InitiateRequest) (Initiation, error) {
	body := khaltiInitiateBody{
		ReturnURL:         in.ReturnURL,
		WebsiteURL:        k.websiteURL,
		Amount:            in.Amount * 100,
		PurchaseOrderID:   in.OrderID,
		PurchaseOrderName: in.OrderName,
	}
	if in.Customer != (Customer{}) {
		body.CustomerInfo = &khaltiCustomer{Name: in.Customer.Name, Email: in.Customer.Email, Phone: in.Customer.Phone}
	}

	var out khaltiInitiateResponse
	if err := k.post(ctx, "/epayment/initiate/", body, &out); err != nil {
		return Initiation{}, err
	}
	if out.Pidx == "" || out.PaymentURL == "" {
		return Initiation{}, fmt.Errorf("khalti initiate: missing pidx or payment_url: %w", ErrUnexpectedResponse)
	}
	return Initiation{TransactionRef: out.Pidx, RedirectURL: out.PaymentURL}, nil
}

// Lookup fetches the status of a payment by pidx.
func (k *Khalti) Lookup(ctx context.Context, pidx string) (Lookup, error) {
	var out khaltiLookupResponse
	if err := k.post(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx}, &out); err != nil {
		return Lookup{}, err
	}
	st, ok := khaltiStatuses[out.Status]
	if !ok {
		return Lookup{}, fmt.Errorf("khalti lookup: status %q: %w", out.Status, ErrUnexpectedResponse)
	}
	return Lookup{
		Ref:           pidx,
		Status:        st,
		Amount:        out.TotalAmount / 100,
		TransactionID: out.TransactionID,
	}, nil
}

var khaltiStatuses = map[string]Status{
	"Completed":          StatusCompleted,
	"Pending":            StatusPending,
	"Initiated":          StatusInitiated,
	"Expired":            StatusExpired,
	"Refunded":           StatusRefunded,
	"Partially Refunded": StatusRefunded,
	"User canceled":      StatusUserCanceled,
	"Failed":             StatusFailed,
}

func (k *Khalti) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+k.secret)
	req.Header.Set("Content-Type", "application/json")

	res, err := k.hc.Do(req)
	if err != nil {
		return fmt.Errorf("khalti %s: %w", path, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("khalti %s: read body: %w", path, err)
	}
	if res.StatusCode >= 400 {
		var e struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(body, &e)
		if e.Detail != "" {
			return fmt.Errorf("khalti %s: %s (status=%d): %w", path, e.Detail, res.StatusCode, ErrUnexpectedResponse)
		}
		return fmt.Errorf("khalti %s: status=%d: %w", path, res.StatusCode, ErrUnexpectedResponse)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("khalti %s: decode: %v: %w", path, err, ErrUnexpectedResponse)
	}
	return nil
}
