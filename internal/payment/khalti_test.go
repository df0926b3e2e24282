package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func khaltiServer(t *testing.T, lookupStatus string, lookupAmount int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/epayment/initiate/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Key sk_test" {
			t.Errorf("Authorization = %q", got)
		}
		var body khaltiInitiateBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode initiate: %v", err)
			return
		}
		if body.Amount != 150000 {
			t.Errorf("amount = %d paisa, want 150000", body.Amount)
		}
		if body.PurchaseOrderID != "booking-1" {
			t.Errorf("purchase_order_id = %q", body.PurchaseOrderID)
		}
		_ = json.NewEncoder(w).Encode(khaltiInitiateResponse{Pidx: "pidx-1", PaymentURL: "https://pay.khalti.com/?pidx=pidx-1"})
	})
	mux.HandleFunc("/epayment/lookup/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["pidx"] == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not found."}`))
			return
		}
		_ = json.NewEncoder(w).Encode(khaltiLookupResponse{
			Pidx: body["pidx"], TotalAmount: lookupAmount, Status: lookupStatus, TransactionID: "txn-9",
		})
	})
	return httptest.NewServer(mux)
}

func TestKhaltiInitiate(t *testing.T) {
	srv := khaltiServer(t, "Completed", 150000)
	defer srv.Close()

	k := NewKhalti(srv.URL+"/", "sk_test", "http://localhost")
	in, err := k.Initiate(context.Background(), InitiateRequest{
		Amount: 1500, OrderID: "booking-1", OrderName: "Court A 10:00-11:00", ReturnURL: "http://localhost/return",
	})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if in.TransactionRef != "pidx-1" || in.RedirectURL == "" {
		t.Fatalf("Initiation = %+v", in)
	}
}

func TestKhaltiLookup(t *testing.T) {
	cases := []struct {
		status string
		want   Status
	}{
		{"Completed", StatusCompleted},
		{"Pending", StatusPending},
		{"User canceled", StatusUserCanceled},
		{"Expired", StatusExpired},
	}
	for _, c := range cases {
		t.Run(c.status, func(t *testing.T) {
			srv := khaltiServer(t, c.status, 150000)
			defer srv.Close()

			got, err := NewKhalti(srv.URL, "sk_test", "").Lookup(context.Background(), "pidx-1")
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if got.Status != c.want || got.Amount != 1500 || got.TransactionID != "txn-9" {
				t.Fatalf("Lookup = %+v", got)
			}
		})
	}
}

func TestKhaltiLookupErrors(t *testing.T) {
	srv := khaltiServer(t, "Sideways", 0)
	defer srv.Close()
	k := NewKhalti(srv.URL, "sk_test", "")

	if _, err := k.Lookup(context.Background(), "pidx-1"); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("unknown status err = %v", err)
	}
	if _, err := k.Lookup(context.Background(), "missing"); !errors.Is(err, ErrUnexpectedResponse) {
		t.Errorf("404 err = %v", err)
	}
}

func TestKhaltiLookupHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewKhalti(srv.URL, "sk_test", "").Lookup(ctx, "pidx-1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
