package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := Conflictf("slot %s taken", "10:00")
	wrapped := fmt.Errorf("create: %w", base)

	if got := KindOf(wrapped); got != Conflict {
		t.Fatalf("KindOf(wrapped) = %q, want %q", got, Conflict)
	}
	if got := KindOf(errors.New("boom")); got != Consistency {
		t.Fatalf("KindOf(plain) = %q, want %q", got, Consistency)
	}
	if !Is(wrapped, Conflict) || Is(wrapped, NotFound) {
		t.Fatal("Is did not follow the wrap chain")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		Validation:  http.StatusBadRequest,
		Conflict:    http.StatusConflict,
		NotFound:    http.StatusNotFound,
		Forbidden:   http.StatusForbidden,
		Expired:     http.StatusGone,
		Gateway:     http.StatusBadGateway,
		Unsettled:   http.StatusPaymentRequired,
		Consistency: http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := HTTPStatus(k); got != want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", k, got, want)
		}
	}
}

func TestPublic(t *testing.T) {
	gw := Wrap(Gateway, errors.New("dial tcp: timeout"), "payment lookup failed")

	if got := Public(gw, false); got != "payment provider unavailable, please retry" {
		t.Errorf("production gateway message = %q", got)
	}
	if got := Public(gw, true); got != "payment lookup failed: dial tcp: timeout" {
		t.Errorf("detailed gateway message = %q", got)
	}
	v := Validationf("duration must be between 30 and 120 minutes")
	if got := Public(v, false); got != v.Message {
		t.Errorf("validation message hidden in production: %q", got)
	}
	if got := Public(errors.New("pq: broken"), false); got != "internal error, please retry" {
		t.Errorf("plain error leaked: %q", got)
	}
}
