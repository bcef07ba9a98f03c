package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Classified(t *testing.T) {
	err := fmt.Errorf("book: %w", SlotConflict("slot %s already booked", "10:00"))
	if KindOf(err) != KindSlotConflict {
		t.Errorf("expected slot conflict, got %v", KindOf(err))
	}
	if !errors.Is(err, ErrSlotConflict) {
		t.Error("expected errors.Is to match ErrSlotConflict")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("slot conflict must be distinguishable from generic conflict")
	}
}

func TestKindOf_Unclassified(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("expected unclassified error to be internal")
	}
}

func TestRetryable_OnlyTransient(t *testing.T) {
	if !Retryable(Transient(context.DeadlineExceeded, "insert booking")) {
		t.Error("expected transient error to be retryable")
	}
	for _, err := range []error{
		Validation("bad"), NotFound("gone"), SlotConflict("taken"),
		Conflict("dup"), Forbidden("no"), errors.New("x"),
	} {
		if Retryable(err) {
			t.Errorf("expected %v to be non-retryable", err)
		}
	}
}

func TestTransient_Unwraps(t *testing.T) {
	err := Transient(context.DeadlineExceeded, "insert booking")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be reachable")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:   http.StatusBadRequest,
		KindNotFound:     http.StatusNotFound,
		KindSlotConflict: http.StatusConflict,
		KindConflict:     http.StatusConflict,
		KindForbidden:    http.StatusForbidden,
		KindTransient:    http.StatusServiceUnavailable,
		KindInternal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", kind, got, want)
		}
	}
}

func TestToHTTP_SlotConflictCode(t *testing.T) {
	he := ToHTTP(SlotConflict("already booked"))
	if he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", he.Code)
	}
	body, ok := he.Message.(Body)
	if !ok {
		t.Fatalf("expected Body, got %T", he.Message)
	}
	if body.Code != "slot_conflict" {
		t.Errorf("expected slot_conflict code, got %q", body.Code)
	}
}

func TestToHTTP_InternalHidesCause(t *testing.T) {
	he := ToHTTP(errors.New("password=secret"))
	body := he.Message.(Body)
	if body.Message != "internal server error" {
		t.Errorf("expected generic message, got %q", body.Message)
	}
}
