package model

import (
	"errors"
	"testing"
)

func TestCheckModifiable(t *testing.T) {
	for _, st := range []BookingStatus{BookingStatusPending, BookingStatusConfirmed} {
		b := &Booking{Status: st}
		if err := b.CheckModifiable(); err != nil {
			t.Fatalf("%s booking should be modifiable: %v", st, err)
		}
	}
	for _, st := range []BookingStatus{BookingStatusCancelled, BookingStatusCompleted} {
		b := &Booking{Status: st}
		if err := b.CheckModifiable(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("%s booking: expected ErrInvalidTransition, got %v", st, err)
		}
	}
}

func TestCancelTransition(t *testing.T) {
	b := &Booking{Status: BookingStatusPending, PaymentStatus: PaymentStatusPending}
	changes, noop, err := b.CancelTransition()
	if err != nil || noop {
		t.Fatalf("cancel pending: noop=%v err=%v", noop, err)
	}
	changes.Apply(b)
	if b.Status != BookingStatusCancelled || b.PaymentStatus != PaymentStatusCancelled {
		t.Fatalf("unexpected state after cancel: %s/%s", b.Status, b.PaymentStatus)
	}

	_, noop, err = b.CancelTransition()
	if err != nil || !noop {
		t.Fatalf("second cancel should be a no-op, noop=%v err=%v", noop, err)
	}

	done := &Booking{Status: BookingStatusCompleted}
	if _, _, err := done.CancelTransition(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected completed cancel to fail, got %v", err)
	}
}

func TestPaymentOutcomeTransition(t *testing.T) {
	cases := []struct {
		outcome     PaymentStatus
		wantStatus  BookingStatus
		wantPayment PaymentStatus
	}{
		{PaymentStatusSucceeded, BookingStatusConfirmed, PaymentStatusSucceeded},
		{PaymentStatusFailed, BookingStatusCancelled, PaymentStatusFailed},
		{PaymentStatusCancelled, BookingStatusCancelled, PaymentStatusCancelled},
	}
	for _, tc := range cases {
		b := &Booking{Status: BookingStatusPending, PaymentStatus: PaymentStatusPending}
		changes, noop, err := b.PaymentOutcomeTransition(tc.outcome)
		if err != nil || noop {
			t.Fatalf("%s: noop=%v err=%v", tc.outcome, noop, err)
		}
		changes.Apply(b)
		if b.Status != tc.wantStatus || b.PaymentStatus != tc.wantPayment {
			t.Fatalf("%s: got %s/%s", tc.outcome, b.Status, b.PaymentStatus)
		}
		if _, noop, _ := b.PaymentOutcomeTransition(tc.outcome); !noop {
			t.Fatalf("%s: replayed outcome should be a no-op", tc.outcome)
		}
	}
}

func TestPaymentSucceededAfterCancelIsFlagged(t *testing.T) {
	b := &Booking{Status: BookingStatusCancelled, PaymentStatus: PaymentStatusCancelled}
	changes, noop, err := b.PaymentOutcomeTransition(PaymentStatusSucceeded)
	if err != nil || noop {
		t.Fatalf("noop=%v err=%v", noop, err)
	}
	changes.Apply(b)
	if b.Status != BookingStatusCancelled || b.PaymentStatus != PaymentStatusSucceeded || !b.PaymentOutOfSync {
		t.Fatalf("got %s/%s out_of_sync=%v", b.Status, b.PaymentStatus, b.PaymentOutOfSync)
	}
	if _, noop, _ := b.PaymentOutcomeTransition(PaymentStatusSucceeded); !noop {
		t.Fatal("replayed capture should be a no-op")
	}
	failed := &Booking{Status: BookingStatusCancelled, PaymentStatus: PaymentStatusCancelled}
	if _, noop, _ := failed.PaymentOutcomeTransition(PaymentStatusFailed); !noop {
		t.Fatal("failed outcome on a cancelled booking should be a no-op")
	}
}

func TestCompleteTransition(t *testing.T) {
	b := &Booking{Status: BookingStatusConfirmed}
	changes, err := b.CompleteTransition()
	if err != nil {
		t.Fatalf("complete confirmed: %v", err)
	}
	changes.Apply(b)
	if b.Status != BookingStatusCompleted {
		t.Fatalf("expected completed, got %s", b.Status)
	}
	if _, err := (&Booking{Status: BookingStatusPending}).CompleteTransition(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected pending completion to fail, got %v", err)
	}
}
