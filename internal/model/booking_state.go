package model

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when a booking is asked to move to a state
// its current state does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// IsTerminal reports whether the booking reached completed or cancelled.
// Terminal bookings accept no further mutation.
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusCompleted || b.Status == BookingStatusCancelled
}

// CheckModifiable guards every patch entry point.
func (b *Booking) CheckModifiable() error {
	if b.IsTerminal() {
		return fmt.Errorf("booking is %s: %w", b.Status, ErrInvalidTransition)
	}
	return nil
}

// CancelTransition returns the changes that cancel b.  A booking that is
// already cancelled yields noop=true so repeated cancels converge on the same
// state; a completed booking cannot be cancelled.
func (b *Booking) CancelTransition() (changes BookingChanges, noop bool, err error) {
	switch b.Status {
	case BookingStatusCancelled:
		return BookingChanges{}, true, nil
	case BookingStatusCompleted:
		return BookingChanges{}, false, fmt.Errorf("cannot cancel a completed booking: %w", ErrInvalidTransition)
	}
	status := BookingStatusCancelled
	payment := PaymentStatusCancelled
	return BookingChanges{Status: &status, PaymentStatus: &payment}, false, nil
}

// PaymentOutcomeTransition maps a gateway outcome onto a pending booking:
// succeeded confirms it, failed or cancelled cancels it.  Outcomes delivered
// for a booking that already left pending are ignored (noop=true), which
// makes replayed gateway notifications harmless.  The exception is a
// payment that succeeded after the booking was cancelled: the gateway holds
// the money, so the booking records it and is flagged out of sync.
func (b *Booking) PaymentOutcomeTransition(outcome PaymentStatus) (changes BookingChanges, noop bool, err error) {
	if b.CapturedAfterCancel(outcome) {
		flag := true
		return BookingChanges{PaymentStatus: &outcome, PaymentOutOfSync: &flag}, false, nil
	}
	if b.Status != BookingStatusPending || b.PaymentStatus != PaymentStatusPending {
		return BookingChanges{}, true, nil
	}
	var status BookingStatus
	switch outcome {
	case PaymentStatusSucceeded:
		status = BookingStatusConfirmed
	case PaymentStatusFailed, PaymentStatusCancelled:
		status = BookingStatusCancelled
	default:
		return BookingChanges{}, false, fmt.Errorf("unknown payment outcome %q: %w", outcome, ErrInvalidTransition)
	}
	return BookingChanges{Status: &status, PaymentStatus: &outcome}, false, nil
}

// CapturedAfterCancel reports whether a succeeded outcome reached a booking
// that was already cancelled and has not recorded it yet.
func (b *Booking) CapturedAfterCancel(outcome PaymentStatus) bool {
	return outcome == PaymentStatusSucceeded && b.Status == BookingStatusCancelled &&
		b.PaymentStatus != PaymentStatusSucceeded
}

// CompleteTransition moves a confirmed booking whose stay has ended to
// completed.
func (b *Booking) CompleteTransition() (BookingChanges, error) {
	if b.Status != BookingStatusConfirmed {
		return BookingChanges{}, fmt.Errorf("cannot complete a %s booking: %w", b.Status, ErrInvalidTransition)
	}
	status := BookingStatusCompleted
	return BookingChanges{Status: &status}, nil
}
