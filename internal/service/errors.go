package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/property-booking/internal/model"
	"github.com/iliyamo/property-booking/internal/repository"
)

// Errors returned by the booking engine.  Gateway failures are returned as
// *payment.GatewayError and are not listed here.
var (
	ErrValidation              = errors.New("validation failed")
	ErrNotFound                = errors.New("not found")
	ErrForbidden               = errors.New("forbidden")
	ErrConflict                = errors.New("property is already booked for the selected dates")
	ErrInvalidStateTransition  = model.ErrInvalidTransition
	ErrMissingPaymentReference = errors.New("booking has no payment reference")
	ErrConcurrentModification  = errors.New("booking was modified concurrently")
	// ErrInconsistentState means the local record and the gateway disagree
	// and the engine could not repair it.  Operators must reconcile by hand.
	ErrInconsistentState = errors.New("inconsistent_state")
)

// storeErr translates repository sentinels into engine errors.
func storeErr(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repository.ErrVersionConflict):
		return fmt.Errorf("%s: %w", what, ErrConcurrentModification)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return fmt.Errorf("%s: %w", what, err)
}
