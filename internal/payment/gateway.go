// Package payment keeps bookings in step with the external payment gateway.
// The engine talks to a Gateway through a Reconciler, which bounds every
// call with a timeout, retries transient failures once and attaches
// idempotency keys.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/property-booking/internal/model"
)

// Currency and API version pinned for every intent and ephemeral key.
const (
	Currency          = "inr"
	PaymentMethodCard = "card"
	EphemeralKeyAPI   = "2024-11-20.acacia"
)

// SetupRequest carries what the gateway needs to prepare a payment for a
// new booking.
type SetupRequest struct {
	User           model.User
	PropertyID     string
	TotalPrice     decimal.Decimal
	Nights         int
	IdempotencyKey string
}

// SetupResult is what the client needs to confirm the payment.
type SetupResult struct {
	IntentID     string
	ClientSecret string
	EphemeralKey string
	CustomerID   string
}

// Gateway is the port implemented by payment providers.
type Gateway interface {
	SetupPayment(ctx context.Context, req SetupRequest) (*SetupResult, error)
	UpdateAmount(ctx context.Context, intentID string, total decimal.Decimal, idempotencyKey string) error
	CancelIntent(ctx context.Context, intentID string, idempotencyKey string) error
}

// Kind classifies gateway failures.
type Kind int

const (
	KindUnknown Kind = iota
	// KindUnavailable covers network errors, timeouts and 5xx answers.
	KindUnavailable
	// KindRejected is a well-formed refusal such as an invalid request.
	KindRejected
	// KindUnexpectedState means the intent is already in a state that does
	// not allow the operation, e.g. an amount update after capture.
	KindUnexpectedState
)

func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindRejected:
		return "rejected"
	case KindUnexpectedState:
		return "unexpected_state"
	default:
		return "unknown"
	}
}

// GatewayError wraps every failure returned by a Gateway.
type GatewayError struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsKind reports whether err is a GatewayError of kind k.
func IsKind(err error, k Kind) bool {
	var ge *GatewayError
	return errors.As(err, &ge) && ge.Kind == k
}

// Outcome is a verified gateway notification about an intent.
type Outcome struct {
	IntentID string
	Status   model.PaymentStatus
}
