// Package paymenttest provides an in-memory payment.Gateway for tests.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/property-booking/internal/payment"
)

// Intent statuses tracked by Gateway.
const (
	StatusOpen     = "requires_payment_method"
	StatusCanceled = "canceled"
)

// Intent is the fake's view of a payment intent.
type Intent struct {
	ID       string
	Amount   decimal.Decimal
	Status   string
	Customer string
}

// Gateway records calls and keeps intents in memory.  The *Err fields make
// the matching operation fail until they are reset.
type Gateway struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*Intent
	calls   map[string]int

	SetupErr  error
	UpdateErr error
	CancelErr error
}

// New returns an empty fake gateway.
func New() *Gateway {
	return &Gateway{intents: make(map[string]*Intent), calls: make(map[string]int)}
}

func (g *Gateway) SetupPayment(_ context.Context, req payment.SetupRequest) (*payment.SetupResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["setup"]++
	if g.SetupErr != nil {
		return nil, g.SetupErr
	}
	g.seq++
	id := fmt.Sprintf("pi_%d", g.seq)
	cus := fmt.Sprintf("cus_%d", g.seq)
	g.intents[id] = &Intent{ID: id, Amount: req.TotalPrice, Status: StatusOpen, Customer: cus}
	return &payment.SetupResult{
		IntentID:     id,
		ClientSecret: id + "_secret",
		EphemeralKey: fmt.Sprintf("ek_%d", g.seq),
		CustomerID:   cus,
	}, nil
}

func (g *Gateway) UpdateAmount(_ context.Context, intentID string, total decimal.Decimal, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["update"]++
	if g.UpdateErr != nil {
		return g.UpdateErr
	}
	in, ok := g.intents[intentID]
	if !ok {
		return &payment.GatewayError{Op: "update amount", Kind: payment.KindRejected, Err: fmt.Errorf("no such intent %s", intentID)}
	}
	if in.Status != StatusOpen {
		return &payment.GatewayError{Op: "update amount", Kind: payment.KindUnexpectedState, Err: fmt.Errorf("intent %s is %s", intentID, in.Status)}
	}
	in.Amount = total
	return nil
}

func (g *Gateway) CancelIntent(_ context.Context, intentID string, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["cancel"]++
	if g.CancelErr != nil {
		return g.CancelErr
	}
	if in, ok := g.intents[intentID]; ok {
		in.Status = StatusCanceled
	}
	return nil
}

// Intent returns a copy of the intent, or false if it was never created.
func (g *Gateway) Intent(id string) (Intent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	in, ok := g.intents[id]
	if !ok {
		return Intent{}, false
	}
	return *in, true
}

// Calls reports how many times op ("setup", "update" or "cancel") ran.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Unavailable is a ready-made transient failure.
func Unavailable(op string) error {
	return &payment.GatewayError{Op: op, Kind: payment.KindUnavailable, Err: fmt.Errorf("connection reset")}
}

var _ payment.Gateway = (*Gateway)(nil)
