package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	"github.com/iliyamo/property-booking/internal/model"
)

// ErrInvalidSignature is returned by ParseWebhook when the payload was not
// signed with the configured secret.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// StripeConfig configures StripeGateway.  BaseURL and HTTPClient are only
// set when talking to something other than api.stripe.com, e.g. in tests.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// StripeGateway implements Gateway on top of a stripe-go client.  It never
// touches the package-level stripe.Key so several gateways can coexist.
type StripeGateway struct {
	sc            *client.API
	webhookSecret string
	log           *zap.Logger
}

// NewStripeGateway builds a Stripe client with SDK retries disabled; the
// Reconciler owns the retry policy.
func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	bc := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     log.Sugar(),
	}
	if cfg.BaseURL != "" {
		bc.URL = stripe.String(cfg.BaseURL)
	}
	if cfg.HTTPClient != nil {
		bc.HTTPClient = cfg.HTTPClient
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, bc),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, bc),
	})
	return &StripeGateway{sc: sc, webhookSecret: cfg.WebhookSecret, log: log}
}

// MinorUnits converts a decimal amount into the smallest currency unit,
// rounding half away from zero.
func MinorUnits(total decimal.Decimal) int64 {
	return total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// SetupPayment creates a customer, an ephemeral key for it and a card-only
// payment intent.  If a step after customer creation is rejected, the
// customer is deleted best-effort.
func (g *StripeGateway) SetupPayment(ctx context.Context, req SetupRequest) (*SetupResult, error) {
	cp := &stripe.CustomerParams{
		Name:  stripe.String(req.User.Name),
		Email: stripe.String(req.User.Email),
	}
	cp.Context = ctx
	if req.IdempotencyKey != "" {
		cp.SetIdempotencyKey(req.IdempotencyKey + "-customer")
	}
	cus, err := g.sc.Customers.New(cp)
	if err != nil {
		return nil, classify("create customer", err)
	}

	res, err := g.setupForCustomer(ctx, cus.ID, req)
	if err != nil {
		// A retry with the same idempotency key replays this customer, so
		// it must survive transient failures.
		if IsKind(err, KindUnavailable) && req.IdempotencyKey != "" {
			g.log.Warn("payment setup interrupted; keeping customer for retry",
				zap.String("customer_id", cus.ID), zap.Error(err))
			return nil, err
		}
		g.deleteCustomer(ctx, cus.ID)
		return nil, err
	}
	return res, nil
}

func (g *StripeGateway) setupForCustomer(ctx context.Context, customerID string, req SetupRequest) (*SetupResult, error) {
	kp := &stripe.EphemeralKeyParams{
		Customer:      stripe.String(customerID),
		StripeVersion: stripe.String(EphemeralKeyAPI),
	}
	kp.Context = ctx
	key, err := g.sc.EphemeralKeys.New(kp)
	if err != nil {
		return nil, classify("create ephemeral key", err)
	}

	pp := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(MinorUnits(req.TotalPrice)),
		Currency:           stripe.String(Currency),
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{PaymentMethodCard}),
	}
	pp.Context = ctx
	pp.AddMetadata("property_id", req.PropertyID)
	pp.AddMetadata("user_id", req.User.ID)
	pp.AddMetadata("nights", strconv.Itoa(req.Nights))
	if req.IdempotencyKey != "" {
		pp.SetIdempotencyKey(req.IdempotencyKey + "-intent")
	}
	pi, err := g.sc.PaymentIntents.New(pp)
	if err != nil {
		return nil, classify("create payment intent", err)
	}

	return &SetupResult{
		IntentID:     pi.ID,
		ClientSecret: pi.ClientSecret,
		EphemeralKey: key.Secret,
		CustomerID:   customerID,
	}, nil
}

func (g *StripeGateway) deleteCustomer(ctx context.Context, id string) {
	p := &stripe.CustomerParams{}
	p.Context = context.WithoutCancel(ctx)
	if _, err := g.sc.Customers.Del(id, p); err != nil {
		g.log.Warn("failed to delete orphaned customer", zap.String("customer_id", id), zap.Error(err))
	}
}

// UpdateAmount changes the intent amount.  Intents that can no longer be
// modified surface as KindUnexpectedState.
func (g *StripeGateway) UpdateAmount(ctx context.Context, intentID string, total decimal.Decimal, idempotencyKey string) error {
	p := &stripe.PaymentIntentParams{Amount: stripe.Int64(MinorUnits(total))}
	p.Context = ctx
	if idempotencyKey != "" {
		p.SetIdempotencyKey(idempotencyKey)
	}
	if _, err := g.sc.PaymentIntents.Update(intentID, p); err != nil {
		return classify("update payment intent", err)
	}
	return nil
}

// CancelIntent cancels the intent.  An intent that is already canceled or
// succeeded counts as done.
func (g *StripeGateway) CancelIntent(ctx context.Context, intentID string, idempotencyKey string) error {
	p := &stripe.PaymentIntentCancelParams{}
	p.Context = ctx
	if idempotencyKey != "" {
		p.SetIdempotencyKey(idempotencyKey)
	}
	_, err := g.sc.PaymentIntents.Cancel(intentID, p)
	if err == nil {
		return nil
	}
	gerr := classify("cancel payment intent", err)
	if !IsKind(gerr, KindUnexpectedState) {
		return gerr
	}

	gp := &stripe.PaymentIntentParams{}
	gp.Context = ctx
	pi, getErr := g.sc.PaymentIntents.Get(intentID, gp)
	if getErr != nil {
		return classify("get payment intent", getErr)
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusSucceeded:
		g.log.Info("payment intent already settled", zap.String("intent_id", intentID), zap.String("status", string(pi.Status)))
		return nil
	}
	return gerr
}

// ParseWebhook verifies the signature header and extracts the payment
// outcome.  Events the engine does not act on return a nil Outcome.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Outcome, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status model.PaymentStatus
	switch string(ev.Type) {
	case "payment_intent.succeeded":
		status = model.PaymentStatusSucceeded
	case "payment_intent.payment_failed":
		status = model.PaymentStatusFailed
	case "payment_intent.canceled":
		status = model.PaymentStatusCancelled
	default:
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	if pi.ID == "" {
		return nil, errors.New("webhook event carries no payment intent id")
	}
	return &Outcome{IntentID: pi.ID, Status: status}, nil
}

// classify maps a stripe-go error onto a GatewayError.
func classify(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		kind := KindRejected
		switch {
		case se.Code == stripe.ErrorCodePaymentIntentUnexpectedState:
			kind = KindUnexpectedState
		case se.HTTPStatusCode >= http.StatusInternalServerError,
			se.HTTPStatusCode == http.StatusTooManyRequests,
			se.Type == stripe.ErrorTypeAPI:
			kind = KindUnavailable
		}
		return &GatewayError{Op: op, Kind: kind, Err: err}
	}
	return &GatewayError{Op: op, Kind: KindUnavailable, Err: err}
}

var _ Gateway = (*StripeGateway)(nil)
