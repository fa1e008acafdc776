package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/property-booking/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	retryDelay     = 200 * time.Millisecond
)

// Reconciler is the engine's only way to reach the gateway.  Every call is
// bounded by Timeout, retried once when the gateway is unavailable and
// carries an idempotency key shared by both attempts.
type Reconciler struct {
	gw      Gateway
	timeout time.Duration
	delay   time.Duration
	log     *zap.Logger
}

// NewReconciler wraps gw.  A non-positive timeout defaults to 10s.
func NewReconciler(gw Gateway, timeout time.Duration, log *zap.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{gw: gw, timeout: timeout, delay: retryDelay, log: log}
}

func (r *Reconciler) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(r.delay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		err := normalize(actx, op, fn(actx))
		if IsKind(err, KindUnavailable) {
			r.log.Warn("payment gateway unavailable", zap.String("op", op), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	return normalize(ctx, op, err)
}

// normalize makes sure every failure leaving the reconciler is a
// GatewayError; a blown attempt deadline counts as unavailable.
func normalize(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &GatewayError{Op: op, Kind: KindUnavailable, Err: err}
	}
	return &GatewayError{Op: op, Kind: KindUnknown, Err: err}
}

// Setup prepares customer, ephemeral key and intent for a new booking.
func (r *Reconciler) Setup(ctx context.Context, req SetupRequest) (*SetupResult, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	var res *SetupResult
	err := r.call(ctx, "setup", func(ctx context.Context) error {
		var err error
		res, err = r.gw.SetupPayment(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateAmount pushes a new total to the intent.
func (r *Reconciler) UpdateAmount(ctx context.Context, intentID string, total decimal.Decimal) error {
	key := uuid.NewString()
	return r.call(ctx, "update amount", func(ctx context.Context) error {
		return r.gw.UpdateAmount(ctx, intentID, total, key)
	})
}

// CancelIfPending cancels the booking's intent when the local record still
// expects a payment.  Bookings without an intent, or whose payment already
// settled, never reach the gateway.
func (r *Reconciler) CancelIfPending(ctx context.Context, b *model.Booking) error {
	if b.PaymentStatus != model.PaymentStatusPending || b.PaymentIntentID == nil || *b.PaymentIntentID == "" {
		return nil
	}
	return r.cancel(ctx, *b.PaymentIntentID)
}

// Compensate cancels an intent created for a booking that could not be
// persisted.  It runs detached from the caller's cancellation so that a
// client disconnect does not leave the intent open.
func (r *Reconciler) Compensate(ctx context.Context, intentID string) error {
	err := r.cancel(context.WithoutCancel(ctx), intentID)
	if err != nil {
		r.log.Error("compensating intent cancel failed", zap.String("intent_id", intentID), zap.Error(err))
		return err
	}
	r.log.Info("compensated payment intent", zap.String("intent_id", intentID))
	return nil
}

func (r *Reconciler) cancel(ctx context.Context, intentID string) error {
	key := uuid.NewString()
	return r.call(ctx, "cancel", func(ctx context.Context) error {
		return r.gw.CancelIntent(ctx, intentID, key)
	})
}
