// Package service implements the booking engine: availability, pricing,
// the booking lifecycle and keeping each booking in step with its payment
// intent.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/property-booking/internal/lock"
	"github.com/iliyamo/property-booking/internal/model"
	"github.com/iliyamo/property-booking/internal/payment"
	"github.com/iliyamo/property-booking/internal/queue"
	"github.com/iliyamo/property-booking/internal/repository"
)

const dateLayout = "2006-01-02"

// Notifier receives booking events.  Delivery is best-effort: failures are
// logged and never fail the request.
type Notifier interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// Payments is the slice of payment.Reconciler the engine uses.
type Payments interface {
	Setup(ctx context.Context, req payment.SetupRequest) (*payment.SetupResult, error)
	UpdateAmount(ctx context.Context, intentID string, total decimal.Decimal) error
	CancelIfPending(ctx context.Context, b *model.Booking) error
	Compensate(ctx context.Context, intentID string) error
}

// BookingService coordinates the store, the property lease and the payment
// gateway.  Gateway calls are never made while a lease is held.
type BookingService struct {
	bookings   repository.BookingStore
	properties repository.PropertyStore
	avail      *AvailabilityChecker
	payments   Payments
	locker     lock.Locker
	notifier   Notifier
	log        *zap.Logger
	now        func() time.Time
	retryDelay time.Duration
}

// Deps groups BookingService collaborators.  Notifier and Logger are
// optional.
type Deps struct {
	Bookings   repository.BookingStore
	Properties repository.PropertyStore
	Payments   Payments
	Locker     lock.Locker
	Notifier   Notifier
	Logger     *zap.Logger
}

func NewBookingService(d Deps) *BookingService {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingService{
		bookings:   d.Bookings,
		properties: d.Properties,
		avail:      NewAvailabilityChecker(d.Bookings),
		payments:   d.Payments,
		locker:     d.Locker,
		notifier:   d.Notifier,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
		retryDelay: 10 * time.Millisecond,
	}
}

// CreateInput is a validated create request.
type CreateInput struct {
	PropertyID      string
	CheckIn         time.Time
	CheckOut        time.Time
	GuestCount      int
	SpecialRequests *string
}

// CreateResult carries the stored booking and what the client needs to
// confirm the payment.
type CreateResult struct {
	Booking *model.Booking
	Payment *payment.SetupResult
}

// Create reserves the window and opens a payment intent for it.
func (s *BookingService) Create(ctx context.Context, user model.User, in CreateInput) (*CreateResult, error) {
	w := model.Window{CheckIn: in.CheckIn, CheckOut: in.CheckOut}
	if !w.Valid() {
		return nil, fmt.Errorf("%w: check_in must be before check_out", ErrValidation)
	}
	if in.GuestCount < 1 {
		return nil, fmt.Errorf("%w: guest_count must be at least 1", ErrValidation)
	}

	prop, err := s.properties.GetProperty(ctx, in.PropertyID)
	if err != nil {
		return nil, storeErr("property "+in.PropertyID, err)
	}

	// Cheap rejection before spending a gateway round trip.
	if err := s.ensureFree(ctx, in.PropertyID, w, ""); err != nil {
		return nil, err
	}

	quote := PriceWindow(prop, w)
	setup, err := s.payments.Setup(ctx, payment.SetupRequest{
		User:       user,
		PropertyID: in.PropertyID,
		TotalPrice: quote.Total,
		Nights:     quote.Nights,
	})
	if err != nil {
		return nil, err
	}

	intent := setup.IntentID
	b := &model.Booking{
		ID:              uuid.NewString(),
		PropertyID:      in.PropertyID,
		UserID:          user.ID,
		CheckIn:         in.CheckIn,
		CheckOut:        in.CheckOut,
		GuestCount:      in.GuestCount,
		SpecialRequests: in.SpecialRequests,
		TotalPrice:      quote.Total,
		Status:          model.BookingStatusPending,
		PaymentStatus:   model.PaymentStatusPending,
		PaymentIntentID: &intent,
	}
	err = s.withLease(ctx, in.PropertyID, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, in.PropertyID, w, ""); err != nil {
			return err
		}
		return storeErr("create booking", s.bookings.Create(ctx, b))
	})
	if err != nil {
		if cerr := s.payments.Compensate(ctx, intent); cerr != nil {
			s.log.Error("booking not stored and payment intent left open",
				zap.String("intent_id", intent), zap.String("property_id", in.PropertyID), zap.Error(cerr))
			return nil, fmt.Errorf("%w: %w; cancel intent %s: %v", ErrInconsistentState, err, intent, cerr)
		}
		return nil, err
	}

	s.log.Info("booking created", zap.String("booking_id", b.ID), zap.String("property_id", b.PropertyID),
		zap.String("intent_id", intent), zap.String("total", b.TotalPrice.String()))
	s.notify(ctx, queue.EventBookingCreated, b)
	return &CreateResult{Booking: b, Payment: setup}, nil
}

// Get returns the caller's booking.
func (s *BookingService) Get(ctx context.Context, user model.User, id string) (*model.Booking, error) {
	b, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr("booking "+id, err)
	}
	if b.UserID != user.ID {
		return nil, fmt.Errorf("booking %s: %w", id, ErrForbidden)
	}
	return b, nil
}

// Page is one page of a user's bookings.
type Page struct {
	Bookings   []model.Booking `json:"bookings"`
	TotalCount int             `json:"totalCount"`
	Page       int             `json:"page"`
	PageSize   int             `json:"pageSize"`
	TotalPages int             `json:"totalPages"`
}

// Paging limits for List.  MaxPage keeps the row offset well inside int32.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	MaxPage         = math.MaxInt32 / MaxPageSize
)

// List returns the caller's bookings newest first.  Out-of-range paging
// values fall back to the defaults.
func (s *BookingService) List(ctx context.Context, user model.User, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var (
		items []model.Booking
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.bookings.ListByUser(gctx, user.ID, (page-1)*pageSize, pageSize)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.bookings.CountByUser(gctx, user.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	return &Page{
		Bookings:   items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// PatchInput holds the fields a guest may change.  Nil fields are kept.
type PatchInput struct {
	CheckIn         *time.Time
	CheckOut        *time.Time
	GuestCount      *int
	SpecialRequests *string
}

// Patch applies a partial update.  A change of dates re-runs availability
// and pricing and pushes the new amount to the payment intent; if the
// gateway refuses, the dates and price are restored.
func (s *BookingService) Patch(ctx context.Context, user model.User, id string, in PatchInput) (*model.Booking, error) {
	b, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := b.CheckModifiable(); err != nil {
		return nil, err
	}
	if in.GuestCount != nil && *in.GuestCount < 1 {
		return nil, fmt.Errorf("%w: guest_count must be at least 1", ErrValidation)
	}

	changes := model.BookingChanges{GuestCount: in.GuestCount, SpecialRequests: in.SpecialRequests}
	w := b.Window()
	if in.CheckIn != nil {
		w.CheckIn = *in.CheckIn
	}
	if in.CheckOut != nil {
		w.CheckOut = *in.CheckOut
	}

	if w.Equal(b.Window()) {
		if changes.Empty() {
			return b, nil
		}
		updated, err := s.bookings.Update(ctx, id, b.Version, changes)
		if err != nil {
			return nil, storeErr("update booking "+id, err)
		}
		s.notify(ctx, queue.EventBookingUpdated, updated)
		return updated, nil
	}

	if !w.Valid() {
		return nil, fmt.Errorf("%w: check_in must be before check_out", ErrValidation)
	}
	prop, err := s.properties.GetProperty(ctx, b.PropertyID)
	if err != nil {
		return nil, storeErr("property "+b.PropertyID, err)
	}
	quote := PriceWindow(prop, w)
	priceChanged := !quote.Total.Equal(b.TotalPrice)
	if priceChanged && (b.PaymentIntentID == nil || *b.PaymentIntentID == "") {
		return nil, fmt.Errorf("booking %s: %w", id, ErrMissingPaymentReference)
	}
	changes.CheckIn = &w.CheckIn
	changes.CheckOut = &w.CheckOut
	changes.TotalPrice = &quote.Total

	var updated *model.Booking
	err = s.withLease(ctx, b.PropertyID, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, b.PropertyID, w, id); err != nil {
			return err
		}
		var err error
		updated, err = s.bookings.Update(ctx, id, b.Version, changes)
		return storeErr("update booking "+id, err)
	})
	if err != nil {
		return nil, err
	}

	if priceChanged {
		if err := s.payments.UpdateAmount(ctx, *b.PaymentIntentID, quote.Total); err != nil {
			return nil, s.rollbackWindow(ctx, b, updated, err)
		}
	}

	s.log.Info("booking rescheduled", zap.String("booking_id", id),
		zap.String("check_in", w.CheckIn.Format(dateLayout)), zap.String("check_out", w.CheckOut.Format(dateLayout)),
		zap.String("total", quote.Total.String()))
	s.notify(ctx, queue.EventBookingUpdated, updated)
	return updated, nil
}

// rollbackWindow restores prev's window and price after the gateway refused
// the new amount.  The old window may have been taken in the meantime, so
// the restore runs under the lease with a fresh availability check.  When
// the restore fails the booking is flagged out of sync.
func (s *BookingService) rollbackWindow(ctx context.Context, prev, updated *model.Booking, cause error) error {
	ctx = context.WithoutCancel(ctx)
	restore := model.BookingChanges{
		CheckIn:    &prev.CheckIn,
		CheckOut:   &prev.CheckOut,
		TotalPrice: &prev.TotalPrice,
	}
	err := s.withLease(ctx, prev.PropertyID, func(ctx context.Context) error {
		if err := s.ensureFree(ctx, prev.PropertyID, prev.Window(), prev.ID); err != nil {
			return err
		}
		_, err := s.bookings.Update(ctx, prev.ID, updated.Version, restore)
		return err
	})
	if err == nil {
		s.log.Warn("payment amount update failed, booking restored",
			zap.String("booking_id", prev.ID), zap.Error(cause))
		return cause
	}

	s.log.Error("payment amount update failed and booking could not be restored",
		zap.String("booking_id", prev.ID), zap.NamedError("cause", cause), zap.Error(err))
	if ferr := s.flagOutOfSync(ctx, prev.ID); ferr != nil {
		s.log.Error("could not flag booking out of sync", zap.String("booking_id", prev.ID), zap.Error(ferr))
	}
	return fmt.Errorf("%w: %w; restore booking %s: %v", ErrInconsistentState, cause, prev.ID, err)
}

func (s *BookingService) flagOutOfSync(ctx context.Context, id string) error {
	flag := true
	b := retry.WithMaxRetries(2, retry.NewConstant(s.retryDelay))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		cur, err := s.bookings.FindByID(ctx, id)
		if err != nil {
			return err
		}
		_, err = s.bookings.Update(ctx, id, cur.Version, model.BookingChanges{PaymentOutOfSync: &flag})
		if errors.Is(err, repository.ErrVersionConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Cancel cancels the caller's booking and its pending payment intent.
// Cancelling an already cancelled booking succeeds without side effects.
func (s *BookingService) Cancel(ctx context.Context, user model.User, id string) (*model.Booking, error) {
	var result *model.Booking
	b := retry.WithMaxRetries(1, retry.NewConstant(s.retryDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		cur, err := s.Get(ctx, user, id)
		if err != nil {
			return err
		}
		changes, noop, err := cur.CancelTransition()
		if err != nil {
			return err
		}
		if noop {
			result = cur
			return nil
		}
		if err := s.payments.CancelIfPending(ctx, cur); err != nil {
			return err
		}
		updated, err := s.bookings.Update(ctx, id, cur.Version, changes)
		if errors.Is(err, repository.ErrVersionConflict) {
			return retry.RetryableError(storeErr("cancel booking "+id, err))
		}
		if err != nil {
			return storeErr("cancel booking "+id, err)
		}
		result = updated
		s.log.Info("booking cancelled", zap.String("booking_id", id))
		s.notify(ctx, queue.EventBookingCancelled, updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyPaymentOutcome records a verified gateway outcome on the booking
// that owns the intent.  Outcomes for bookings that already left pending
// are ignored, except a capture on a cancelled booking, which is flagged
// out of sync for manual refund.
func (s *BookingService) ApplyPaymentOutcome(ctx context.Context, out payment.Outcome) (*model.Booking, error) {
	var result *model.Booking
	b := retry.WithMaxRetries(2, retry.NewConstant(s.retryDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		cur, err := s.bookings.FindByPaymentIntent(ctx, out.IntentID)
		if err != nil {
			return storeErr("booking for intent "+out.IntentID, err)
		}
		changes, noop, err := cur.PaymentOutcomeTransition(out.Status)
		if err != nil {
			return err
		}
		if noop {
			s.log.Debug("payment outcome ignored", zap.String("booking_id", cur.ID),
				zap.String("status", string(cur.Status)), zap.String("outcome", string(out.Status)))
			result = cur
			return nil
		}
		updated, err := s.bookings.Update(ctx, cur.ID, cur.Version, changes)
		if errors.Is(err, repository.ErrVersionConflict) {
			return retry.RetryableError(storeErr("apply payment outcome", err))
		}
		if err != nil {
			return storeErr("apply payment outcome", err)
		}
		result = updated
		if cur.CapturedAfterCancel(out.Status) {
			s.log.Error("payment captured for a cancelled booking; flagged out of sync",
				zap.String("booking_id", updated.ID), zap.String("intent_id", out.IntentID))
			return nil
		}
		kind := queue.EventBookingConfirmed
		if updated.Status == model.BookingStatusCancelled {
			kind = queue.EventPaymentFailed
		}
		s.log.Info("payment outcome applied", zap.String("booking_id", updated.ID),
			zap.String("status", string(updated.Status)), zap.String("payment_status", string(updated.PaymentStatus)))
		s.notify(ctx, kind, updated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

const completionBatch = 500

// CompleteFinished moves confirmed bookings whose check-out is before the
// cutoff to completed and returns how many were moved.  Bookings modified
// concurrently are left for the next run.
func (s *BookingService) CompleteFinished(ctx context.Context, before time.Time) (int, error) {
	due, err := s.bookings.ListDueForCompletion(ctx, before, completionBatch)
	if err != nil {
		return 0, fmt.Errorf("list bookings due for completion: %w", err)
	}
	done := 0
	for i := range due {
		b := &due[i]
		changes, err := b.CompleteTransition()
		if err != nil {
			continue
		}
		updated, err := s.bookings.Update(ctx, b.ID, b.Version, changes)
		if errors.Is(err, repository.ErrVersionConflict) {
			s.log.Debug("booking changed during completion, skipping", zap.String("booking_id", b.ID))
			continue
		}
		if err != nil {
			return done, fmt.Errorf("complete booking %s: %w", b.ID, err)
		}
		done++
		s.notify(ctx, queue.EventBookingCompleted, updated)
	}
	return done, nil
}

func (s *BookingService) ensureFree(ctx context.Context, propertyID string, w model.Window, excludeID string) error {
	conflict, err := s.avail.FindConflict(ctx, propertyID, w, excludeID)
	if err != nil {
		return err
	}
	if conflict != nil {
		return fmt.Errorf("overlaps booking %s: %w", conflict.ID, ErrConflict)
	}
	return nil
}

// withLease runs fn while holding the property lease.
func (s *BookingService) withLease(ctx context.Context, propertyID string, fn func(ctx context.Context) error) error {
	lease, err := s.locker.Acquire(ctx, lock.PropertyKey(propertyID))
	if err != nil {
		return fmt.Errorf("property %s: %w: %v", propertyID, ErrConcurrentModification, err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release property lease", zap.String("property_id", propertyID), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (s *BookingService) notify(ctx context.Context, kind string, b *model.Booking) {
	if s.notifier == nil {
		return
	}
	ev := queue.BookingEvent{
		Kind:       kind,
		BookingID:  b.ID,
		UserID:     b.UserID,
		PropertyID: b.PropertyID,
		CheckIn:    b.CheckIn.Format(dateLayout),
		CheckOut:   b.CheckOut.Format(dateLayout),
		TotalPrice: b.TotalPrice.StringFixed(2),
		Status:     string(b.Status),
		OccurredAt: s.now().Format(time.RFC3339),
	}
	if err := s.notifier.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish booking event", zap.String("kind", kind), zap.String("booking_id", b.ID), zap.Error(err))
	}
}
