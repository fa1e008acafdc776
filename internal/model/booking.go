package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// PaymentStatus mirrors the state of the payment intent linked to a booking.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Booking is a guest's reservation of a property for a date window.  It
// corresponds to a row in the `bookings` table.
//
// Fields:
//
//	ID                – UUID primary key.
//	PropertyID        – property being reserved.
//	UserID            – guest who owns the booking.
//	CheckIn/CheckOut  – inclusive booking window.
//	GuestCount        – number of guests.
//	SpecialRequests   – optional free text.
//	TotalPrice        – price_per_night × nights at the time of the last window change.
//	Status            – pending, confirmed, cancelled or completed.
//	PaymentStatus     – pending, succeeded, failed or cancelled.
//	PaymentIntentID   – gateway intent reference, set once at creation.
//	PaymentOutOfSync  – set when local and gateway amounts could not be reconciled.
//	Version           – optimistic concurrency counter, bumped by every update.
//	CreatedAt         – creation timestamp.
//	UpdatedAt         – last update timestamp.
type Booking struct {
	ID               string          `json:"id"`
	PropertyID       string          `json:"property_id"`
	UserID           string          `json:"user_id"`
	CheckIn          time.Time       `json:"check_in"`
	CheckOut         time.Time       `json:"check_out"`
	GuestCount       int             `json:"guest_count"`
	SpecialRequests  *string         `json:"special_requests,omitempty"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	Status           BookingStatus   `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaymentIntentID  *string         `json:"payment_intent_id,omitempty"`
	PaymentOutOfSync bool            `json:"payment_out_of_sync"`
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Window returns the booking's date window.
func (b *Booking) Window() Window {
	return Window{CheckIn: b.CheckIn, CheckOut: b.CheckOut}
}

// IsActive reports whether the booking still occupies its window.  Cancelled
// bookings and bookings whose payment failed never block other guests.
func (b *Booking) IsActive() bool {
	return b.Status != BookingStatusCancelled && b.PaymentStatus != PaymentStatusFailed
}

// BookingChanges is a partial update applied atomically by the store.  Nil
// fields are left untouched.
type BookingChanges struct {
	CheckIn          *time.Time
	CheckOut         *time.Time
	GuestCount       *int
	SpecialRequests  *string
	TotalPrice       *decimal.Decimal
	Status           *BookingStatus
	PaymentStatus    *PaymentStatus
	PaymentOutOfSync *bool
}

// Empty reports whether the change set carries no field.
func (c BookingChanges) Empty() bool {
	return c.CheckIn == nil && c.CheckOut == nil && c.GuestCount == nil &&
		c.SpecialRequests == nil && c.TotalPrice == nil && c.Status == nil &&
		c.PaymentStatus == nil && c.PaymentOutOfSync == nil
}

// Apply copies the non-nil fields onto b.  It does not touch Version or
// UpdatedAt; stores own those.
func (c BookingChanges) Apply(b *Booking) {
	if c.CheckIn != nil {
		b.CheckIn = *c.CheckIn
	}
	if c.CheckOut != nil {
		b.CheckOut = *c.CheckOut
	}
	if c.GuestCount != nil {
		b.GuestCount = *c.GuestCount
	}
	if c.SpecialRequests != nil {
		s := *c.SpecialRequests
		b.SpecialRequests = &s
	}
	if c.TotalPrice != nil {
		b.TotalPrice = *c.TotalPrice
	}
	if c.Status != nil {
		b.Status = *c.Status
	}
	if c.PaymentStatus != nil {
		b.PaymentStatus = *c.PaymentStatus
	}
	if c.PaymentOutOfSync != nil {
		b.PaymentOutOfSync = *c.PaymentOutOfSync
	}
}
