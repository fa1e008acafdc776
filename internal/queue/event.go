// Package queue defines message payloads exchanged over the message broker
// together with the publisher and consumer that move them.
package queue

// Booking event kinds.  The kind doubles as the routing key.
const (
	EventBookingCreated   = "booking.created"
	EventBookingUpdated   = "booking.updated"
	EventBookingCancelled = "booking.cancelled"
	EventBookingConfirmed = "booking.confirmed"
	EventPaymentFailed    = "booking.payment_failed"
	EventBookingCompleted = "booking.completed"
)

// BookingEvent is published whenever a booking changes state.  It contains
// enough information for the notification consumer to address the guest
// without querying the bookings table.
type BookingEvent struct {
	Kind       string `json:"kind"`
	BookingID  string `json:"booking_id"`
	UserID     string `json:"user_id"`
	PropertyID string `json:"property_id"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	TotalPrice string `json:"total_price"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}
