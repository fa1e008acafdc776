package model

import "time"

// NotificationType classifies a stored notification.
type NotificationType string

const (
	// NotificationTypeBooking targets the owner of a booking.
	NotificationTypeBooking NotificationType = "BOOKING"
)

// Notification is a message delivered to one user and kept so that clients
// that were offline can read it later.  It corresponds to the
// `notifications` table.
type Notification struct {
	ID        uint64           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	BookingID *string          `json:"booking_id,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}
