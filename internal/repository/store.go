package repository

import (
	"context"
	"time"

	"github.com/iliyamo/property-booking/internal/model"
)

// BookingStore is the transactional persistence contract of the booking
// engine.  Implementations guarantee atomic single-row create and update and
// a consistent read of a property's bookings at query time.  They do not
// lock across calls; callers serialise check-and-write sequences themselves.
type BookingStore interface {
	// FindByID returns ErrNotFound when no booking has the given id.
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// FindByPaymentIntent resolves the booking that owns a gateway intent.
	FindByPaymentIntent(ctx context.Context, intentID string) (*model.Booking, error)
	// FindOverlapping returns the active bookings of the property whose
	// window intersects w, skipping excludeID when it is not empty.
	FindOverlapping(ctx context.Context, propertyID string, w model.Window, excludeID string) ([]model.Booking, error)
	// Create inserts b and populates Version, CreatedAt and UpdatedAt.
	Create(ctx context.Context, b *model.Booking) error
	// Update applies changes only if the stored version equals
	// expectedVersion, bumping the version on success.  It returns
	// ErrVersionConflict on mismatch and ErrNotFound if the row is gone.
	Update(ctx context.Context, id string, expectedVersion int64, changes model.BookingChanges) (*model.Booking, error)
	// ListByUser returns the user's bookings newest first.
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Booking, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	// ListDueForCompletion returns confirmed bookings whose checkout is
	// strictly before the given instant.
	ListDueForCompletion(ctx context.Context, before time.Time, limit int) ([]model.Booking, error)
}

// PropertyStore resolves the nightly rate of a property.
type PropertyStore interface {
	GetProperty(ctx context.Context, id string) (*model.Property, error)
}

// NotificationStore keeps per-user notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id uint64, userID string) error
}
