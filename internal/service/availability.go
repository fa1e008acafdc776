package service

import (
	"context"
	"fmt"

	"github.com/iliyamo/property-booking/internal/model"
	"github.com/iliyamo/property-booking/internal/repository"
)

// AvailabilityChecker finds active bookings that collide with a window.  It
// holds no lock; callers that act on its answer must hold the property
// lease.
type AvailabilityChecker struct {
	bookings repository.BookingStore
}

func NewAvailabilityChecker(bookings repository.BookingStore) *AvailabilityChecker {
	return &AvailabilityChecker{bookings: bookings}
}

// FindConflict returns the first active booking on the property whose
// window intersects w, ignoring excludeID.  It returns nil when the window
// is free.
func (a *AvailabilityChecker) FindConflict(ctx context.Context, propertyID string, w model.Window, excludeID string) (*model.Booking, error) {
	candidates, err := a.bookings.FindOverlapping(ctx, propertyID, w, excludeID)
	if err != nil {
		return nil, fmt.Errorf("find overlapping bookings: %w", err)
	}
	for i := range candidates {
		b := &candidates[i]
		if b.ID == excludeID || !b.IsActive() {
			continue
		}
		if b.Window().Overlaps(w) {
			return b, nil
		}
	}
	return nil, nil
}
