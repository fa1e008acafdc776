package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/property-booking/internal/model"
)

// MemoryStore is an in-process implementation of BookingStore,
// PropertyStore and NotificationStore.  It keeps the same atomicity and
// version semantics as the MySQL repositories and is used wherever a
// substitute for the database is needed, most notably in tests.
type MemoryStore struct {
	mu            sync.RWMutex
	bookings      map[string]*model.Booking
	seq           map[string]int64
	nextSeq       int64
	properties    map[string]model.Property
	notifications []model.Notification
	now           func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:   make(map[string]*model.Booking),
		seq:        make(map[string]int64),
		properties: make(map[string]model.Property),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PutProperty registers or replaces a property.
func (s *MemoryStore) PutProperty(p model.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = p
}

func cloneBooking(b *model.Booking) *model.Booking {
	c := *b
	if b.SpecialRequests != nil {
		v := *b.SpecialRequests
		c.SpecialRequests = &v
	}
	if b.PaymentIntentID != nil {
		v := *b.PaymentIntentID
		c.PaymentIntentID = &v
	}
	return &c
}

func (s *MemoryStore) GetProperty(_ context.Context, id string) (*model.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBooking(b), nil
}

func (s *MemoryStore) FindByPaymentIntent(_ context.Context, intentID string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if b.PaymentIntentID != nil && *b.PaymentIntentID == intentID {
			return cloneBooking(b), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FindOverlapping(_ context.Context, propertyID string, w model.Window, excludeID string) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Booking, 0)
	for _, b := range s.bookings {
		if b.PropertyID != propertyID || b.ID == excludeID || !b.IsActive() {
			continue
		}
		if b.Window().Overlaps(w) {
			out = append(out, *cloneBooking(b))
		}
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, b *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[b.ID]; ok {
		return ErrDuplicate
	}
	if b.PaymentIntentID != nil {
		for _, other := range s.bookings {
			if other.PaymentIntentID != nil && *other.PaymentIntentID == *b.PaymentIntentID {
				return ErrDuplicate
			}
		}
	}
	now := s.now()
	b.Version = 1
	b.CreatedAt = now
	b.UpdatedAt = now
	s.nextSeq++
	s.seq[b.ID] = s.nextSeq
	s.bookings[b.ID] = cloneBooking(b)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, expectedVersion int64, changes model.BookingChanges) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	if b.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	changes.Apply(b)
	b.Version++
	b.UpdatedAt = s.now()
	return cloneBooking(b), nil
}

// sortedByUser returns the user's bookings newest first; creation order
// breaks timestamp ties.
func (s *MemoryStore) sortedByUser(userID string) []*model.Booking {
	out := make([]*model.Booking, 0)
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, offset, limit int) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.sortedByUser(userID)
	if offset < 0 {
		offset = 0
	}
	out := make([]model.Booking, 0)
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, *cloneBooking(all[i]))
	}
	return out, nil
}

func (s *MemoryStore) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.bookings {
		if b.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListDueForCompletion(_ context.Context, before time.Time, limit int) ([]model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Booking, 0)
	for _, b := range s.bookings {
		if b.Status == model.BookingStatusConfirmed && b.CheckOut.Before(before) {
			out = append(out, *cloneBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CheckOut.Before(out[j].CheckOut) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateNotification(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uint64(len(s.notifications) + 1)
	n.CreatedAt = s.now()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *MemoryStore) ListNotifications(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Notification, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return !out[i].IsRead && out[j].IsRead })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkNotificationRead(_ context.Context, id uint64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID {
			s.notifications[i].IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

var (
	_ BookingStore      = (*MemoryStore)(nil)
	_ PropertyStore     = (*MemoryStore)(nil)
	_ NotificationStore = (*MemoryStore)(nil)
	_ BookingStore      = (*BookingRepo)(nil)
	_ PropertyStore     = (*PropertyRepo)(nil)
	_ NotificationStore = (*NotificationRepo)(nil)
)
