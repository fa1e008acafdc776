package queue

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iliyamo/property-booking/internal/model"
	"github.com/iliyamo/property-booking/internal/repository"
)

func TestHandleMessageStoresNotification(t *testing.T) {
	store := repository.NewMemoryStore()
	c := NewConsumer("", store, nil)
	ctx := context.Background()

	body, _ := json.Marshal(BookingEvent{
		Kind:       EventBookingConfirmed,
		BookingID:  "b1",
		UserID:     "u1",
		PropertyID: "p1",
		CheckIn:    "2024-01-01",
		CheckOut:   "2024-01-03",
		TotalPrice: "300.00",
		Status:     "confirmed",
	})
	if err := c.handleMessage(ctx, body); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got, err := store.ListNotifications(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	n := got[0]
	if n.Type != model.NotificationTypeBooking || n.Title != "Booking confirmed" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.BookingID == nil || *n.BookingID != "b1" || !strings.Contains(n.Message, "2024-01-03") {
		t.Fatalf("notification does not reference the booking: %+v", n)
	}
}

func TestHandleMessageRejectsBadInput(t *testing.T) {
	c := NewConsumer("", repository.NewMemoryStore(), nil)
	ctx := context.Background()

	tests := map[string]string{
		"not json":     `{`,
		"unknown kind": `{"kind":"booking.exploded","booking_id":"b1","user_id":"u1"}`,
		"no user":      `{"kind":"booking.created","booking_id":"b1"}`,
	}
	for name, body := range tests {
		if err := c.handleMessage(ctx, []byte(body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEveryEventKindHasNotificationText(t *testing.T) {
	kinds := []string{
		EventBookingCreated, EventBookingUpdated, EventBookingCancelled,
		EventBookingConfirmed, EventPaymentFailed, EventBookingCompleted,
	}
	for _, k := range kinds {
		n, err := notificationFor(BookingEvent{Kind: k, BookingID: "b", UserID: "u"})
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if n.Title == "" || n.Message == "" {
			t.Fatalf("%s: empty text", k)
		}
	}
}

func TestInlineStoresNotification(t *testing.T) {
	store := repository.NewMemoryStore()
	in := NewInline(store, nil)
	ctx := context.Background()

	if err := in.Publish(ctx, BookingEvent{Kind: EventBookingCancelled, BookingID: "b2", UserID: "u2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, _ := store.ListNotifications(ctx, "u2", 10)
	if len(got) != 1 || got[0].Title != "Booking cancelled" {
		t.Fatalf("notifications = %+v", got)
	}
}
