package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/property-booking/internal/model"
	"github.com/iliyamo/property-booking/internal/repository"
)

// Consumer turns booking events into stored user notifications.
type Consumer struct {
	url   string
	store repository.NotificationStore
	log   *zap.Logger
}

func NewConsumer(url string, store repository.NotificationStore, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{url: url, store: store, log: log}
}

// Run connects to RabbitMQ and consumes BookingQueue until ctx is done.
// Lost connections are re-dialled with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("booking consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("booking consumer: consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("booking consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(BookingQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, BookingQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("booking consumer started", zap.String("queue", BookingQueue))

	for d := range msgs {
		if err := c.handleMessage(ctx, d.Body); err != nil {
			c.log.Error("booking consumer: handle message failed", zap.String("message_id", d.MessageId), zap.Error(err))
			// reject without requeue to avoid tight redelivery loops
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return deliver(ctx, c.store, c.log, ev)
}

// Inline stores notifications in-process.  It stands in for the broker
// when RabbitMQ is not configured.
type Inline struct {
	store repository.NotificationStore
	log   *zap.Logger
}

func NewInline(store repository.NotificationStore, log *zap.Logger) *Inline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Inline{store: store, log: log}
}

func (i *Inline) Publish(ctx context.Context, ev BookingEvent) error {
	return deliver(ctx, i.store, i.log, ev)
}

func deliver(ctx context.Context, store repository.NotificationStore, log *zap.Logger, ev BookingEvent) error {
	n, err := notificationFor(ev)
	if err != nil {
		return err
	}
	if err := store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	log.Debug("notification stored", zap.String("user_id", n.UserID), zap.String("kind", ev.Kind))
	return nil
}

func notificationFor(ev BookingEvent) (*model.Notification, error) {
	if ev.UserID == "" || ev.BookingID == "" {
		return nil, errors.New("event without user or booking id")
	}
	var title, msg string
	switch ev.Kind {
	case EventBookingCreated:
		title = "Booking created"
		msg = fmt.Sprintf("Your booking from %s to %s is awaiting payment of %s.", ev.CheckIn, ev.CheckOut, ev.TotalPrice)
	case EventBookingUpdated:
		title = "Booking updated"
		msg = fmt.Sprintf("Your booking now runs from %s to %s. Total: %s.", ev.CheckIn, ev.CheckOut, ev.TotalPrice)
	case EventBookingCancelled:
		title = "Booking cancelled"
		msg = fmt.Sprintf("Your booking from %s to %s was cancelled.", ev.CheckIn, ev.CheckOut)
	case EventBookingConfirmed:
		title = "Booking confirmed"
		msg = fmt.Sprintf("Payment received. Your stay from %s to %s is confirmed.", ev.CheckIn, ev.CheckOut)
	case EventPaymentFailed:
		title = "Payment failed"
		msg = fmt.Sprintf("Payment for your stay from %s to %s did not go through and the booking was cancelled.", ev.CheckIn, ev.CheckOut)
	case EventBookingCompleted:
		title = "Stay completed"
		msg = fmt.Sprintf("Thanks for staying with us from %s to %s.", ev.CheckIn, ev.CheckOut)
	default:
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	id := ev.BookingID
	return &model.Notification{
		UserID:    ev.UserID,
		Type:      model.NotificationTypeBooking,
		Title:     title,
		Message:   msg,
		BookingID: &id,
	}, nil
}
