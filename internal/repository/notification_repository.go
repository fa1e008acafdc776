package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/property-booking/internal/model"
)

// NotificationRepo persists user notifications written by the booking
// event consumer.
type NotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepo returns a new NotificationRepo bound to the given database.
func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// CreateNotification inserts n and populates its generated ID.
func (r *NotificationRepo) CreateNotification(ctx context.Context, n *model.Notification) error {
	const q = `INSERT INTO notifications (user_id, type, title, message, booking_id) VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, n.UserID, n.Type, n.Title, n.Message, n.BookingID)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	n.ID = uint64(id)
	return nil
}

// ListNotifications returns the user's notifications, unread first and
// newest first within each group.
func (r *NotificationRepo) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	const q = `SELECT id, user_id, type, title, message, booking_id, is_read, created_at
	           FROM notifications
	           WHERE user_id = ?
	           ORDER BY is_read ASC, created_at DESC
	           LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	out := make([]model.Notification, 0)
	for rows.Next() {
		var (
			n         model.Notification
			bookingID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &bookingID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if bookingID.Valid {
			s := bookingID.String
			n.BookingID = &s
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags a notification as read.  It returns ErrNotFound
// when the notification does not exist or belongs to another user.
func (r *NotificationRepo) MarkNotificationRead(ctx context.Context, id uint64, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx,
			`SELECT 1 FROM notifications WHERE id = ? AND user_id = ?`, id, userID).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
	}
	return nil
}
