package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iliyamo/property-booking/internal/model"
)

// BookingRepo implements BookingStore on MySQL.  Every statement is a
// single-row operation, so atomicity comes from the database itself;
// optimistic concurrency is enforced through the version column.  All
// timestamps are stored in UTC (the DSN sets loc=UTC).
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, property_id, user_id, check_in, check_out, guest_count, special_requests,
	total_price, status, payment_status, payment_intent_id, payment_out_of_sync, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b        model.Booking
		requests sql.NullString
		intentID sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.PropertyID, &b.UserID, &b.CheckIn, &b.CheckOut, &b.GuestCount, &requests,
		&b.TotalPrice, &b.Status, &b.PaymentStatus, &intentID, &b.PaymentOutOfSync, &b.Version,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if requests.Valid {
		s := requests.String
		b.SpecialRequests = &s
	}
	if intentID.Valid {
		s := intentID.String
		b.PaymentIntentID = &s
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// withTransientRetry re-runs fn once more when MySQL reports a deadlock or
// lock wait timeout.
func withTransientRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.WithMaxRetries(2, retry.NewExponential(20*time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// FindByID loads a booking by primary key.
func (r *BookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find booking %s: %w", id, err)
	}
	return b, nil
}

// FindByPaymentIntent loads the booking linked to a gateway intent.
func (r *BookingRepo) FindByPaymentIntent(ctx context.Context, intentID string) (*model.Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_intent_id = ?`
	b, err := scanBooking(r.db.QueryRowContext(ctx, q, intentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find booking by intent: %w", err)
	}
	return b, nil
}

// FindOverlapping returns active bookings on the property whose inclusive
// window intersects w.  The predicate is served by the
// (property_id, check_in, check_out) index.
func (r *BookingRepo) FindOverlapping(ctx context.Context, propertyID string, w model.Window, excludeID string) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + `
	      FROM bookings
	      WHERE property_id = ?
	        AND check_in <= ? AND check_out >= ?
	        AND status <> 'cancelled' AND payment_status <> 'failed'`
	args := []any{propertyID, w.CheckOut.UTC(), w.CheckIn.UTC()}
	if excludeID != "" {
		q += ` AND id <> ?`
		args = append(args, excludeID)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find overlapping bookings: %w", err)
	}
	out, err := scanBookings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan overlapping bookings: %w", err)
	}
	return out, nil
}

// Create inserts a booking with version 1 and reads back the database
// defaults.
func (r *BookingRepo) Create(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings
	           (id, property_id, user_id, check_in, check_out, guest_count, special_requests,
	            total_price, status, payment_status, payment_intent_id, version)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	err := withTransientRetry(ctx, func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, q,
			b.ID, b.PropertyID, b.UserID, b.CheckIn.UTC(), b.CheckOut.UTC(), b.GuestCount,
			b.SpecialRequests, b.TotalPrice, b.Status, b.PaymentStatus, b.PaymentIntentID,
		)
		return err
	})
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	stored, err := r.FindByID(ctx, b.ID)
	if err != nil {
		return err
	}
	*b = *stored
	return nil
}

// Update applies changes with a version check.  When no row matches, the
// row is probed once to tell a vanished booking from a stale version.
func (r *BookingRepo) Update(ctx context.Context, id string, expectedVersion int64, changes model.BookingChanges) (*model.Booking, error) {
	if changes.Empty() {
		return nil, fmt.Errorf("update booking %s: empty change set", id)
	}
	sets := make([]string, 0, 9)
	args := make([]any, 0, 10)
	if changes.CheckIn != nil {
		sets = append(sets, "check_in = ?")
		args = append(args, changes.CheckIn.UTC())
	}
	if changes.CheckOut != nil {
		sets = append(sets, "check_out = ?")
		args = append(args, changes.CheckOut.UTC())
	}
	if changes.GuestCount != nil {
		sets = append(sets, "guest_count = ?")
		args = append(args, *changes.GuestCount)
	}
	if changes.SpecialRequests != nil {
		sets = append(sets, "special_requests = ?")
		args = append(args, *changes.SpecialRequests)
	}
	if changes.TotalPrice != nil {
		sets = append(sets, "total_price = ?")
		args = append(args, *changes.TotalPrice)
	}
	if changes.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *changes.Status)
	}
	if changes.PaymentStatus != nil {
		sets = append(sets, "payment_status = ?")
		args = append(args, *changes.PaymentStatus)
	}
	if changes.PaymentOutOfSync != nil {
		sets = append(sets, "payment_out_of_sync = ?")
		args = append(args, *changes.PaymentOutOfSync)
	}
	sets = append(sets, "version = version + 1")
	q := `UPDATE bookings SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND version = ?`
	args = append(args, id, expectedVersion)

	var affected int64
	err := withTransientRetry(ctx, func(ctx context.Context) error {
		res, err := r.db.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update booking %s: %w", id, err)
	}
	if affected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}
	return r.FindByID(ctx, id)
}

// ListByUser returns one page of the user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID string, offset, limit int) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + `
	      FROM bookings
	      WHERE user_id = ?
	      ORDER BY created_at DESC, id DESC
	      LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings by user: %w", err)
	}
	out, err := scanBookings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan bookings by user: %w", err)
	}
	return out, nil
}

// CountByUser counts all bookings of the user.
func (r *BookingRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bookings by user: %w", err)
	}
	return n, nil
}

// ListDueForCompletion returns confirmed bookings that checked out before
// the cutoff, oldest checkout first.
func (r *BookingRepo) ListDueForCompletion(ctx context.Context, before time.Time, limit int) ([]model.Booking, error) {
	q := `SELECT ` + bookingColumns + `
	      FROM bookings
	      WHERE status = 'confirmed' AND check_out < ?
	      ORDER BY check_out
	      LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings due for completion: %w", err)
	}
	out, err := scanBookings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan bookings due for completion: %w", err)
	}
	return out, nil
}
