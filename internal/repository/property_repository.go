package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/property-booking/internal/model"
)

// PropertyRepo reads the subset of the properties table the booking engine
// needs.  Properties are created and edited by the listing service.
type PropertyRepo struct {
	db *sql.DB
}

// NewPropertyRepo returns a new PropertyRepo bound to the given database.
func NewPropertyRepo(db *sql.DB) *PropertyRepo { return &PropertyRepo{db: db} }

// GetProperty returns ErrNotFound for unknown ids.
func (r *PropertyRepo) GetProperty(ctx context.Context, id string) (*model.Property, error) {
	var p model.Property
	err := r.db.QueryRowContext(ctx,
		`SELECT id, price_per_night FROM properties WHERE id = ?`, id,
	).Scan(&p.ID, &p.PricePerNight)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property %s: %w", id, err)
	}
	return &p, nil
}
