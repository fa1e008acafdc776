package model

import "github.com/shopspring/decimal"

// Property is the read-only view of a listing that the booking engine needs:
// its identity and nightly rate.  Property CRUD lives elsewhere.
//
// Fields:
//
//	ID            – properties.id
//	PricePerNight – properties.price_per_night
type Property struct {
	ID            string
	PricePerNight decimal.Decimal
}
