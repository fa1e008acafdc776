package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/property-booking/internal/model"
)

const day = 24 * time.Hour

// Nights counts the billable nights of w: whole days between check-in and
// check-out rounded up, plus one because both ends of the window are
// occupied.
func Nights(w model.Window) int {
	d := w.CheckOut.Sub(w.CheckIn)
	n := d / day
	if d%day != 0 {
		n++
	}
	return int(n) + 1
}

// Total is price × nights.
func Total(pricePerNight decimal.Decimal, nights int) decimal.Decimal {
	return pricePerNight.Mul(decimal.NewFromInt(int64(nights)))
}

// Quote is the price of a window at a property.
type Quote struct {
	Nights int
	Total  decimal.Decimal
}

// PriceWindow quotes w at p's nightly rate.
func PriceWindow(p *model.Property, w model.Window) Quote {
	n := Nights(w)
	return Quote{Nights: n, Total: Total(p.PricePerNight, n)}
}
