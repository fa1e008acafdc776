package model

import "time"

// Window is the inclusive date range [CheckIn, CheckOut] a booking occupies.
type Window struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// Valid reports whether CheckIn is strictly before CheckOut.
func (w Window) Valid() bool {
	return w.CheckIn.Before(w.CheckOut)
}

// Overlaps applies the inclusive intersection test: two windows collide when
// a.check_in <= b.check_out and a.check_out >= b.check_in.  A checkout on the
// same day as another guest's check-in therefore counts as a collision.
func (w Window) Overlaps(o Window) bool {
	return !w.CheckIn.After(o.CheckOut) && !w.CheckOut.Before(o.CheckIn)
}

// Equal reports whether both ends match.
func (w Window) Equal(o Window) bool {
	return w.CheckIn.Equal(o.CheckIn) && w.CheckOut.Equal(o.CheckOut)
}
