// Package pricing computes what a customer pays for a slot range.
package pricing

import (
	"fmt"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/slotgrid"
)

// Rates are hourly prices in cents per court configuration. When RoundTo is
// above one, quotes are rounded up to a multiple of that many cents.
type Rates struct {
	FullCourtHourly int64
	HalfCourtHourly int64
	RoundTo         int64
}

// DefaultRates are $150/h for the full court and $75/h for half.
var DefaultRates = Rates{FullCourtHourly: 15000, HalfCourtHourly: 7500}

// PerSlot is the price of a single 30-minute slot.
func (r Rates) PerSlot(res model.Resource) (int64, error) {
	switch res {
	case model.FullCourt:
		return r.FullCourtHourly * slotgrid.SlotMinutes / 60, nil
	case model.HalfCourt:
		return r.HalfCourtHourly * slotgrid.SlotMinutes / 60, nil
	}
	return 0, model.Invalid("court_type", fmt.Sprintf("unknown court type %q", res))
}

// Quote prices a contiguous range.
func (r Rates) Quote(res model.Resource, rng slotgrid.Range) (int64, error) {
	per, err := r.PerSlot(res)
	if err != nil {
		return 0, err
	}
	total := per * int64(rng.Len())
	if r.RoundTo > 1 {
		total = (total + r.RoundTo - 1) / r.RoundTo * r.RoundTo
	}
	return total, nil
}
