// Package availability derives which slots of a day are taken for a court
// configuration from a list of existing reservations.
package availability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/slotgrid"
)

// Policy decides whether an existing reservation of one court configuration
// blocks a query for another.
type Policy int

const (
	// FullBlocksHalf: a Full Court booking takes the whole court, so it
	// blocks both configurations. A Half Court booking only blocks Half
	// Court queries.
	FullBlocksHalf Policy = iota
	// Exclusive: any booking blocks every configuration.
	Exclusive
)

// ParsePolicy reads the configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full_blocks_half":
		return FullBlocksHalf, nil
	case "exclusive":
		return Exclusive, nil
	}
	return 0, fmt.Errorf("unknown conflict policy %q", s)
}

// Blocks reports whether a reservation for existing occupies a slot when
// querying for query.
func (p Policy) Blocks(existing, query model.Resource) bool {
	if p == Exclusive || existing == model.FullCourt {
		return true
	}
	return query == model.HalfCourt
}

// Set is the set of occupied slot labels.
type Set map[string]struct{}

// Has reports whether label is occupied.
func (s Set) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// Labels returns the occupied labels in time order.
func (s Set) Labels() []string {
	idx := make([]int, 0, len(s))
	for l := range s {
		if i, err := slotgrid.ParseLabel(l); err == nil {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	out := make([]string, len(idx))
	for i, v := range idx {
		out[i] = slotgrid.Label(v)
	}
	return out
}

// SlotState is one cell of the day view.
type SlotState struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
}

// ConflictError lists the requested slots that are already taken.
type ConflictError struct {
	Date  string
	Slots []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slots already taken on %s: %s", e.Date, strings.Join(e.Slots, ", "))
}

func (e *ConflictError) Unwrap() error { return model.ErrSlotTaken }

// Index evaluates availability for one operating window and policy.
type Index struct {
	Grid   slotgrid.Grid
	Policy Policy
}

// New builds an Index.
func New(grid slotgrid.Grid, policy Policy) Index {
	return Index{Grid: grid, Policy: policy}
}

// Occupied returns the slots on date that are unavailable for query.
// Reservations on other dates, in non-occupying statuses or with a time that
// does not parse are ignored.
func (ix Index) Occupied(rs []model.Reservation, date string, query model.Resource) Set {
	set := Set{}
	for _, r := range rs {
		if r.Date != date || !r.Status.Occupying() || !ix.Policy.Blocks(r.Resource, query) {
			continue
		}
		rng, err := slotgrid.ParseRange(r.Time)
		if err != nil {
			continue
		}
		for i := rng.Start; i < rng.End; i++ {
			set[slotgrid.Label(i)] = struct{}{}
		}
	}
	return set
}

// Check returns a *ConflictError when any slot of want is occupied.
func (ix Index) Check(rs []model.Reservation, date string, query model.Resource, want slotgrid.Range) error {
	occ := ix.Occupied(rs, date, query)
	var taken []string
	for _, l := range want.Labels() {
		if occ.Has(l) {
			taken = append(taken, l)
		}
	}
	if len(taken) > 0 {
		return &ConflictError{Date: date, Slots: taken}
	}
	return nil
}

// Day returns the availability of every slot within operating hours.
func (ix Index) Day(rs []model.Reservation, date string, query model.Resource) []SlotState {
	occ := ix.Occupied(rs, date, query)
	slots := ix.Grid.Slots()
	out := make([]SlotState, len(slots))
	for i, l := range slots {
		out[i] = SlotState{Time: l, Available: !occ.Has(l)}
	}
	return out
}
