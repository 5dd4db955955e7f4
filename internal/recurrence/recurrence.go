// Package recurrence expands an admin slot selection into the concrete
// reservations of a recurring block.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/slotgrid"
)

// Rule is a repeat pattern.
type Rule string

const (
	None     Rule = "none"
	Daily    Rule = "daily"
	Weekdays Rule = "weekdays"
	Weekly   Rule = "weekly"
	Monthly  Rule = "monthly"
	// Infinite repeats weekly for three years.
	Infinite Rule = "infinite"
)

// ParseRule reads a rule name; an empty string means None.
func ParseRule(s string) (Rule, error) {
	switch r := Rule(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return None, nil
	case None, Daily, Weekdays, Weekly, Monthly, Infinite:
		return r, nil
	}
	return "", model.Invalid("rule", fmt.Sprintf("unknown recurrence %q", s))
}

// Cap is the number of occurrences a seed expands into.
func (r Rule) Cap() int {
	switch r {
	case Daily:
		return 365
	case Weekdays:
		return 260
	case Weekly:
		return 52
	case Monthly:
		return 12
	case Infinite:
		return 156
	}
	return 1
}

// Dates returns the occurrence dates for a seed, the seed itself first
// unless the rule skips it (a weekend seed under Weekdays).
func Dates(seed time.Time, rule Rule) []time.Time {
	n := rule.Cap()
	out := make([]time.Time, 0, n)
	switch rule {
	case Daily:
		for i := 0; i < n; i++ {
			out = append(out, addDays(seed, i))
		}
	case Weekly, Infinite:
		for i := 0; i < n; i++ {
			out = append(out, addDays(seed, 7*i))
		}
	case Monthly:
		for i := 0; i < n; i++ {
			out = append(out, addMonths(seed, i))
		}
	case Weekdays:
		for d := seed; len(out) < n; d = addDays(d, 1) {
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			out = append(out, d)
		}
	default:
		out = append(out, seed)
	}
	return out
}

func addDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, t.Location())
}

// addMonths moves n calendar months from t, clamping the day to the end of
// the target month so Jan 31 becomes Feb 28/29 rather than early March.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// Seed is one selected cell of the admin schedule.
type Seed struct {
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

// Selection is the admin's input to a block creation.
type Selection struct {
	Seeds    []Seed
	Resource model.Resource
	Label    string
	Color    string
	Email    string
	Status   model.Status
	Rule     Rule
}

// Expansion is the output of Expand.
type Expansion struct {
	GroupID string
	Drafts  []model.Reservation
}

// Expand turns every seed into its occurrences. All drafts of all seeds
// share a single group id; a None rule produces no group. Seeds are
// expanded independently, so two seeds on the same date produce two drafts
// per occurrence. Any bad seed fails the whole expansion.
func Expand(sel Selection, grid slotgrid.Grid, loc *time.Location, newID func() string) (Expansion, error) {
	if len(sel.Seeds) == 0 {
		return Expansion{}, model.Invalid("seeds", "at least one slot is required")
	}
	if _, err := model.ParseResource(string(sel.Resource)); err != nil {
		return Expansion{}, err
	}
	if sel.Rule == "" {
		sel.Rule = None
	}
	if _, err := ParseRule(string(sel.Rule)); err != nil {
		return Expansion{}, err
	}

	type parsed struct {
		date time.Time
		rng  slotgrid.Range
	}
	seeds := make([]parsed, 0, len(sel.Seeds))
	total := 0
	for i, s := range sel.Seeds {
		d, err := slotgrid.ParseDate(s.Date, loc)
		if err != nil {
			return Expansion{}, model.Invalid(fmt.Sprintf("seeds[%d].date", i), err.Error())
		}
		rng, err := slotgrid.ParseRange(s.Time)
		if err != nil {
			return Expansion{}, model.Invalid(fmt.Sprintf("seeds[%d].time", i), err.Error())
		}
		if !grid.Contains(rng) {
			return Expansion{}, model.Invalid(fmt.Sprintf("seeds[%d].time", i), "outside operating hours")
		}
		seeds = append(seeds, parsed{date: d, rng: rng})
		total += sel.Rule.Cap()
	}

	var exp Expansion
	if sel.Rule != None {
		exp.GroupID = newID()
	}
	exp.Drafts = make([]model.Reservation, 0, total)
	for _, s := range seeds {
		for _, d := range Dates(s.date, sel.Rule) {
			exp.Drafts = append(exp.Drafts, model.Reservation{
				CustomerName: sel.Label,
				Email:        sel.Email,
				Resource:     sel.Resource,
				Date:         slotgrid.FormatDate(d),
				Time:         s.rng.String(),
				Status:       sel.Status,
				GroupID:      exp.GroupID,
				Color:        sel.Color,
			})
		}
	}
	return exp, nil
}
