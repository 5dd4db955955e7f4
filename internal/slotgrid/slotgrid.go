// Package slotgrid converts between wall-clock times, 30-minute slot indices
// and the "HH:MM AM" labels stored on reservations. A slot index is
// hour*2 + half, so indices sort in time order and a day spans 0..48 where
// 48 is only valid as an exclusive end point.
package slotgrid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	SlotMinutes = 30
	SlotsPerDay = 48
	DateLayout  = "2006-01-02"
)

var (
	ErrBadLabel = errors.New("invalid time label")
	ErrBadRange = errors.New("invalid time range")
	ErrBadHours = errors.New("invalid operating hours")
)

// Grid is the facility's daily operating window in whole hours.
type Grid struct {
	Open  int
	Close int
}

// Default is the customer-facing window, 08:00 to 22:00.
var Default = Grid{Open: 8, Close: 22}

// New validates the operating window.
func New(open, close int) (Grid, error) {
	if open < 0 || close > 24 || open >= close {
		return Grid{}, fmt.Errorf("%w: %d-%d", ErrBadHours, open, close)
	}
	return Grid{Open: open, Close: close}, nil
}

// First is the index of the first bookable slot.
func (g Grid) First() int { return g.Open * 2 }

// End is the exclusive index of closing time.
func (g Grid) End() int { return g.Close * 2 }

// Slots returns the start label of every bookable slot.
func (g Grid) Slots() []string {
	out := make([]string, 0, g.End()-g.First())
	for i := g.First(); i < g.End(); i++ {
		out = append(out, Label(i))
	}
	return out
}

// Contains reports whether r lies inside operating hours. A range may end
// exactly at closing time.
func (g Grid) Contains(r Range) bool {
	return r.Start < r.End && r.Start >= g.First() && r.End <= g.End()
}

// SlotIndex returns the slot ordinal for hour (0-23) and the half-hour flag.
func SlotIndex(hour int, half bool) int {
	i := hour * 2
	if half {
		i++
	}
	return i
}

// Label renders a slot index as "HH:MM AM". Hours 0 and 12 render as 12 and
// index 48 (midnight as an end point) renders as "12:00 AM".
func Label(index int) string {
	hour := (index / 2) % 24
	minute := (index % 2) * SlotMinutes
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	h12 := hour % 12
	if h12 == 0 {
		h12 = 12
	}
	return fmt.Sprintf("%02d:%02d %s", h12, minute, period)
}

// ParseLabel is the inverse of Label. It also accepts an unpadded hour
// ("9:00 AM"). Minutes must fall on a slot boundary.
func ParseLabel(s string) (int, error) {
	clock, period, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadLabel, s)
	}
	hh, mm, ok := strings.Cut(clock, ":")
	if !ok || len(mm) != 2 || hh == "" || len(hh) > 2 {
		return 0, fmt.Errorf("%w: %q", ErrBadLabel, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 1 || h > 12 {
		return 0, fmt.Errorf("%w: %q", ErrBadLabel, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || (m != 0 && m != SlotMinutes) {
		return 0, fmt.Errorf("%w: %q", ErrBadLabel, s)
	}
	switch strings.ToUpper(strings.TrimSpace(period)) {
	case "AM":
		if h == 12 {
			h = 0
		}
	case "PM":
		if h != 12 {
			h += 12
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrBadLabel, s)
	}
	return SlotIndex(h, m == SlotMinutes), nil
}

// Range is a half-open interval of slot indices.
type Range struct {
	Start int
	End   int
}

// ParseRange reads either "09:00 AM - 10:30 AM" or a single label. A single
// label occupies exactly one slot. An end of "12:00 AM" after a later start
// means midnight.
func ParseRange(s string) (Range, error) {
	startLabel, endLabel, isRange := strings.Cut(s, " - ")
	start, err := ParseLabel(startLabel)
	if err != nil {
		return Range{}, err
	}
	if !isRange {
		return Range{Start: start, End: start + 1}, nil
	}
	end, err := ParseLabel(endLabel)
	if err != nil {
		return Range{}, err
	}
	if end == 0 && start > 0 {
		end = SlotsPerDay
	}
	if end <= start {
		return Range{}, fmt.Errorf("%w: %q ends before it starts", ErrBadRange, s)
	}
	return Range{Start: start, End: end}, nil
}

// Len is the number of slots covered.
func (r Range) Len() int { return r.End - r.Start }

// Minutes is the covered duration.
func (r Range) Minutes() int { return r.Len() * SlotMinutes }

// Labels returns the start label of every covered slot.
func (r Range) Labels() []string {
	out := make([]string, 0, r.Len())
	for i := r.Start; i < r.End; i++ {
		out = append(out, Label(i))
	}
	return out
}

// Overlaps reports whether the two ranges share a slot.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

// String renders the canonical stored form.
func (r Range) String() string {
	if r.Len() == 1 {
		return Label(r.Start)
	}
	return Label(r.Start) + " - " + Label(r.End)
}

// ParseDate reads a YYYY-MM-DD key as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t's calendar date in t's own location.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// WeekStart returns midnight of the Monday of t's week, in t's location.
func WeekStart(t time.Time) time.Time {
	dow := int(t.Weekday())
	diff := 1 - dow
	if dow == 0 {
		diff = -6
	}
	y, m, d := t.Date()
	return time.Date(y, m, d+diff, 0, 0, 0, 0, t.Location())
}

// DateKey returns the local date key of weekStart plus offset days. The date
// is taken from weekStart's own location so a zone ahead of UTC never shifts
// the key to the previous day.
func DateKey(weekStart time.Time, offset int) string {
	y, m, d := weekStart.Date()
	return FormatDate(time.Date(y, m, d+offset, 0, 0, 0, 0, weekStart.Location()))
}
