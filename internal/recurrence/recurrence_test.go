package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/slotgrid"
)

func fixedID() string { return "group-1" }

func selection(rule Rule, seeds ...Seed) Selection {
	return Selection{
		Seeds:    seeds,
		Resource: model.FullCourt,
		Label:    "League night",
		Color:    "#ff8800",
		Email:    "admin@facility.local",
		Status:   model.StatusDeclined,
		Rule:     rule,
	}
}

func TestRule_Caps(t *testing.T) {
	caps := map[Rule]int{None: 1, Daily: 365, Weekdays: 260, Weekly: 52, Monthly: 12, Infinite: 156}
	seed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	for rule, want := range caps {
		assert.Equal(t, want, rule.Cap(), rule)
		assert.Len(t, Dates(seed, rule), want, rule)
	}
}

func TestDates_WeekdaysSkipWeekends(t *testing.T) {
	friday := time.Date(2024, 3, 8, 0, 0, 0, 0, time.Local)
	dates := Dates(friday, Weekdays)

	require.Len(t, dates, 260)
	assert.Equal(t, "2024-03-08", slotgrid.FormatDate(dates[0]))
	assert.Equal(t, "2024-03-11", slotgrid.FormatDate(dates[1]))
	for _, d := range dates {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestDates_WeekdaysWeekendSeed(t *testing.T) {
	saturday := time.Date(2024, 3, 9, 0, 0, 0, 0, time.Local)
	dates := Dates(saturday, Weekdays)
	assert.Equal(t, "2024-03-11", slotgrid.FormatDate(dates[0]))
}

func TestDates_MonthlyClampsToMonthEnd(t *testing.T) {
	seed := time.Date(2024, 1, 31, 0, 0, 0, 0, time.Local)
	dates := Dates(seed, Monthly)

	var keys []string
	for _, d := range dates[:4] {
		keys = append(keys, slotgrid.FormatDate(d))
	}
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"}, keys)
	assert.Equal(t, "2024-12-31", slotgrid.FormatDate(dates[11]))
}

func TestDates_WeeklyAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	seed := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	dates := Dates(seed, Weekly)
	assert.Equal(t, "2024-03-11", slotgrid.FormatDate(dates[1]))
	assert.Equal(t, "2024-11-04", slotgrid.FormatDate(dates[35]))
}

func TestExpand_SharedGroupAcrossSeeds(t *testing.T) {
	exp, err := Expand(selection(Weekly,
		Seed{Date: "2024-03-04", Time: "06:00 PM - 07:00 PM"},
		Seed{Date: "2024-03-06", Time: "07:00 PM"},
	), slotgrid.Default, time.Local, fixedID)
	require.NoError(t, err)

	assert.Equal(t, "group-1", exp.GroupID)
	require.Len(t, exp.Drafts, 104)
	for _, d := range exp.Drafts {
		assert.Equal(t, "group-1", d.GroupID)
		assert.Equal(t, "League night", d.CustomerName)
		assert.Equal(t, "#ff8800", d.Color)
		assert.Zero(t, d.PriceCents)
	}
	assert.Equal(t, "2024-03-04", exp.Drafts[0].Date)
	assert.Equal(t, "06:00 PM - 07:00 PM", exp.Drafts[0].Time)
	assert.Equal(t, "2024-03-11", exp.Drafts[1].Date)
	assert.Equal(t, "2024-03-06", exp.Drafts[52].Date)
	assert.Equal(t, "07:00 PM", exp.Drafts[52].Time)
	assertWeekly(t, exp.Drafts[:52], "2024-03-04")
	assertWeekly(t, exp.Drafts[52:], "2024-03-06")
}

// assertWeekly checks that drafts fall exactly one week apart starting on
// first.
func assertWeekly(t *testing.T, drafts []model.Reservation, first string) {
	t.Helper()
	start, err := time.Parse("2006-01-02", first)
	require.NoError(t, err)
	for i, d := range drafts {
		assert.Equal(t, start.AddDate(0, 0, 7*i).Format("2006-01-02"), d.Date, "draft %d", i)
	}
}

func TestExpand_WeeklyYear(t *testing.T) {
	exp, err := Expand(selection(Weekly, Seed{Date: "2025-01-06", Time: "09:00 AM - 10:00 AM"}),
		slotgrid.Default, time.Local, fixedID)
	require.NoError(t, err)

	require.Len(t, exp.Drafts, 52)
	assertWeekly(t, exp.Drafts, "2025-01-06")
	assert.Equal(t, "2025-12-29", exp.Drafts[51].Date)
	for _, d := range exp.Drafts {
		assert.Equal(t, "09:00 AM - 10:00 AM", d.Time)
	}
}

func TestExpand_NoneHasNoGroup(t *testing.T) {
	exp, err := Expand(selection(None,
		Seed{Date: "2024-03-04", Time: "09:00 AM"},
		Seed{Date: "2024-03-04", Time: "09:30 AM"},
	), slotgrid.Default, time.Local, fixedID)
	require.NoError(t, err)

	assert.Empty(t, exp.GroupID)
	require.Len(t, exp.Drafts, 2)
	assert.Empty(t, exp.Drafts[0].GroupID)
}

func TestExpand_Rejects(t *testing.T) {
	cases := map[string]Selection{
		"no seeds":     selection(Weekly),
		"bad date":     selection(Weekly, Seed{Date: "03/04/2024", Time: "09:00 AM"}),
		"bad time":     selection(Weekly, Seed{Date: "2024-03-04", Time: "9am"}),
		"after close":  selection(Weekly, Seed{Date: "2024-03-04", Time: "10:00 PM"}),
		"unknown rule": selection(Rule("yearly"), Seed{Date: "2024-03-04", Time: "09:00 AM"}),
	}
	for name, sel := range cases {
		_, err := Expand(sel, slotgrid.Default, time.Local, fixedID)
		assert.ErrorIs(t, err, model.ErrValidation, name)
	}
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("")
	require.NoError(t, err)
	assert.Equal(t, None, r)
	r, err = ParseRule("Weekly")
	require.NoError(t, err)
	assert.Equal(t, Weekly, r)
}
