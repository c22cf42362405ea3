package calendar

import (
	"fmt"
	"sort"
	"time"
)

// Period is a coarse label for the time of day.
type Period string

const (
	PeriodNight     Period = "night"
	PeriodMorning   Period = "morning"
	PeriodLunch     Period = "lunch"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

// Calendar is the immutable holiday and business-hours calendar shared by
// all agents. Holiday keys are either "2006-01-02" for a single date or
// "01-02" for a date recurring every year.
type Calendar struct {
	businessHours TimeWindow
	lunch         TimeWindow
	holidays      map[string]string
	loc           *time.Location

	bh     Window
	lunchW Window
}

// New validates the windows and builds a Calendar evaluated in loc
// (UTC when nil).
func New(businessHours, lunch TimeWindow, holidays map[string]string, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	bh, err := Compile(businessHours, loc)
	if err != nil {
		return nil, fmt.Errorf("business hours: %w", err)
	}
	lw, err := Compile(lunch, loc)
	if err != nil {
		return nil, fmt.Errorf("lunch window: %w", err)
	}

	hs := make(map[string]string, len(holidays))
	for date, name := range holidays {
		if !validHolidayKey(date) {
			return nil, fmt.Errorf("invalid holiday date '%s' (expected YYYY-MM-DD or MM-DD)", date)
		}
		hs[date] = name
	}

	return &Calendar{
		businessHours: businessHours,
		lunch:         lunch,
		holidays:      hs,
		loc:           loc,
		bh:            bh,
		lunchW:        lw,
	}, nil
}

func validHolidayKey(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	// Parse against a leap year so 02-29 is accepted.
	_, err := time.Parse("2006-01-02", "2024-"+s)
	return err == nil
}

// DefaultBusinessHours is Monday to Friday, 09:00 to 17:00.
func DefaultBusinessHours() TimeWindow {
	return TimeWindow{Days: []string{"mon", "tue", "wed", "thu", "fri"}, StartTime: "09:00", EndTime: "17:00"}
}

// DefaultLunch is 12:00 to 13:00 on every day.
func DefaultLunch() TimeWindow {
	return TimeWindow{StartTime: "12:00", EndTime: "13:00"}
}

// DefaultHolidays are fixed-date holidays recurring every year.
func DefaultHolidays() map[string]string {
	return map[string]string{
		"01-01": "New Year's Day",
		"07-04": "Independence Day",
		"11-11": "Veterans Day",
		"12-24": "Christmas Eve",
		"12-25": "Christmas Day",
		"12-31": "New Year's Eve",
	}
}

// DefaultCalendar returns the built-in UTC calendar.
func DefaultCalendar() *Calendar {
	c, err := New(DefaultBusinessHours(), DefaultLunch(), DefaultHolidays(), time.UTC)
	if err != nil {
		panic("calendar: default calendar invalid: " + err.Error())
	}
	return c
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// BusinessHours returns the configured business-hours window.
func (c *Calendar) BusinessHours() TimeWindow { return c.businessHours }

// Holiday returns the holiday name for t's date, if any.
func (c *Calendar) Holiday(t time.Time) (string, bool) {
	local := t.In(c.loc)
	if name, ok := c.holidays[local.Format("2006-01-02")]; ok {
		return name, true
	}
	name, ok := c.holidays[local.Format("01-02")]
	return name, ok
}

// IsHoliday reports whether t falls on a holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.Holiday(t)
	return ok
}

// IsWeekend reports whether t falls on Saturday or Sunday.
func (c *Calendar) IsWeekend(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsBusinessDay reports whether t is neither a weekend nor a holiday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	return !c.IsWeekend(t) && !c.IsHoliday(t)
}

// IsBusinessHours reports whether t is inside business hours on a
// non-holiday.
func (c *Calendar) IsBusinessHours(t time.Time) bool {
	return c.bh.Contains(t) && !c.IsHoliday(t)
}

// IsLunch reports whether t is inside the lunch window of a business day.
func (c *Calendar) IsLunch(t time.Time) bool {
	return c.lunchW.Contains(t) && c.IsBusinessDay(t)
}

// Period classifies the time of day of t.
func (c *Calendar) Period(t time.Time) Period {
	if c.IsLunch(t) {
		return PeriodLunch
	}
	switch h := t.In(c.loc).Hour(); {
	case h < 6 || h >= 22:
		return PeriodNight
	case h < 12:
		return PeriodMorning
	case h < 18:
		return PeriodAfternoon
	default:
		return PeriodEvening
	}
}

// Holidays returns the holiday keys, sorted.
func (c *Calendar) Holidays() []string {
	keys := make([]string, 0, len(c.holidays))
	for k := range c.holidays {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
