// Package calendar answers temporal questions about simulated time:
// business hours, lunch, weekends, holidays.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// TimeWindow is a recurring weekly window. Days are matched by prefix
// ("mon", "Monday"), times are HH:MM and the end is exclusive. A window
// whose start is after its end crosses midnight.
type TimeWindow struct {
	Days      []string `json:"days,omitempty" yaml:"days,omitempty" mapstructure:"days"`
	StartTime string   `json:"start_time,omitempty" yaml:"start_time,omitempty" mapstructure:"start_time"`
	EndTime   string   `json:"end_time,omitempty" yaml:"end_time,omitempty" mapstructure:"end_time"`
	Location  string   `json:"location,omitempty" yaml:"location,omitempty" mapstructure:"location"`
}

// IsZero reports whether the window is unset.
func (tw TimeWindow) IsZero() bool {
	return len(tw.Days) == 0 && tw.StartTime == "" && tw.EndTime == "" && tw.Location == ""
}

// Matches checks if t falls within the window. An empty window matches
// everything.
func (tw *TimeWindow) Matches(t time.Time) (bool, error) {
	if tw == nil {
		return true, nil
	}
	w, err := Compile(*tw, nil)
	if err != nil {
		return false, err
	}
	return w.Contains(t), nil
}

// Validate checks the window's days, times and location.
func (tw TimeWindow) Validate() error {
	_, err := Compile(tw, nil)
	return err
}

// Window is a validated TimeWindow, ready for repeated evaluation.
// The zero Window contains every instant.
type Window struct {
	days     [7]bool
	byDay    bool
	start    int
	end      int
	hasRange bool
	loc      *time.Location
}

// Compile validates tw. Times are evaluated in the window's own location,
// or in fallback when it has none.
func Compile(tw TimeWindow, fallback *time.Location) (Window, error) {
	w := Window{byDay: len(tw.Days) > 0, loc: fallback}

	if tw.Location != "" {
		loc, err := time.LoadLocation(tw.Location)
		if err != nil {
			return Window{}, fmt.Errorf("invalid location '%s': %w", tw.Location, err)
		}
		w.loc = loc
	}

	for _, d := range tw.Days {
		day, err := parseDay(d)
		if err != nil {
			return Window{}, err
		}
		w.days[day] = true
	}

	if tw.StartTime != "" || tw.EndTime != "" {
		if tw.StartTime == "" || tw.EndTime == "" {
			return Window{}, fmt.Errorf("time window needs both start_time and end_time")
		}
		var err error
		if w.start, err = parseTimeOfDay(tw.StartTime); err != nil {
			return Window{}, err
		}
		if w.end, err = parseTimeOfDay(tw.EndTime); err != nil {
			return Window{}, err
		}
		w.hasRange = true
	}
	return w, nil
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.loc != nil {
		t = t.In(w.loc)
	}
	if w.byDay && !w.days[t.Weekday()] {
		return false
	}
	if !w.hasRange {
		return true
	}

	cur := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		// 09:00 - 17:00
		return cur >= w.start && cur < w.end
	}
	// 22:00 - 06:00
	return cur >= w.start || cur < w.end
}

var dayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func parseDay(s string) (time.Weekday, error) {
	d := strings.ToLower(strings.TrimSpace(s))
	if len(d) >= 3 {
		for i, name := range dayNames {
			if strings.HasPrefix(name, d) {
				return time.Weekday(i), nil
			}
		}
	}
	return 0, fmt.Errorf("invalid day '%s'", s)
}

func parseTimeOfDay(s string) (int, error) {
	if s == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time format '%s' (expected HH:MM): %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
