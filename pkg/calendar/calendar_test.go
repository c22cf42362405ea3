package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestTimeWindow_Matches(t *testing.T) {
	tests := []struct {
		name   string
		window *TimeWindow
		at     time.Time
		want   bool
	}{
		{"nil window", nil, time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC), true},
		{"weekday inside", &TimeWindow{Days: []string{"Mon"}, StartTime: "09:00", EndTime: "17:00"}, time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC), true},
		{"end exclusive", &TimeWindow{StartTime: "09:00", EndTime: "17:00"}, time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC), false},
		{"wrong day", &TimeWindow{Days: []string{"tuesday"}}, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), false},
		{"cross midnight late", &TimeWindow{StartTime: "22:00", EndTime: "06:00"}, time.Date(2024, 3, 4, 23, 15, 0, 0, time.UTC), true},
		{"cross midnight early", &TimeWindow{StartTime: "22:00", EndTime: "06:00"}, time.Date(2024, 3, 4, 5, 59, 0, 0, time.UTC), true},
		{"cross midnight outside", &TimeWindow{StartTime: "22:00", EndTime: "06:00"}, time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC), false},
		{"location applied", &TimeWindow{StartTime: "09:00", EndTime: "17:00", Location: "America/New_York"}, time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.window.Matches(tt.at)
			if err != nil {
				t.Fatalf("Matches: %v", err)
			}
			if got != tt.want {
				t.Errorf("Matches(%v) = %v; want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestTimeWindow_Invalid(t *testing.T) {
	bad := []TimeWindow{
		{StartTime: "9am", EndTime: "17:00"},
		{StartTime: "09:00"},
		{Days: []string{"mo"}},
		{Location: "Mars/Olympus"},
	}
	for _, tw := range bad {
		if err := tw.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil; want error", tw)
		}
	}
}

func TestCalendar_Default(t *testing.T) {
	c := DefaultCalendar()

	monday10 := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	if !c.IsBusinessHours(monday10) {
		t.Error("Monday 10:00 should be business hours")
	}
	if c.IsBusinessHours(time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)) {
		t.Error("Monday 20:00 should be off hours")
	}

	saturday := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	if !c.IsWeekend(saturday) || c.IsBusinessHours(saturday) {
		t.Error("Saturday should be weekend and off hours")
	}

	christmas := time.Date(2024, 12, 25, 10, 0, 0, 0, time.UTC) // a Wednesday
	if name, ok := c.Holiday(christmas); !ok || name != "Christmas Day" {
		t.Errorf("Holiday(christmas) = %q, %v", name, ok)
	}
	if c.IsBusinessHours(christmas) {
		t.Error("holiday should not be business hours")
	}

	lunch := time.Date(2024, 3, 4, 12, 30, 0, 0, time.UTC)
	if !c.IsLunch(lunch) || c.Period(lunch) != PeriodLunch {
		t.Error("Monday 12:30 should be lunch")
	}
	if c.IsLunch(time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC)) {
		t.Error("weekend lunch should not count")
	}
	if got := c.Period(time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC)); got != PeriodNight {
		t.Errorf("Period(23:00) = %s; want night", got)
	}
}

func TestCalendar_DatedHoliday(t *testing.T) {
	c, err := New(DefaultBusinessHours(), DefaultLunch(), map[string]string{"2024-03-04": "Offsite"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.IsHoliday(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)) {
		t.Error("2024-03-04 should be a holiday")
	}
	if c.IsHoliday(time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)) {
		t.Error("dated holiday must not recur")
	}

	if _, err := New(DefaultBusinessHours(), DefaultLunch(), map[string]string{"March 4": "x"}, nil); err == nil {
		t.Error("expected error for malformed holiday key")
	}
}

func TestCalendar_Location(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c, err := New(DefaultBusinessHours(), DefaultLunch(), nil, loc)
	if err != nil {
		t.Fatal(err)
	}
	// 08:30 UTC is 09:30 in Berlin in March (CET).
	if !c.IsBusinessHours(time.Date(2024, 3, 4, 8, 30, 0, 0, time.UTC)) {
		t.Error("expected business hours in Berlin")
	}
}
