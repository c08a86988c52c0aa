package clock

import (
	"testing"
	"time"
)

func TestOverrideClock(t *testing.T) {
	clk := NewOverrideClock()

	if _, ok := clk.Override(); ok {
		t.Fatalf("new clock must not have an override")
	}

	fixed := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clk.Set(fixed)

	if !clk.Now().Equal(fixed) {
		t.Fatalf("Now() = %v, want %v", clk.Now(), fixed)
	}
	if got, ok := clk.Override(); !ok || !got.Equal(fixed) {
		t.Fatalf("Override() = %v, %v", got, ok)
	}

	clk.Clear()
	if _, ok := clk.Override(); ok {
		t.Fatalf("override must be cleared")
	}
	if time.Since(clk.Now()) > time.Minute {
		t.Fatalf("after Clear the clock must follow real time")
	}
}

func TestCalendarDayBoundaries(t *testing.T) {
	clk := NewOverrideClock()
	cal, err := NewCalendar(clk, "Africa/Cairo")
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}

	// 23:30 UTC — в Каире уже следующий день (UTC+2 зимой).
	clk.Set(time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC))

	if got := cal.Today(); got != "2026-03-10" {
		t.Errorf("Today() = %q, want 2026-03-10", got)
	}
	if got := cal.Yesterday(); got != "2026-03-09" {
		t.Errorf("Yesterday() = %q, want 2026-03-09", got)
	}

	sameDay := time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC)
	if !cal.IsToday(sameDay) {
		t.Errorf("IsToday(%v) = false, want true", sameDay)
	}

	past := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	if !cal.IsPastDay(past) {
		t.Errorf("IsPastDay(%v) = false, want true", past)
	}
	if cal.IsPastDay(sameDay) {
		t.Errorf("IsPastDay(today) = true, want false")
	}
}

func TestPrevDay(t *testing.T) {
	clk := NewOverrideClock()
	cal, err := NewCalendar(clk, "UTC")
	if err != nil {
		t.Fatalf("new calendar: %v", err)
	}

	tests := []struct {
		day  string
		want string
	}{
		{"2026-03-10", "2026-03-09"},
		{"2026-03-01", "2026-02-28"},
		{"2026-01-01", "2025-12-31"},
	}
	for _, tt := range tests {
		got, err := cal.PrevDay(tt.day)
		if err != nil {
			t.Errorf("PrevDay(%q): %v", tt.day, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PrevDay(%q) = %q, want %q", tt.day, got, tt.want)
		}
	}

	if _, err := cal.PrevDay("garbage"); err == nil {
		t.Errorf("PrevDay must reject a malformed day")
	}
}

func TestNewCalendarUnknownTimezone(t *testing.T) {
	if _, err := NewCalendar(NewOverrideClock(), "Nowhere/Unknown"); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
