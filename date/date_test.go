package date

import (
	"testing"
	"time"
)

// TestTime assert that the time() is cannonical and gives comparable times.
func TestTime(t *testing.T) {
	d1 := New(2025, 7, 31)
	d2 := New(2025, 7, 31)

	if d1.time() != d2.time() {
		t.Errorf("invalid time() function same day gives two different time")
	}
}

func TestOf(t *testing.T) {
	hcm := time.FixedZone("ICT", 7*3600)
	instant := time.Date(2025, time.March, 31, 20, 0, 0, 0, time.UTC)

	if got, want := Of(instant, nil), New(2025, time.March, 31); got != want {
		t.Errorf("Of(utc) = %v, want %v", got, want)
	}
	if got, want := Of(instant, hcm), New(2025, time.April, 1); got != want {
		t.Errorf("Of(ict) = %v, want %v", got, want)
	}
}

func TestStartEndOf(t *testing.T) {
	testCases := []struct {
		name      string
		in        Date
		period    Period
		wantStart Date
		wantEnd   Date
	}{
		{"month", New(2025, time.September, 10), Monthly, New(2025, time.September, 1), New(2025, time.September, 30)},
		{"leap february", New(2024, time.February, 15), Monthly, New(2024, time.February, 1), New(2024, time.February, 29)},
		{"second quarter", New(2025, time.May, 20), Quarterly, New(2025, time.April, 1), New(2025, time.June, 30)},
		{"fourth quarter", New(2025, time.December, 31), Quarterly, New(2025, time.October, 1), New(2025, time.December, 31)},
		{"year", New(2025, time.September, 8), Yearly, New(2025, time.January, 1), New(2025, time.December, 31)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.StartOf(tc.period); got != tc.wantStart {
				t.Errorf("StartOf(%v) = %v, want %v", tc.period, got, tc.wantStart)
			}
			if got := tc.in.EndOf(tc.period); got != tc.wantEnd {
				t.Errorf("EndOf(%v) = %v, want %v", tc.period, got, tc.wantEnd)
			}
		})
	}
}

func TestRange_Key(t *testing.T) {
	testCases := []struct {
		name string
		in   Range
		want string
	}{
		{"month", NewRange(New(2025, time.March, 14), Monthly), "2025-03"},
		{"quarter", NewRange(New(2025, time.August, 1), Quarterly), "2025-Q3"},
		{"first quarter", NewRange(New(2025, time.January, 1), Quarterly), "2025-Q1"},
		{"year", NewRange(New(2025, time.June, 1), Yearly), "2025"},
		{"open", Range{}, "all"},
		{"custom", Range{From: New(2025, time.September, 2), To: New(2025, time.September, 10)}, "2025-09-02_2025-09-10"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Key(); got != tc.want {
				t.Errorf("Key() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRange_Contains(t *testing.T) {
	q2 := NewRange(New(2025, time.May, 5), Quarterly)
	testCases := []struct {
		name string
		in   Range
		day  Date
		want bool
	}{
		{"first day", q2, New(2025, time.April, 1), true},
		{"last day", q2, New(2025, time.June, 30), true},
		{"day before", q2, New(2025, time.March, 31), false},
		{"day after", q2, New(2025, time.July, 1), false},
		{"open end", Range{From: New(2025, time.April, 1)}, New(2030, time.January, 1), true},
		{"unbounded", Range{}, New(2009, time.January, 3), true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Contains(tc.day); got != tc.want {
				t.Errorf("Contains(%v) = %v, want %v", tc.day, got, tc.want)
			}
		})
	}
}

func TestHistory_ValueAsOf(t *testing.T) {
	h := new(History[string])
	h.Append(New(2025, 7, 1), "jul").Append(New(2024, 7, 1), "last year").Append(New(2025, 7, 1), "jul bis")

	if h.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", h.Len())
	}

	testCases := []struct {
		on      Date
		wantDay Date
		want    string
		wantOk  bool
	}{
		{New(2024, 1, 1), Date{}, "", false},
		{New(2024, 7, 1), New(2024, 7, 1), "last year", true},
		{New(2025, 1, 1), New(2024, 7, 1), "last year", true},
		{New(2025, 8, 1), New(2025, 7, 1), "jul bis", true},
	}
	for _, tc := range testCases {
		t.Run(tc.on.String(), func(t *testing.T) {
			day, got, ok := h.ValueAsOf(tc.on)
			if ok != tc.wantOk || got != tc.want || day != tc.wantDay {
				t.Errorf("ValueAsOf(%v) = %v, %q, %v, want %v, %q, %v", tc.on, day, got, ok, tc.wantDay, tc.want, tc.wantOk)
			}
		})
	}
}
