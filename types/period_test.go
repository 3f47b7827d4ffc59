package types

import (
	"testing"
	"time"
)

func TestParseMonth(t *testing.T) {
	now := time.Date(2024, time.March, 14, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want string
	}{
		{"2024-06", "2024-06"},
		{"1999-12", "1999-12"},
		{"", "2024-03"},
		{"garbage", "2024-03"},
		{"2024-13", "2024-03"},
		{"2024-6", "2024-03"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseMonth(tt.in, now).String(); got != tt.want {
				t.Errorf("ParseMonth(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFirstWeekday(t *testing.T) {
	tests := []struct {
		month Month
		want  string
	}{
		{Month{2024, time.June}, "2024-06-03"},      // starts on Saturday
		{Month{2024, time.September}, "2024-09-02"}, // starts on Sunday
		{Month{2024, time.January}, "2024-01-01"},   // starts on Monday
	}
	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			if got := tt.month.FirstWeekday().Format(DateLayout); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDueDate(t *testing.T) {
	today := time.Date(2024, time.June, 17, 15, 30, 0, 0, time.UTC)

	if got := (Month{2024, time.June}).DueDate(today).Format(DateLayout); got != "2024-06-17" {
		t.Errorf("current month due date = %s, want today", got)
	}
	if got := (Month{2024, time.September}).DueDate(today).Format(DateLayout); got != "2024-09-02" {
		t.Errorf("other month due date = %s, want first weekday", got)
	}
}

func TestMonthsBetween(t *testing.T) {
	from := time.Date(2023, time.November, 20, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC)

	got := MonthsBetween(from, to)
	want := []string{"2023-11", "2023-12", "2024-01", "2024-02"}
	if len(got) != len(want) {
		t.Fatalf("got %d months, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Errorf("month %d = %s, want %s", i, got[i], want[i])
		}
	}

	if MonthsBetween(to, from) != nil {
		t.Error("expected no months for inverted range")
	}
}

func TestInRange(t *testing.T) {
	from := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)

	if !InRange(time.Date(2024, time.June, 30, 23, 0, 0, 0, time.UTC), from, to) {
		t.Error("last day should be inside the range")
	}
	if InRange(time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), from, to) {
		t.Error("day after should be outside the range")
	}
	if !InRange(time.Date(1990, time.July, 1, 0, 0, 0, 0, time.UTC), time.Time{}, to) {
		t.Error("zero lower bound should be open")
	}
}
