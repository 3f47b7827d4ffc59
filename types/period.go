package types

import (
	"fmt"
	"time"
)

// MonthLayout is the external month key format.
const MonthLayout = "2006-01"

// DateLayout is the external calendar date format.
const DateLayout = "2006-01-02"

// Month addresses one billing month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf returns the month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// NewMonth validates year and month.
func NewMonth(year, month int) (Month, error) {
	if month < 1 || month > 12 || year < 1 {
		return Month{}, fmt.Errorf("types: invalid month %04d-%02d", year, month)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

// ParseMonth parses a "YYYY-MM" key. Empty or unparsable input yields the
// month containing now.
func ParseMonth(s string, now time.Time) Month {
	if s == "" {
		return MonthOf(now)
	}
	t, err := time.Parse(MonthLayout, s)
	if err != nil {
		return MonthOf(now)
	}
	return MonthOf(t)
}

// String renders "YYYY-MM".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Start is midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last calendar day of the month.
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, -1)
}

// Next returns the following month.
func (m Month) Next() Month {
	return MonthOf(m.Start().AddDate(0, 1, 0))
}

// Before reports whether m is earlier than other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

// FirstWeekday returns the first Monday-to-Friday day of the month.
func (m Month) FirstWeekday() time.Time {
	d := m.Start()
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// DueDate is the displayed due date for m: today when m is the current
// month, the first weekday otherwise.
func (m Month) DueDate(today time.Time) time.Time {
	if MonthOf(today) == m {
		return DateOf(today)
	}
	return m.FirstWeekday()
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween lists the months touched by [from, to], inclusive.
func MonthsBetween(from, to time.Time) []Month {
	if to.Before(from) {
		return nil
	}
	var months []Month
	last := MonthOf(to)
	for m := MonthOf(from); !last.Before(m); m = m.Next() {
		months = append(months, m)
	}
	return months
}

// InRange reports whether t falls on a day within [from, to]. Zero bounds
// are open.
func InRange(t, from, to time.Time) bool {
	d := DateOf(t)
	if !from.IsZero() && d.Before(DateOf(from)) {
		return false
	}
	if !to.IsZero() && d.After(DateOf(to)) {
		return false
	}
	return true
}
