package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateKeyLayout is the canonical date key format used for equality and grouping.
const DateKeyLayout = "2006-01-02"

// Day is a calendar date without a time-of-day or zone component.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// Month identifies a calendar month of a specific year.
type Month struct {
	Year  int
	Month time.Month
}

// DayOf returns the calendar day of t as observed in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// Today returns the current calendar day in the local zone.
func Today() Day { return DayOf(time.Now()) }

// NewDay validates and builds a Day.
func NewDay(year int, month time.Month, day int) (Day, error) {
	if year < 1 || year > 9999 {
		return Day{}, fmt.Errorf("year %d out of range", year)
	}
	if month < time.January || month > time.December {
		return Day{}, fmt.Errorf("month %d out of range", month)
	}
	if day < 1 || day > DaysIn(year, month) {
		return Day{}, fmt.Errorf("day %d out of range for %04d-%02d", day, year, month)
	}
	return Day{Year: year, Month: month, Day: day}, nil
}

// ParseDay accepts YYYY-MM-DD, RFC 3339 timestamps and YYYY-MM-DDTHH:MM:SS
// values. Only the calendar date as written is kept; no zone conversion is
// applied, so "2024-06-01T23:30:00-05:00" is 2024-06-01.
func ParseDay(raw string) (Day, error) {
	s := strings.TrimSpace(raw)
	if len(s) < len(DateKeyLayout) {
		return Day{}, fmt.Errorf("invalid date %q", raw)
	}
	if len(s) > len(DateKeyLayout) {
		if s[len(DateKeyLayout)] != 'T' && s[len(DateKeyLayout)] != ' ' {
			return Day{}, fmt.Errorf("invalid date %q", raw)
		}
		if _, err := time.Parse(time.RFC3339, strings.Replace(s, " ", "T", 1)); err != nil {
			if _, err := time.Parse("2006-01-02T15:04:05", strings.Replace(s, " ", "T", 1)); err != nil {
				return Day{}, fmt.Errorf("invalid date %q", raw)
			}
		}
		s = s[:len(DateKeyLayout)]
	}
	if s[4] != '-' || s[7] != '-' {
		return Day{}, fmt.Errorf("invalid date %q", raw)
	}
	y, ok1 := digits(s[0:4])
	m, ok2 := digits(s[5:7])
	d, ok3 := digits(s[8:10])
	if !ok1 || !ok2 || !ok3 {
		return Day{}, fmt.Errorf("invalid date %q", raw)
	}
	day, err := NewDay(y, time.Month(m), d)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", raw, err)
	}
	return day, nil
}

// digits parses a field of ASCII digits; signs and spaces are rejected.
func digits(s string) (int, bool) {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// FormatDateKey canonicalizes any accepted date representation to YYYY-MM-DD.
func FormatDateKey(raw string) (string, error) {
	d, err := ParseDay(raw)
	if err != nil {
		return "", err
	}
	return d.Key(), nil
}

// Key returns the canonical YYYY-MM-DD key.
func (d Day) Key() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Day) String() string { return d.Key() }

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool { return d == Day{} }

// Time returns midnight UTC of d.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or +1.
func (d Day) Compare(o Day) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

func (d Day) Before(o Day) bool { return d.Compare(o) < 0 }
func (d Day) After(o Day) bool  { return d.Compare(o) > 0 }

// MonthOf returns the month containing d.
func (d Day) MonthOf() Month { return Month{Year: d.Year, Month: d.Month} }

// Weekday returns the day of the week of d.
func (d Day) Weekday() time.Weekday { return d.Time().Weekday() }

// AddDays returns d shifted by n days.
func (d Day) AddDays(n int) Day { return DayOf(d.Time().AddDate(0, 0, n)) }

// MarshalText implements encoding.TextMarshaler so JSON carries the date key.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.Key()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseMonth accepts YYYY-MM or any value ParseDay accepts.
func ParseMonth(raw string) (Month, error) {
	s := strings.TrimSpace(raw)
	if len(s) == len("2006-01") {
		d, err := ParseDay(s + "-01")
		if err != nil {
			return Month{}, fmt.Errorf("invalid month %q", raw)
		}
		return d.MonthOf(), nil
	}
	d, err := ParseDay(s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q", raw)
	}
	return d.MonthOf(), nil
}

// First returns the first day of m.
func (m Month) First() Day { return Day{Year: m.Year, Month: m.Month, Day: 1} }

// Last returns the last day of m.
func (m Month) Last() Day { return Day{Year: m.Year, Month: m.Month, Day: DaysIn(m.Year, m.Month)} }

// Len returns the number of days in m.
func (m Month) Len() int { return DaysIn(m.Year, m.Month) }

// Next returns the following month.
func (m Month) Next() Month { return m.First().AddDays(m.Len()).MonthOf() }

// Prev returns the preceding month.
func (m Month) Prev() Month { return m.First().AddDays(-1).MonthOf() }

// Contains reports whether d falls in m. Year is compared as well as month.
func (m Month) Contains(d Day) bool { return d.Year == m.Year && d.Month == m.Month }

func (m Month) String() string { return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)) }

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
