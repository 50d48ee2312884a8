package calendar

import (
	"fmt"
	"time"
)

// Layout is the wire format for post date-times: ISO local, minute precision,
// no zone. It doubles as the calendar slot key source.
const Layout = "2006-01-02T15:04"

// DateLayout is the calendar-date half of Layout.
const DateLayout = "2006-01-02"

// Datetime is an ISO local date-time string to minute precision, e.g.
// "2024-06-03T09:15". It is kept as a string because both display and slot
// keying slice it positionally.
type Datetime string

// Valid reports whether the value parses at minute precision. Second
// precision from older rows is accepted too.
func (d Datetime) Valid() bool {
	_, err := d.Time()
	return err == nil
}

// Time parses the value into a wall-clock time in the local zone.
func (d Datetime) Time() (time.Time, error) {
	if t, err := time.ParseInLocation(Layout, string(d), time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", string(d), time.Local)
}

// Date returns the calendar-date part, "2006-01-02".
func (d Datetime) Date() string {
	if len(d) < 10 {
		return string(d)
	}
	return string(d[:10])
}

// HourKey returns the zero-padded hour-of-day part, "09".
func (d Datetime) HourKey() string {
	if len(d) < 13 {
		return ""
	}
	return string(d[11:13])
}

// SlotKey buckets the value into its (date, hour) calendar slot.
func (d Datetime) SlotKey() string {
	return d.Date() + "_" + d.HourKey()
}

// AddDays shifts the value by whole days, preserving the time of day.
func (d Datetime) AddDays(days int) Datetime {
	t, err := d.Time()
	if err != nil {
		return d
	}
	return FromTime(t.AddDate(0, 0, days))
}

// FromTime formats t at minute precision.
func FromTime(t time.Time) Datetime {
	return Datetime(t.Format(Layout))
}

// SlotKeyFor builds the slot key for an explicit date string and hour.
func SlotKeyFor(date string, hour int) string {
	return fmt.Sprintf("%s_%02d", date, hour)
}

// WeekDates returns the seven calendar dates of the Monday-based week
// containing base.
func WeekDates(base time.Time) []string {
	day := int(base.Weekday())
	diff := 1 - day
	if day == 0 { // Sunday belongs to the preceding Monday-based week
		diff = -6
	}
	monday := base.AddDate(0, 0, diff)

	dates := make([]string, 7)
	for i := range dates {
		dates[i] = monday.AddDate(0, 0, i).Format(DateLayout)
	}
	return dates
}
