package cd11

import (
	"fmt"
	"strconv"
	"time"
)

// JulianDateLen is the width of a timestamp field, "yyyyddd hh:mm:ss.mmm".
const JulianDateLen = 20

// FormatJulianDate renders t (converted to UTC) as yyyyddd hh:mm:ss.mmm.
func FormatJulianDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d%03d %02d:%02d:%02d.%03d",
		t.Year(), t.YearDay(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
}

// ParseJulianDate parses yyyyddd hh:mm:ss.mmm into a UTC time. Day 001 is
// January 1st.
func ParseJulianDate(s string) (time.Time, error) {
	if len(s) != JulianDateLen || s[7] != ' ' || s[10] != ':' || s[13] != ':' || s[16] != '.' {
		return time.Time{}, fmt.Errorf("%w: %q is not a yyyyddd hh:mm:ss.mmm date", ErrInvalidField, s)
	}
	fields := []struct {
		text     string
		min, max int
	}{
		{s[0:4], 0, 9999},
		{s[4:7], 1, 366},
		{s[8:10], 0, 23},
		{s[11:13], 0, 59},
		{s[14:16], 0, 60},
		{s[17:20], 0, 999},
	}
	var v [6]int
	for i, f := range fields {
		n, err := strconv.Atoi(f.text)
		if err != nil || n < f.min || n > f.max || f.text[0] == '-' || f.text[0] == '+' {
			return time.Time{}, fmt.Errorf("%w: bad component %q in date %q", ErrInvalidField, f.text, s)
		}
		v[i] = n
	}
	start := time.Date(v[0], time.January, 1, v[2], v[3], v[4], v[5]*int(time.Millisecond), time.UTC)
	t := start.AddDate(0, 0, v[1]-1)
	if t.Year() != v[0] {
		return time.Time{}, fmt.Errorf("%w: day %d is past the end of %d", ErrInvalidField, v[1], v[0])
	}
	return t, nil
}
