// Package datemath formats and parses the local wall-clock datetime strings
// stored on events (YYYY-MM-DDTHH:MM:SS±HH:MM).
//
// Parsing is deliberately asymmetric: strings carrying an explicit zone (Z or
// ±HH:MM) are absolute instants, while naive strings are interpreted as wall
// clock time in the supplied location. Propagated events are always written
// with an offset, but externally sourced events may not be, so callers must not
// assume every stored datetime round-trips through the same location.
package datemath

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Layout is the canonical event datetime layout.
const Layout = "2006-01-02T15:04:05-07:00"

// DateLayout formats calendar dates.
const DateLayout = "2006-01-02"

var (
	bareOffsetPattern = regexp.MustCompile(`[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?[+-]\d{2}$`)
	zonedPattern      = regexp.MustCompile(`(?i)(z|[+-]\d{2}:\d{2})$`)
	naivePattern      = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ](\d{2}):(\d{2})(?::(\d{2})(?:\.(\d{1,9}))?)?$`)
)

var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

var fallbackLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	DateLayout,
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
}

// Format renders t in the canonical layout using t's own offset.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Parse interprets raw using the process local time zone for naive values.
func Parse(raw string) (time.Time, bool) {
	return ParseIn(raw, time.Local)
}

// ParseIn interprets raw, building naive values in loc. It reports false when
// raw cannot be understood.
func ParseIn(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}

	if bareOffsetPattern.MatchString(value) {
		value += ":00"
	}

	if zonedPattern.MatchString(value) {
		normalized := value
		if len(normalized) > 10 && normalized[10] == ' ' {
			normalized = normalized[:10] + "T" + normalized[11:]
		}
		if last := len(normalized) - 1; normalized[last] == 'z' {
			normalized = normalized[:last] + "Z"
		}
		for _, layout := range zonedLayouts {
			if t, err := time.Parse(layout, normalized); err == nil {
				return t, true
			}
		}
	}

	if m := naivePattern.FindStringSubmatch(value); m != nil {
		return naiveLocal(m, loc)
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func naiveLocal(m []string, loc *time.Location) (time.Time, bool) {
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	second := 0
	if m[6] != "" {
		second, _ = strconv.Atoi(m[6])
	}
	nanos := 0
	if m[7] != "" {
		frac := m[7] + strings.Repeat("0", 9-len(m[7]))
		nanos, _ = strconv.Atoi(frac)
	}

	if month < 1 || month > 12 || day < 1 || day > DaysInMonth(year, time.Month(month)) {
		return time.Time{}, false
	}
	if hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, second, nanos, loc), true
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseClock reads "H:MM" or "HH:MM". Missing or non-numeric parts count as
// zero; ok is false when no part is numeric or the value is out of range.
// "24:00" is accepted so business hours can close at midnight.
func ParseClock(raw string) (hours, minutes int, ok bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	h, hErr := strconv.Atoi(strings.TrimSpace(parts[0]))
	var m int
	mErr := strconv.ErrSyntax
	if len(parts) > 1 {
		m, mErr = strconv.Atoi(strings.TrimSpace(parts[1]))
	}
	if hErr != nil && mErr != nil {
		return 0, 0, false
	}
	if hErr != nil {
		h = 0
	}
	if mErr != nil {
		m = 0
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, 0, false
	}
	return h, m, true
}

// ClockMinutes is ParseClock expressed as minutes after midnight.
func ClockMinutes(raw string) (int, bool) {
	h, m, ok := ParseClock(raw)
	if !ok {
		return 0, false
	}
	return h*60 + m, true
}

// MinutesOfDay returns the wall-clock minutes elapsed since midnight.
func MinutesOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// StartOfDay returns local midnight of t's calendar date.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AtClock returns the wall-clock time minutes after midnight on day's date.
// Values of 1440 or more roll over to following days.
func AtClock(day time.Time, minutes int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, day.Location())
}
