package workflow

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reMeridiem  = regexp.MustCompile(`\b(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?m\b`)
	reDayPeriod = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(?:o'?clock\s*)?(?:in the|at|this)?\s*(morning|afternoon|evening|night)\b`)
	reTonight   = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(?:o'?clock\s*)?tonight\b`)
	reClock24   = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	reOClock    = regexp.MustCompile(`\b(\d{1,2})\s*o'?clock\b`)
	reNoon      = regexp.MustCompile(`\b(noon|midday|lunchtime|lunch time)\b`)
	reMidnight  = regexp.MustCompile(`\bmidnight\b`)
)

// ParseTimeOfDay finds a clock time in a free-text reply such as "6am",
// "4:30 pm", "16:00", "2:30 in the afternoon" or "noon".
func ParseTimeOfDay(text string) (hour, minute int, ok bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, 0, false
	}

	if m := reMeridiem.FindStringSubmatch(s); m != nil {
		h, mins, ok := hourMinute(m[1], m[2], 1, 12)
		if !ok {
			return 0, 0, false
		}
		h %= 12
		if m[3] == "p" {
			h += 12
		}
		return h, mins, true
	}

	if m := reTonight.FindStringSubmatch(s); m != nil {
		return withPeriod(m[1], m[2], "evening")
	}
	if m := reDayPeriod.FindStringSubmatch(s); m != nil {
		return withPeriod(m[1], m[2], m[3])
	}

	if m := reClock24.FindStringSubmatch(s); m != nil {
		return hourMinute(m[1], m[2], 0, 23)
	}
	if m := reOClock.FindStringSubmatch(s); m != nil {
		return hourMinute(m[1], "", 0, 23)
	}

	if reNoon.MatchString(s) {
		return 12, 0, true
	}
	if reMidnight.MatchString(s) {
		return 0, 0, true
	}
	return 0, 0, false
}

func withPeriod(hs, ms, period string) (int, int, bool) {
	h, mins, ok := hourMinute(hs, ms, 1, 12)
	if !ok {
		return 0, 0, false
	}
	switch period {
	case "morning":
		h %= 12
	case "night":
		// "2 at night" stays in the small hours.
		switch {
		case h == 12:
			h = 0
		case h >= 6:
			h += 12
		}
	default:
		if h < 12 {
			h += 12
		}
	}
	return h, mins, true
}

func hourMinute(hs, ms string, minHour, maxHour int) (int, int, bool) {
	h, err := strconv.Atoi(hs)
	if err != nil || h < minHour || h > maxHour {
		return 0, 0, false
	}
	mins := 0
	if ms != "" {
		mins, err = strconv.Atoi(ms)
		if err != nil || mins > 59 {
			return 0, 0, false
		}
	}
	return h, mins, true
}

// mergeTime keeps the calendar date of day in loc and sets the clock time.
func mergeTime(day time.Time, hour, minute int, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, loc)
}
