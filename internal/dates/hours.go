package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// HourRange bounds the acceptable time of day for a slot, both ends given as
// "HH:MM". An empty bound is unbounded.
type HourRange struct {
	After  string `json:"after,omitempty"`
	Before string `json:"before,omitempty"`
}

// IsZero reports whether no bound was extracted.
func (r HourRange) IsZero() bool {
	return r.After == "" && r.Before == ""
}

// String renders the range in a form ExtractHourRange parses back.
func (r HourRange) String() string {
	switch {
	case r.After != "" && r.Before != "":
		return fmt.Sprintf("entre %s et %s", frClock(r.After), frClock(r.Before))
	case r.After != "":
		return "après " + frClock(r.After)
	case r.Before != "":
		return "avant " + frClock(r.Before)
	}
	return ""
}

func frClock(hm string) string {
	return strings.Replace(hm, ":", "h", 1)
}

// Contains reports whether t's time of day falls within the range.
func (r HourRange) Contains(t time.Time) bool {
	hm := fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
	if r.After != "" && hm < r.After {
		return false
	}
	if r.Before != "" && hm > r.Before {
		return false
	}
	return true
}

var (
	rangeFrRE   = regexp.MustCompile(`(?:entre\s+)?(\d{1,2})\s*h\s*(\d{2})?\s*(?:et|[-–à])\s*(\d{1,2})\s*h\s*(\d{2})?`)
	rangeEnRE   = regexp.MustCompile(`(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*[-–]\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)
	betweenEnRE = regexp.MustCompile(`between\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s+and\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)`)
	afterFrRE   = regexp.MustCompile(`(?:après|apres)\s+(\d{1,2})\s*h\s*(\d{2})?`)
	beforeFrRE  = regexp.MustCompile(`avant\s+(\d{1,2})\s*h\s*(\d{2})?`)
	afterEnRE   = regexp.MustCompile(`after\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
	beforeEnRE  = regexp.MustCompile(`before\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)
)

// ExtractHourRange parses time-of-day constraints from free text, French
// forms first. Examples: "entre 14h et 18h", "après 14h", "after 2pm",
// "2pm-6pm", "le matin".
func ExtractHourRange(text string) HourRange {
	text = strings.ToLower(text)

	if m := rangeFrRE.FindStringSubmatch(text); m != nil {
		return HourRange{
			After:  clock(m[1], m[2], ""),
			Before: clock(m[3], m[4], ""),
		}
	}
	for _, re := range []*regexp.Regexp{rangeEnRE, betweenEnRE} {
		if m := re.FindStringSubmatch(text); m != nil {
			startMeridiem := m[3]
			if startMeridiem == "" {
				startMeridiem = m[6] // "2-6pm" puts both in the afternoon
			}
			return HourRange{
				After:  clock(m[1], m[2], startMeridiem),
				Before: clock(m[4], m[5], m[6]),
			}
		}
	}

	var r HourRange
	if m := afterFrRE.FindStringSubmatch(text); m != nil {
		r.After = clock(m[1], m[2], "")
	} else if m := afterEnRE.FindStringSubmatch(text); m != nil {
		r.After = clock(m[1], m[2], m[3])
	}
	if m := beforeFrRE.FindStringSubmatch(text); m != nil {
		r.Before = clock(m[1], m[2], "")
	} else if m := beforeEnRE.FindStringSubmatch(text); m != nil {
		r.Before = clock(m[1], m[2], m[3])
	}
	if !r.IsZero() {
		return r
	}

	switch {
	case strings.Contains(text, "matin") || strings.Contains(text, "morning"):
		return HourRange{Before: "12:00"}
	case strings.Contains(text, "après-midi") || strings.Contains(text, "apres-midi") ||
		strings.Contains(text, "afternoon"):
		return HourRange{After: "12:00", Before: "18:00"}
	case strings.Contains(text, "soir") || strings.Contains(text, "evening"):
		return HourRange{After: "17:00"}
	}

	return HourRange{}
}

// clock converts hour/minute strings plus an optional meridiem to "HH:MM".
// Noon stays noon: 12pm is 12:00 and 12am is 00:00.
func clock(hourStr, minStr, meridiem string) string {
	h, _ := strconv.Atoi(hourStr)
	m := 0
	if minStr != "" {
		m, _ = strconv.Atoi(minStr)
	}
	switch strings.ToLower(meridiem) {
	case "pm":
		if h != 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}
