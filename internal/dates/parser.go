package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// defaultHour is applied when the user gives a day without a time.
const defaultHour = 9

// Parser interprets natural-language dates relative to a fixed reference
// moment. French and English forms are understood.
type Parser struct {
	Reference time.Time
}

// NewParser returns a parser anchored at ref.
func NewParser(ref time.Time) *Parser {
	return &Parser{Reference: ref}
}

var (
	isoRE      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}(:\d{2})?(Z|[+-]\d{2}:\d{2})?)?`)
	inDaysRE   = regexp.MustCompile(`(?:dans|in)\s+(\d{1,3})\s+(?:jours?|days?)`)
	numericRE  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	nextWeekRE = regexp.MustCompile(`(?:la\s+)?semaine\s+prochaine|next\s+week`)
)

// weekdays is ordered so that the first name appearing in the input wins
// deterministically when several are present.
var weekdays = []struct {
	name string
	day  time.Weekday
}{
	{"lundi", time.Monday},
	{"monday", time.Monday},
	{"mardi", time.Tuesday},
	{"tuesday", time.Tuesday},
	{"mercredi", time.Wednesday},
	{"wednesday", time.Wednesday},
	{"jeudi", time.Thursday},
	{"thursday", time.Thursday},
	{"vendredi", time.Friday},
	{"friday", time.Friday},
	{"samedi", time.Saturday},
	{"saturday", time.Saturday},
	{"dimanche", time.Sunday},
	{"sunday", time.Sunday},
}

// Parse interprets input and returns the resolved moment. The second return
// value is false when no supported form is found. Resolution is attempted in
// priority order so that an explicit timestamp always wins over fuzzy terms.
func (p *Parser) Parse(input string) (time.Time, bool) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return time.Time{}, false
	}

	// Timestamps are matched against the raw input: lowercasing would break
	// the RFC 3339 T and Z markers.
	if t, ok := p.parseISO(raw); ok {
		return t, true
	}

	text := strings.ToLower(raw)
	if t, ok := p.parseRelativeDay(text); ok {
		return t, true
	}
	if t, ok := p.parseWeekday(text); ok {
		return t, true
	}
	if m := inDaysRE.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return p.dayAt(p.Reference.AddDate(0, 0, n)), true
		}
	}
	if nextWeekRE.MatchString(text) {
		return p.dayAt(p.Reference.AddDate(0, 0, 7)), true
	}
	if t, ok := p.parseNumeric(text); ok {
		return t, true
	}

	return time.Time{}, false
}

// Valid reports whether t is usable as an appointment date: non-zero and not
// before the reference day.
func (p *Parser) Valid(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	ref := p.Reference
	startOfDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	return !t.Before(startOfDay)
}

func (p *Parser) parseISO(text string) (time.Time, bool) {
	match := isoRE.FindString(text)
	if match == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, match); err == nil {
			return t, true
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", match, p.Reference.Location()); err == nil {
		return t.Add(defaultHour * time.Hour), true
	}
	return time.Time{}, false
}

func (p *Parser) parseRelativeDay(text string) (time.Time, bool) {
	switch {
	case strings.Contains(text, "après-demain"), strings.Contains(text, "apres-demain"),
		strings.Contains(text, "après demain"), strings.Contains(text, "apres demain"),
		strings.Contains(text, "day after tomorrow"):
		return p.dayAt(p.Reference.AddDate(0, 0, 2)), true
	case strings.Contains(text, "demain"), strings.Contains(text, "tomorrow"):
		return p.dayAt(p.Reference.AddDate(0, 0, 1)), true
	case strings.Contains(text, "aujourd'hui"), strings.Contains(text, "aujourdhui"),
		strings.Contains(text, "today"):
		return p.dayAt(p.Reference), true
	}
	return time.Time{}, false
}

// parseWeekday resolves a weekday name to its next occurrence. A weekday that
// already passed this week (or is today) lands on next week. "prochain"/"next"
// pushes a weekday still ahead this week into the following week.
func (p *Parser) parseWeekday(text string) (time.Time, bool) {
	bestIdx := -1
	var wd time.Weekday
	for _, entry := range weekdays {
		idx := strings.Index(text, entry.name)
		if idx < 0 || !containsWord(text, entry.name) {
			continue
		}
		if bestIdx == -1 || idx < bestIdx {
			bestIdx = idx
			wd = entry.day
		}
	}
	if bestIdx >= 0 {
		diff := (int(wd) - int(p.Reference.Weekday()) + 7) % 7
		if diff == 0 {
			diff = 7
		}
		explicitNext := strings.Contains(text, "prochain") || containsWord(text, "next")
		if explicitNext && diff < daysUntilNextMonday(p.Reference.Weekday()) {
			// "jeudi prochain" said on a Monday means next week's Thursday,
			// not the one three days away. When the bare weekday already
			// lands next week, "prochain" adds nothing.
			diff += 7
		}
		return p.dayAt(p.Reference.AddDate(0, 0, diff)), true
	}
	return time.Time{}, false
}

func (p *Parser) parseNumeric(text string) (time.Time, bool) {
	m := numericRE.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year := p.Reference.Year()
	if m[3] != "" {
		y, _ := strconv.Atoi(m[3])
		if y < 100 {
			y += 2000
		}
		year = y
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, defaultHour, 0, 0, 0, p.Reference.Location())
	if t.Day() != day || t.Month() != time.Month(month) {
		// time.Date normalized an impossible date like 31/02
		return time.Time{}, false
	}
	return t, true
}

func (p *Parser) dayAt(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), defaultHour, 0, 0, 0, p.Reference.Location())
}

// daysUntilNextMonday treats the week as running Monday through Sunday.
func daysUntilNextMonday(w time.Weekday) int {
	d := (int(time.Monday) - int(w) + 7) % 7
	if d == 0 {
		d = 7
	}
	return d
}

func containsWord(text, word string) bool {
	idx := strings.Index(text, word)
	if idx < 0 {
		return false
	}
	if idx > 0 && isLetter(text[idx-1]) {
		return false
	}
	end := idx + len(word)
	if end < len(text) && isLetter(text[end]) {
		return false
	}
	return true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
