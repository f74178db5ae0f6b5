package nlu

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/heydoc/booking-platform/internal/catalog"
	"github.com/heydoc/booking-platform/internal/dates"
)

// specialtyEntry maps keyword variants to the canonical specialty label.
type specialtyEntry struct {
	canonical string
	keywords  []string
}

// Ordered so extraction is deterministic when several keywords appear.
var specialtyLexicon = []specialtyEntry{
	{"Cardiologue", []string{"cardiologue", "cardiologist", "cardio"}},
	{"Dermatologue", []string{"dermatologue", "dermatologist", "dermato"}},
	{"Pédiatre", []string{"pédiatre", "pediatre", "pediatrician"}},
	{"Ophtalmologue", []string{"ophtalmologue", "ophtalmo", "ophthalmologist"}},
	{"Gynécologue", []string{"gynécologue", "gynecologue", "gyneco", "gynecologist"}},
	{"Dentiste", []string{"dentiste", "dentist"}},
	{"Psychiatre", []string{"psychiatre", "psychiatrist"}},
	{"Médecin généraliste", []string{"généraliste", "generaliste", "general practitioner", "médecin", "medecin"}},
}

// cityAfterPrepRE captures a capitalised word after a location preposition,
// e.g. "à Paris", "sur Lyon", "in Marseille".
var cityAfterPrepRE = regexp.MustCompile(`(?:^|\s)(?:à|au|sur|in|at|a)\s+([A-ZÀ-Þ][\p{L}'’-]+(?:\s[A-ZÀ-Þ][\p{L}'’-]+)*)`)

// RuleExtractor recognises fields with regexes and keyword tables. It backs
// the simulator and serves as the offline fallback when no LLM is
// configured.
type RuleExtractor struct {
	parser *dates.Parser
	cities []string
}

var _ Extractor = (*RuleExtractor)(nil)

// NewRuleExtractor creates a rule-based extractor. The catalog seeds the
// city list; a nil catalog still works with the preposition capture.
func NewRuleExtractor(parser *dates.Parser, cat *catalog.Catalog) *RuleExtractor {
	if parser == nil {
		parser = dates.NewParser(time.Now())
	}
	e := &RuleExtractor{parser: parser}
	if cat != nil {
		e.cities = cat.Cities()
	}
	return e
}

// Extract reads one turn with rules only. It never returns an error.
func (e *RuleExtractor) Extract(_ context.Context, in Input) (Extraction, error) {
	text := in.Text

	if IsReset(text) {
		return Extraction{Action: ActionReset}, nil
	}
	if IsAffirmative(text) {
		return Extraction{Action: ActionConfirm}, nil
	}
	if IsNegative(text) {
		return Extraction{Action: ActionDecline}, nil
	}

	collected := &CollectedInfo{
		SpecialistType: e.specialty(text),
		Location:       e.city(text),
	}
	if parsed, ok := e.parser.Parse(text); ok {
		collected.Date = parsed.Format(time.RFC3339)
	}
	if hours := dates.ExtractHourRange(text); !hours.IsZero() {
		collected.TimeSlot = hours.String()
	}

	if !collected.Empty() {
		return Extraction{Action: ActionCollectInfo, Collected: collected}, nil
	}
	if DetectIntent(text) == IntentBook {
		return Extraction{Action: ActionCollectInfo}, nil
	}
	return Extraction{Action: ActionGeneral}, nil
}

func (e *RuleExtractor) specialty(text string) string {
	t := normalize(text)
	for _, entry := range specialtyLexicon {
		for _, kw := range entry.keywords {
			if containsPhrase(t, kw) {
				return entry.canonical
			}
		}
	}
	return ""
}

func (e *RuleExtractor) city(text string) string {
	t := normalize(text)
	for _, city := range e.cities {
		if containsPhrase(t, strings.ToLower(city)) {
			return city
		}
	}
	if m := cityAfterPrepRE.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}
