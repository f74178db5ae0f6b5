package nlu

import (
	"context"
	"testing"
	"time"

	"github.com/heydoc/booking-platform/internal/catalog"
	"github.com/heydoc/booking-platform/internal/dates"
)

var ruleRef = time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC)

func newRuleExtractor(t *testing.T) *RuleExtractor {
	t.Helper()
	cat, err := catalog.Parse([]byte(`[
		{"id": "d1", "name": "Dr A", "specialty": "Cardiologue", "city": "Paris"},
		{"id": "d2", "name": "Dr B", "specialty": "Dermatologue", "city": "Lyon"}
	]`))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	return NewRuleExtractor(dates.NewParser(ruleRef), cat)
}

func TestRuleExtractorCollectsFields(t *testing.T) {
	e := newRuleExtractor(t)

	out, err := e.Extract(context.Background(), Input{
		Text: "je veux voir un cardiologue à Paris demain après 14h",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Action != ActionCollectInfo {
		t.Fatalf("action = %s", out.Action)
	}
	c := out.Collected
	if c == nil {
		t.Fatal("nothing collected")
	}
	if c.SpecialistType != "Cardiologue" {
		t.Fatalf("specialty = %q", c.SpecialistType)
	}
	if c.Location != "Paris" {
		t.Fatalf("location = %q", c.Location)
	}
	wantDate := time.Date(2025, 2, 16, 9, 0, 0, 0, time.UTC).Format(time.RFC3339)
	if c.Date != wantDate {
		t.Fatalf("date = %q, want %q", c.Date, wantDate)
	}
	if c.TimeSlot == "" {
		t.Fatal("expected a time slot")
	}
	if got := dates.ExtractHourRange(c.TimeSlot); got.After != "14:00" {
		t.Fatalf("time slot %q does not round-trip: %+v", c.TimeSlot, got)
	}
}

func TestRuleExtractorEnglishSpecialty(t *testing.T) {
	e := newRuleExtractor(t)

	out, _ := e.Extract(context.Background(), Input{Text: "I need a dermatologist in Lyon"})
	if out.Collected == nil || out.Collected.SpecialistType != "Dermatologue" {
		t.Fatalf("collected = %+v", out.Collected)
	}
	if out.Collected.Location != "Lyon" {
		t.Fatalf("location = %q", out.Collected.Location)
	}
}

func TestRuleExtractorCityOutsideCatalog(t *testing.T) {
	e := newRuleExtractor(t)

	out, _ := e.Extract(context.Background(), Input{Text: "un généraliste à Bordeaux"})
	if out.Collected == nil || out.Collected.Location != "Bordeaux" {
		t.Fatalf("collected = %+v", out.Collected)
	}
}

func TestRuleExtractorControlActions(t *testing.T) {
	e := newRuleExtractor(t)

	tests := []struct {
		text string
		want string
	}{
		{"reset", ActionReset},
		{"on recommence", ActionReset},
		{"oui parfait", ActionConfirm},
		{"non merci", ActionDecline},
		{"je voudrais un rendez-vous", ActionCollectInfo},
		{"quelle est la capitale de la France", ActionGeneral},
	}
	for _, tt := range tests {
		out, err := e.Extract(context.Background(), Input{Text: tt.text})
		if err != nil {
			t.Fatalf("Extract(%q): %v", tt.text, err)
		}
		if out.Action != tt.want {
			t.Fatalf("Extract(%q) action = %s, want %s", tt.text, out.Action, tt.want)
		}
	}
}

func TestRuleExtractorWithoutCatalog(t *testing.T) {
	e := NewRuleExtractor(dates.NewParser(ruleRef), nil)

	out, _ := e.Extract(context.Background(), Input{Text: "un dentiste sur Marseille"})
	if out.Collected == nil || out.Collected.Location != "Marseille" {
		t.Fatalf("collected = %+v", out.Collected)
	}
	if out.Collected.SpecialistType != "Dentiste" {
		t.Fatalf("specialty = %q", out.Collected.SpecialistType)
	}
}
