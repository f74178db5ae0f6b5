package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heydoc/booking-platform/internal/catalog"
	"github.com/heydoc/booking-platform/internal/dates"
	"github.com/heydoc/booking-platform/pkg/logging"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "doctors.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	cat, err := catalog.Parse(data)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return cat
}

func dayWindow(year int, month time.Month, day int) (time.Time, time.Time) {
	from := time.Date(year, month, day, 9, 0, 0, 0, time.UTC)
	to := time.Date(year, month, day, 23, 59, 59, 0, time.UTC)
	return from, to
}

func TestSearchDirectStage(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())

	from, to := dayWindow(2025, 2, 20)
	res := engine.Search(context.Background(), Criteria{
		Specialty: "Dermatologue",
		City:      "Paris",
		From:      from,
		To:        to,
	})

	if res.Stage != StageDirect {
		t.Fatalf("stage = %s, want direct", res.Stage)
	}
	if len(res.Options) != 2 {
		t.Fatalf("got %d options, want 2: %+v", len(res.Options), res.Options)
	}
	if res.Options[0].Doctor.ID != "doc-003" {
		t.Fatalf("doctor = %s", res.Options[0].Doctor.ID)
	}
	// Earliest slot first.
	if !res.Options[0].Slot.Before(res.Options[1].Slot) {
		t.Fatalf("slots out of order: %v", res.Options)
	}
	for _, opt := range res.Options {
		if opt.Teleconsultation {
			t.Fatalf("direct option flagged as tele: %+v", opt)
		}
	}
}

func TestSearchCityMatchIsCaseInsensitiveSubstring(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())

	from, to := dayWindow(2025, 2, 20)
	res := engine.Search(context.Background(), Criteria{
		Specialty: "dermatologue",
		City:      "paris",
		From:      from,
		To:        to,
	})
	if res.Stage != StageDirect || len(res.Options) == 0 {
		t.Fatalf("stage = %s, options = %d", res.Stage, len(res.Options))
	}
}

func TestSearchTeleconsultationFallback(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())

	// No Paris cardiologist has a slot on 17 March, but Dr Simon in Lyon
	// offers a teleconsultation that day.
	from, to := dayWindow(2025, 3, 17)
	res := engine.Search(context.Background(), Criteria{
		Specialty: "Cardiologue",
		City:      "Paris",
		From:      from,
		To:        to,
	})

	if res.Stage != StageTeleconsultation {
		t.Fatalf("stage = %s, want teleconsultation", res.Stage)
	}
	if len(res.Options) != 1 {
		t.Fatalf("options = %+v", res.Options)
	}
	opt := res.Options[0]
	if opt.Doctor.ID != "doc-001" || !opt.Teleconsultation {
		t.Fatalf("option = %+v", opt)
	}
	want := time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC)
	if !opt.Slot.Equal(want) {
		t.Fatalf("slot = %v, want %v", opt.Slot, want)
	}
}

func TestSearchNearbyFallback(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())

	// No dermatologist in Lyon and no teleconsultation on the requested
	// day, so other cities are searched.
	res := engine.Search(context.Background(), Criteria{
		Specialty: "Dermatologue",
		City:      "Lyon",
		From:      time.Date(2025, 2, 19, 9, 0, 0, 0, time.UTC),
		To:        time.Date(2025, 2, 28, 23, 59, 59, 0, time.UTC),
	})

	if res.Stage != StageNearby {
		t.Fatalf("stage = %s, want nearby", res.Stage)
	}
	if len(res.Options) != 3 {
		t.Fatalf("got %d options, want 3 (capped): %+v", len(res.Options), res.Options)
	}
	// Catalog order preserved: doc-003 comes before doc-004.
	if res.Options[0].Doctor.ID != "doc-003" {
		t.Fatalf("first doctor = %s", res.Options[0].Doctor.ID)
	}
}

func TestSearchNotFound(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())

	from, to := dayWindow(2025, 2, 25)
	res := engine.Search(context.Background(), Criteria{
		Specialty: "Pédiatre",
		City:      "Paris",
		From:      from,
		To:        to,
	})

	if res.Stage != StageNotFound || !res.Empty() {
		t.Fatalf("result = %+v", res)
	}
}

func TestSearchHourRangeFilter(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())

	from, to := dayWindow(2025, 2, 20)
	res := engine.Search(context.Background(), Criteria{
		Specialty: "Dermatologue",
		City:      "Paris",
		From:      from,
		To:        to,
		Hours:     dates.HourRange{After: "13:00"},
	})

	if res.Stage != StageDirect || len(res.Options) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Options[0].Slot.Hour() != 14 {
		t.Fatalf("slot = %v", res.Options[0].Slot)
	}
}

func TestSearchDefaultWindow(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())

	// Open-ended request: the 30-day default window applies.
	res := engine.Search(context.Background(), Criteria{
		Specialty: "Cardiologue",
		City:      "Lyon",
		From:      time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC),
	})

	if res.Stage != StageDirect {
		t.Fatalf("stage = %s", res.Stage)
	}
	if len(res.Options) != 3 {
		t.Fatalf("got %d options: %+v", len(res.Options), res.Options)
	}
}

func TestSearchMaxResults(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default(), WithMaxResults(1))

	from, to := dayWindow(2025, 2, 20)
	res := engine.Search(context.Background(), Criteria{
		Specialty: "Dermatologue",
		City:      "Paris",
		From:      from,
		To:        to,
	})
	if len(res.Options) != 1 {
		t.Fatalf("got %d options, want 1", len(res.Options))
	}
}

type stageRecorder struct {
	stages []string
}

func (r *stageRecorder) RecordSearch(stage string) {
	r.stages = append(r.stages, stage)
}

func TestSearchRecordsMetrics(t *testing.T) {
	rec := &stageRecorder{}
	engine := NewEngine(testCatalog(t), logging.Default(), WithMetrics(rec))

	from, to := dayWindow(2025, 2, 20)
	engine.Search(context.Background(), Criteria{
		Specialty: "Dermatologue",
		City:      "Paris",
		From:      from,
		To:        to,
	})
	if len(rec.stages) != 1 || rec.stages[0] != "direct" {
		t.Fatalf("recorded stages = %v", rec.stages)
	}
}

func TestHasSlot(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())

	slot := time.Date(2025, 3, 18, 9, 30, 0, 0, time.UTC)
	if !engine.HasSlot("doc-001", slot, false) {
		t.Fatal("expected direct slot to exist")
	}
	if engine.HasSlot("doc-001", slot.Add(time.Hour), false) {
		t.Fatal("unexpected direct slot")
	}

	tele := time.Date(2025, 3, 17, 15, 0, 0, 0, time.UTC)
	if !engine.HasSlot("doc-001", tele, true) {
		t.Fatal("expected a tele slot on that day")
	}
	if engine.HasSlot("missing", slot, false) {
		t.Fatal("unknown doctor must not match")
	}
}

func TestKnowsSpecialty(t *testing.T) {
	engine := NewEngine(testCatalog(t), logging.Default())
	if !engine.KnowsSpecialty("cardiologue") {
		t.Fatal("expected specialty to be known")
	}
	if engine.KnowsSpecialty("Ophtalmologue") {
		t.Fatal("unexpected specialty")
	}
}
