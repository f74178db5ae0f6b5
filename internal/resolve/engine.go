package resolve

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/heydoc/booking-platform/internal/catalog"
	"github.com/heydoc/booking-platform/internal/dates"
	"github.com/heydoc/booking-platform/pkg/logging"
)

// Stage identifies which fallback produced a set of options.
type Stage string

const (
	// StageDirect matches doctors of the requested specialty in the
	// requested city with an open slot in the window.
	StageDirect Stage = "direct"
	// StageTeleconsultation matches tele-enabled doctors of the requested
	// specialty regardless of city.
	StageTeleconsultation Stage = "teleconsultation"
	// StageNearby matches doctors of the requested specialty in other
	// cities.
	StageNearby Stage = "nearby"
	// StageNotFound means every fallback came up empty.
	StageNotFound Stage = "not_found"
)

const (
	defaultSearchWindow = 30 * 24 * time.Hour
	defaultMaxResults   = 3
)

// Criteria is a fully collected appointment request.
type Criteria struct {
	Specialty string
	City      string
	From      time.Time
	To        time.Time
	Hours     dates.HourRange
}

// Option is one bookable slot.
type Option struct {
	Doctor           catalog.Doctor
	Slot             time.Time
	Teleconsultation bool
}

// Result is the outcome of one cascade search. Options all come from the
// same stage; lower stages are never mixed in.
type Result struct {
	Stage   Stage
	Options []Option
}

// Empty reports whether the search produced no options.
func (r Result) Empty() bool {
	return len(r.Options) == 0
}

// SearchMetrics records cascade outcomes.
type SearchMetrics interface {
	RecordSearch(stage string)
}

// Engine runs the resolution cascade over the doctor catalog.
type Engine struct {
	catalog      *catalog.Catalog
	logger       *logging.Logger
	tracer       trace.Tracer
	metrics      SearchMetrics
	searchWindow time.Duration
	maxResults   int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSearchWindow sets the default window applied when criteria carry no
// end date.
func WithSearchWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.searchWindow = d
		}
	}
}

// WithMaxResults caps how many options a search returns.
func WithMaxResults(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxResults = n
		}
	}
}

// WithMetrics wires a cascade outcome recorder.
func WithMetrics(m SearchMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a cascade engine over the given catalog.
func NewEngine(cat *catalog.Catalog, logger *logging.Logger, opts ...EngineOption) *Engine {
	if cat == nil {
		panic("resolve: catalog cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		catalog:      cat,
		logger:       logger,
		tracer:       otel.Tracer("heydoc.internal.resolve"),
		searchWindow: defaultSearchWindow,
		maxResults:   defaultMaxResults,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search walks the cascade: direct, then teleconsultation, then nearby.
// The first stage with at least one option wins.
func (e *Engine) Search(ctx context.Context, c Criteria) Result {
	_, span := e.tracer.Start(ctx, "resolve.search")
	defer span.End()

	c = e.normalize(c)
	span.SetAttributes(
		attribute.String("specialty", c.Specialty),
		attribute.String("city", c.City),
	)

	if opts := e.direct(c); len(opts) > 0 {
		return e.finish(span, StageDirect, opts)
	}
	if opts := e.teleconsultation(c); len(opts) > 0 {
		return e.finish(span, StageTeleconsultation, opts)
	}
	if opts := e.nearby(c); len(opts) > 0 {
		return e.finish(span, StageNearby, opts)
	}

	e.logger.Info("resolve: no options found",
		"specialty", c.Specialty,
		"city", c.City,
		"from", c.From,
		"to", c.To,
	)
	return e.finish(span, StageNotFound, nil)
}

func (e *Engine) finish(span trace.Span, stage Stage, opts []Option) Result {
	span.SetAttributes(attribute.String("stage", string(stage)))
	if e.metrics != nil {
		e.metrics.RecordSearch(string(stage))
	}
	return Result{Stage: stage, Options: opts}
}

func (e *Engine) normalize(c Criteria) Criteria {
	if c.To.IsZero() && !c.From.IsZero() {
		c.To = c.From.Add(e.searchWindow)
	}
	return c
}

// cityMatches uses a case-insensitive substring match so "paris" still hits
// arrondissement-qualified entries.
func cityMatches(docCity, wanted string) bool {
	return strings.Contains(strings.ToLower(docCity), strings.ToLower(wanted))
}

func (e *Engine) direct(c Criteria) []Option {
	var opts []Option
	for _, doc := range e.catalog.Doctors() {
		if !strings.EqualFold(doc.Specialty, c.Specialty) {
			continue
		}
		if !cityMatches(doc.City, c.City) {
			continue
		}
		opts = e.collectSlots(opts, doc, doc.Slots, c, false)
		if len(opts) >= e.maxResults {
			break
		}
	}
	return opts
}

// teleconsultation searches tele-enabled doctors of the specialty in any
// city. Tele slots must fall on the requested day itself.
func (e *Engine) teleconsultation(c Criteria) []Option {
	var opts []Option
	for _, doc := range e.catalog.Doctors() {
		if !doc.Teleconsultation {
			continue
		}
		if !strings.EqualFold(doc.Specialty, c.Specialty) {
			continue
		}
		var slots []time.Time
		for _, slot := range doc.TeleSlots {
			if c.From.IsZero() || sameDay(slot, c.From) {
				slots = append(slots, slot)
			}
		}
		opts = e.collectSlots(opts, doc, slots, c, true)
		if len(opts) >= e.maxResults {
			break
		}
	}
	return opts
}

func (e *Engine) nearby(c Criteria) []Option {
	var opts []Option
	for _, doc := range e.catalog.Doctors() {
		if !strings.EqualFold(doc.Specialty, c.Specialty) {
			continue
		}
		if cityMatches(doc.City, c.City) {
			continue
		}
		opts = e.collectSlots(opts, doc, doc.Slots, c, false)
		if len(opts) >= e.maxResults {
			break
		}
	}
	return opts
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// collectSlots appends the doctor's in-window slots, earliest first, up to
// the result cap.
func (e *Engine) collectSlots(opts []Option, doc catalog.Doctor, slots []time.Time, c Criteria, tele bool) []Option {
	sorted := append([]time.Time(nil), slots...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for _, slot := range sorted {
		if len(opts) >= e.maxResults {
			break
		}
		if !e.inWindow(slot, c) {
			continue
		}
		opts = append(opts, Option{Doctor: doc, Slot: slot, Teleconsultation: tele})
	}
	return opts
}

func (e *Engine) inWindow(slot time.Time, c Criteria) bool {
	if !c.From.IsZero() && slot.Before(c.From) {
		return false
	}
	if !c.To.IsZero() && slot.After(c.To) {
		return false
	}
	return c.Hours.Contains(slot)
}

// HasSlot reports whether the option is still present in the catalog. Used
// to re-check availability at confirmation time.
func (e *Engine) HasSlot(doctorID string, slot time.Time, tele bool) bool {
	doc := e.catalog.ByID(doctorID)
	if doc == nil {
		return false
	}
	if tele {
		return doc.HasTeleSlotOn(slot)
	}
	return doc.HasSlot(slot)
}

// KnowsSpecialty reports whether any doctor carries the specialty.
func (e *Engine) KnowsSpecialty(specialty string) bool {
	return e.catalog.HasSpecialty(specialty)
}
