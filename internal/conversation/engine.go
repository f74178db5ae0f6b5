package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/heydoc/booking-platform/internal/dates"
	"github.com/heydoc/booking-platform/internal/nlu"
	"github.com/heydoc/booking-platform/internal/resolve"
	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

// HistoryRecorder persists finished sessions and bookings durably.
type HistoryRecorder interface {
	RecordSession(ctx context.Context, sess *session.UserSession) error
	RecordAppointment(ctx context.Context, appt *session.ConfirmedAppointment) error
}

// Archiver stores finished session documents in cold storage.
type Archiver interface {
	Enabled() bool
	ArchiveSession(ctx context.Context, sess *session.UserSession) error
}

// Notifier delivers booking confirmations out of band.
type Notifier interface {
	SendConfirmation(ctx context.Context, appt *session.ConfirmedAppointment) error
}

// Metrics records engine activity.
type Metrics interface {
	RecordMessage(channel, action string)
	ObserveTurn(d time.Duration)
	RecordBooking(stage string)
}

// Field collection policies.
const (
	// FieldPolicySingle asks for one missing field per turn.
	FieldPolicySingle = "single"
	// FieldPolicyMulti asks for every missing field at once.
	FieldPolicyMulti = "multi"
)

// singlePriority orders the per-turn questions under FieldPolicySingle.
var singlePriority = []string{
	session.FieldSpecialist,
	session.FieldLocation,
	session.FieldDateRange,
}

// Engine drives one booking conversation per user: it collects the
// specialty, city and date, walks the resolution cascade once everything is
// known, and books the proposed slot on confirmation.
type Engine struct {
	store     session.Store
	resolver  *resolve.Engine
	extractor nlu.Extractor
	logger    *logging.Logger
	tracer    trace.Tracer

	history  HistoryRecorder
	archiver Archiver
	notifier Notifier
	metrics  Metrics

	clock       func() time.Time
	fieldPolicy string

	locks sync.Map // userID -> *sync.Mutex
}

var _ Service = (*Engine)(nil)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithFieldPolicy selects how many missing fields each prompt asks for.
func WithFieldPolicy(policy string) EngineOption {
	return func(e *Engine) {
		if policy == FieldPolicySingle || policy == FieldPolicyMulti {
			e.fieldPolicy = policy
		}
	}
}

// WithHistoryRecorder wires the durable history sink.
func WithHistoryRecorder(h HistoryRecorder) EngineOption {
	return func(e *Engine) { e.history = h }
}

// WithArchiver wires cold storage for finished sessions.
func WithArchiver(a Archiver) EngineOption {
	return func(e *Engine) { e.archiver = a }
}

// WithNotifier wires the confirmation sender.
func WithNotifier(n Notifier) EngineOption {
	return func(e *Engine) { e.notifier = n }
}

// WithEngineMetrics wires activity metrics.
func WithEngineMetrics(m Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithEngineClock overrides the time source.
func WithEngineClock(clock func() time.Time) EngineOption {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// NewEngine wires the conversation engine.
func NewEngine(store session.Store, resolver *resolve.Engine, extractor nlu.Extractor, logger *logging.Logger, opts ...EngineOption) *Engine {
	if store == nil {
		panic("conversation: session store cannot be nil")
	}
	if resolver == nil {
		panic("conversation: resolver cannot be nil")
	}
	if extractor == nil {
		panic("conversation: extractor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Engine{
		store:       store,
		resolver:    resolver,
		extractor:   extractor,
		logger:      logger,
		tracer:      otel.Tracer("heydoc.internal.conversation"),
		clock:       func() time.Time { return time.Now().UTC() },
		fieldPolicy: FieldPolicySingle,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) userLock(userID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// StartConversation opens a fresh session and greets the user.
func (e *Engine) StartConversation(ctx context.Context, req StartRequest) (*Response, error) {
	if req.UserID == "" {
		return nil, errors.New("conversation: user id required")
	}

	mu := e.userLock(req.UserID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "conversation.start")
	defer span.End()

	sess, err := e.store.StartNewSession(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to start session: %w", err)
	}
	if err := e.store.SetStatus(ctx, req.UserID, session.StatusCollecting); err != nil {
		return nil, fmt.Errorf("conversation: failed to update session: %w", err)
	}
	e.echo(ctx, req.UserID, msgGreeting)
	e.countMessage(req.Channel, ActionCollectInfo)

	return &Response{
		UserID:    req.UserID,
		SessionID: sess.ID,
		Action:    ActionCollectInfo,
		Message:   msgGreeting,
		Status:    session.StatusCollecting,
		Missing:   sess.Info.MissingFields,
	}, nil
}

// ProcessMessage runs one user turn through the state machine.
func (e *Engine) ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	if req.UserID == "" {
		return nil, errors.New("conversation: user id required")
	}

	started := e.clock()
	defer func() {
		if e.metrics != nil {
			e.metrics.ObserveTurn(e.clock().Sub(started))
		}
	}()

	mu := e.userLock(req.UserID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "conversation.process_message")
	defer span.End()
	span.SetAttributes(attribute.String("channel", req.Channel))

	text := strings.TrimSpace(req.Message)
	if text == "" {
		e.countMessage(req.Channel, ActionError)
		return &Response{
			UserID:  req.UserID,
			Action:  ActionError,
			Message: msgEmptyMessage,
		}, nil
	}

	sess, err := e.store.GetSession(ctx, req.UserID)
	if errors.Is(err, session.ErrNoActiveSession) {
		sess, err = e.store.StartNewSession(ctx, req.UserID)
		if err == nil {
			err = e.store.SetStatus(ctx, req.UserID, session.StatusCollecting)
			sess.Status = session.StatusCollecting
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load session: %w", err)
	}

	if err := e.store.AddMessage(ctx, req.UserID, session.Message{Role: "user", Content: text}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to record message: %w", err)
	}

	if nlu.IsReset(text) {
		return e.reset(ctx, req)
	}

	// A pending proposal takes yes/no answers directly, without the
	// extractor in the loop.
	if sess.Status == session.StatusSuggested {
		if nlu.IsAffirmative(text) {
			return e.confirm(ctx, req, sess)
		}
		if nlu.IsNegative(text) {
			return e.decline(ctx, req, sess)
		}
	}

	extraction, err := e.extractor.Extract(ctx, nlu.Input{
		Text:    text,
		History: chatHistory(sess),
		Missing: sess.Info.MissingFields,
	})
	if err != nil {
		// Extraction trouble never surfaces to the user; re-ask instead.
		e.logger.Warn("extraction failed, re-prompting",
			"user_id", req.UserID,
			"error", err.Error(),
		)
		return e.reply(ctx, req, sess, ActionCollectInfo, e.prompt(sess.Info, true))
	}

	switch extraction.Action {
	case nlu.ActionReset:
		return e.reset(ctx, req)
	case nlu.ActionConfirm:
		if sess.Status == session.StatusSuggested {
			return e.confirm(ctx, req, sess)
		}
	case nlu.ActionDecline:
		if sess.Status == session.StatusSuggested {
			return e.decline(ctx, req, sess)
		}
	case nlu.ActionGeneral:
		msg := msgGeneral
		if nlu.DetectIntent(text) == nlu.IntentHealthQuestion {
			msg = msgDeflection
		}
		return e.reply(ctx, req, sess, ActionCollectInfo, msg)
	}

	return e.collect(ctx, req, sess, extraction.Collected)
}

// collect merges recognised fields and either prompts for what is still
// missing or moves on to a suggestion.
func (e *Engine) collect(ctx context.Context, req MessageRequest, sess *session.UserSession, collected *nlu.CollectedInfo) (*Response, error) {
	patch, pastDate := e.buildPatch(collected)
	if pastDate {
		return e.reply(ctx, req, sess, ActionCollectInfo, pastDateMessage())
	}

	progressed := false
	if patch.SpecialistType != "" || patch.Location != "" || patch.DateRange != nil || !patch.TimeSlot.IsZero() {
		updated, err := e.store.UpdateAppointmentInfo(ctx, req.UserID, patch)
		if err != nil {
			return nil, fmt.Errorf("conversation: failed to update info: %w", err)
		}
		progressed = true
		sess = updated
	}

	if sess.Info.Complete() {
		return e.suggest(ctx, req, sess)
	}

	if err := e.store.SetStatus(ctx, req.UserID, session.StatusCollecting); err != nil {
		return nil, fmt.Errorf("conversation: failed to update session: %w", err)
	}
	sess.Status = session.StatusCollecting
	return e.reply(ctx, req, sess, ActionCollectInfo, e.prompt(sess.Info, !progressed))
}

// suggest runs the cascade and proposes the best option.
func (e *Engine) suggest(ctx context.Context, req MessageRequest, sess *session.UserSession) (*Response, error) {
	if err := e.store.SetStatus(ctx, req.UserID, session.StatusReady); err != nil {
		return nil, fmt.Errorf("conversation: failed to update session: %w", err)
	}

	result := e.resolver.Search(ctx, criteriaFrom(sess.Info))
	if result.Empty() {
		if err := e.store.SetStatus(ctx, req.UserID, session.StatusCollecting); err != nil {
			return nil, fmt.Errorf("conversation: failed to update session: %w", err)
		}
		sess.Status = session.StatusCollecting
		return e.reply(ctx, req, sess, ActionCollectInfo,
			notFoundMessage(sess.Info.SpecialistType, sess.Info.Location))
	}

	opt := result.Options[0]
	suggestion := &session.SuggestedAppointment{
		DoctorID:         opt.Doctor.ID,
		DoctorName:       opt.Doctor.Name,
		Specialty:        opt.Doctor.Specialty,
		Location:         opt.Doctor.City,
		DateTime:         opt.Slot,
		Teleconsultation: opt.Teleconsultation,
		Stage:            string(result.Stage),
	}
	if opt.Teleconsultation {
		// Tele proposals keep the city the user asked for in the copy.
		suggestion.Location = sess.Info.Location
	}
	if err := e.store.SetSuggestion(ctx, req.UserID, suggestion); err != nil {
		return nil, fmt.Errorf("conversation: failed to store suggestion: %w", err)
	}
	if err := e.store.SetStatus(ctx, req.UserID, session.StatusSuggested); err != nil {
		return nil, fmt.Errorf("conversation: failed to update session: %w", err)
	}
	sess.Status = session.StatusSuggested

	msg := proposalMessage(suggestion)
	e.echo(ctx, req.UserID, msg)
	e.countMessage(req.Channel, ActionSuggest)
	return &Response{
		UserID:     req.UserID,
		SessionID:  sess.ID,
		Action:     ActionSuggest,
		Message:    msg,
		Status:     session.StatusSuggested,
		Suggestion: suggestion,
	}, nil
}

// confirm books the pending suggestion after re-checking the slot.
func (e *Engine) confirm(ctx context.Context, req MessageRequest, sess *session.UserSession) (*Response, error) {
	suggestion := sess.Suggestion
	if suggestion == nil {
		return e.reply(ctx, req, sess, ActionCollectInfo, e.prompt(sess.Info, false))
	}

	if !e.resolver.HasSlot(suggestion.DoctorID, suggestion.DateTime, suggestion.Teleconsultation) {
		// The slot disappeared between proposal and confirmation.
		if err := e.store.SetSuggestion(ctx, req.UserID, nil); err != nil {
			return nil, fmt.Errorf("conversation: failed to clear suggestion: %w", err)
		}
		sess.Suggestion = nil
		result := e.resolver.Search(ctx, criteriaFrom(sess.Info))
		if result.Empty() {
			if err := e.store.SetStatus(ctx, req.UserID, session.StatusCollecting); err != nil {
				return nil, fmt.Errorf("conversation: failed to update session: %w", err)
			}
			sess.Status = session.StatusCollecting
			return e.reply(ctx, req, sess, ActionCollectInfo,
				msgSlotTaken+" "+notFoundMessage(sess.Info.SpecialistType, sess.Info.Location))
		}
		return e.resuggest(ctx, req, sess, result)
	}

	confirmMsg := confirmationFromSuggestion(suggestion)
	e.echo(ctx, req.UserID, confirmMsg)

	appt, err := e.store.ConfirmAppointment(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to confirm appointment: %w", err)
	}

	archived := *sess
	archived.Status = session.StatusConfirmed
	e.afterConfirm(ctx, &archived, appt)
	e.countMessage(req.Channel, ActionConfirm)
	if e.metrics != nil {
		e.metrics.RecordBooking(suggestion.Stage)
	}

	return &Response{
		UserID:      req.UserID,
		SessionID:   sess.ID,
		Action:      ActionConfirm,
		Message:     confirmationMessage(appt),
		Status:      session.StatusConfirmed,
		Appointment: appt,
	}, nil
}

// resuggest replaces a vanished slot with the next best option.
func (e *Engine) resuggest(ctx context.Context, req MessageRequest, sess *session.UserSession, result resolve.Result) (*Response, error) {
	opt := result.Options[0]
	suggestion := &session.SuggestedAppointment{
		DoctorID:         opt.Doctor.ID,
		DoctorName:       opt.Doctor.Name,
		Specialty:        opt.Doctor.Specialty,
		Location:         opt.Doctor.City,
		DateTime:         opt.Slot,
		Teleconsultation: opt.Teleconsultation,
		Stage:            string(result.Stage),
	}
	if err := e.store.SetSuggestion(ctx, req.UserID, suggestion); err != nil {
		return nil, fmt.Errorf("conversation: failed to store suggestion: %w", err)
	}
	msg := msgSlotTaken + " " + proposalMessage(suggestion)
	e.echo(ctx, req.UserID, msg)
	e.countMessage(req.Channel, ActionSuggest)
	return &Response{
		UserID:     req.UserID,
		SessionID:  sess.ID,
		Action:     ActionSuggest,
		Message:    msg,
		Status:     session.StatusSuggested,
		Suggestion: suggestion,
	}, nil
}

// decline ends the session without booking.
func (e *Engine) decline(ctx context.Context, req MessageRequest, sess *session.UserSession) (*Response, error) {
	e.echo(ctx, req.UserID, msgDeclined)
	if err := e.store.EndSession(ctx, req.UserID, session.StatusDeclined); err != nil {
		return nil, fmt.Errorf("conversation: failed to end session: %w", err)
	}
	if e.history != nil {
		archived := *sess
		archived.Status = session.StatusDeclined
		if err := e.history.RecordSession(ctx, &archived); err != nil {
			e.logger.Error("failed to record declined session", "error", err.Error())
		}
	}
	e.countMessage(req.Channel, ActionDecline)
	return &Response{
		UserID:    req.UserID,
		SessionID: sess.ID,
		Action:    ActionDecline,
		Message:   msgDeclined,
		Status:    session.StatusDeclined,
	}, nil
}

// reset drops the current session and starts over.
func (e *Engine) reset(ctx context.Context, req MessageRequest) (*Response, error) {
	sess, err := e.store.StartNewSession(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to reset session: %w", err)
	}
	if err := e.store.SetStatus(ctx, req.UserID, session.StatusCollecting); err != nil {
		return nil, fmt.Errorf("conversation: failed to update session: %w", err)
	}
	e.echo(ctx, req.UserID, msgResetDone)
	e.countMessage(req.Channel, ActionCollectInfo)
	return &Response{
		UserID:    req.UserID,
		SessionID: sess.ID,
		Action:    ActionCollectInfo,
		Message:   msgResetDone,
		Status:    session.StatusCollecting,
		Missing:   sess.Info.MissingFields,
	}, nil
}

// afterConfirm runs the best-effort post-booking hooks.
func (e *Engine) afterConfirm(ctx context.Context, archived *session.UserSession, appt *session.ConfirmedAppointment) {
	if e.history != nil {
		if err := e.history.RecordSession(ctx, archived); err != nil {
			e.logger.Error("failed to record session history", "error", err.Error())
		}
		if err := e.history.RecordAppointment(ctx, appt); err != nil {
			e.logger.Error("failed to record appointment history", "error", err.Error())
		}
	}
	if e.archiver != nil && e.archiver.Enabled() {
		if err := e.archiver.ArchiveSession(ctx, archived); err != nil {
			e.logger.Error("failed to archive session", "error", err.Error())
		}
	}
	if e.notifier != nil {
		if err := e.notifier.SendConfirmation(ctx, appt); err != nil {
			e.logger.Error("failed to send confirmation", "error", err.Error())
		}
	}
}

// reply records the assistant message and builds the standard response.
func (e *Engine) reply(ctx context.Context, req MessageRequest, sess *session.UserSession, action, msg string) (*Response, error) {
	e.echo(ctx, req.UserID, msg)
	e.countMessage(req.Channel, action)
	return &Response{
		UserID:    req.UserID,
		SessionID: sess.ID,
		Action:    action,
		Message:   msg,
		Status:    sess.Status,
		Missing:   sess.Info.MissingFields,
	}, nil
}

// echo appends the assistant turn to the transcript. Failures only log: the
// reply itself matters more than its bookkeeping.
func (e *Engine) echo(ctx context.Context, userID, msg string) {
	if err := e.store.AddMessage(ctx, userID, session.Message{Role: "assistant", Content: msg}); err != nil {
		e.logger.Error("failed to record assistant message", "error", err.Error())
	}
}

func (e *Engine) countMessage(channel, action string) {
	if e.metrics != nil {
		e.metrics.RecordMessage(channel, action)
	}
}

// prompt builds the next question per the field policy.
func (e *Engine) prompt(info session.AppointmentInfo, retry bool) string {
	missing := info.MissingFields
	if len(missing) == 0 {
		return msgGeneral
	}
	if e.fieldPolicy == FieldPolicyMulti {
		parts := make([]string, 0, len(missing))
		for _, field := range singlePriority {
			if containsField(missing, field) {
				parts = append(parts, promptFor(field, false))
			}
		}
		return strings.Join(parts, " ")
	}
	for _, field := range singlePriority {
		if containsField(missing, field) {
			return promptFor(field, retry)
		}
	}
	return promptFor(missing[0], retry)
}

// buildPatch converts collected strings to typed fields. The second return
// is true when the user asked for a date already in the past.
func (e *Engine) buildPatch(collected *nlu.CollectedInfo) (session.AppointmentInfo, bool) {
	var patch session.AppointmentInfo
	if collected == nil {
		return patch, false
	}
	patch.SpecialistType = strings.TrimSpace(collected.SpecialistType)
	patch.Location = strings.TrimSpace(collected.Location)

	if collected.Date != "" {
		parser := dates.NewParser(e.clock())
		if parsed, ok := parser.Parse(collected.Date); ok {
			if !parser.Valid(parsed) {
				return session.AppointmentInfo{}, true
			}
			// The window spans the whole requested day; hour-of-day
			// preferences are carried by TimeSlot, not by the window.
			patch.DateRange = &session.TimeWindow{
				Start: startOfDay(parsed),
				End:   endOfDay(parsed),
			}
		}
	}
	if collected.TimeSlot != "" {
		patch.TimeSlot = dates.ExtractHourRange(collected.TimeSlot)
	}
	return patch, false
}

func criteriaFrom(info session.AppointmentInfo) resolve.Criteria {
	c := resolve.Criteria{
		Specialty: info.SpecialistType,
		City:      info.Location,
		Hours:     info.TimeSlot,
	}
	if info.DateRange != nil {
		c.From = info.DateRange.Start
		c.To = info.DateRange.End
	}
	return c
}

// chatHistory converts the transcript tail for the extractor.
func chatHistory(sess *session.UserSession) []nlu.ChatMessage {
	const maxTurns = 10
	msgs := sess.Messages
	if len(msgs) > maxTurns {
		msgs = msgs[len(msgs)-maxTurns:]
	}
	out := make([]nlu.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		role := nlu.ChatRoleUser
		if m.Role == "assistant" {
			role = nlu.ChatRoleAssistant
		}
		out = append(out, nlu.ChatMessage{Role: role, Content: m.Content})
	}
	return out
}

func confirmationFromSuggestion(s *session.SuggestedAppointment) string {
	return confirmationMessage(&session.ConfirmedAppointment{
		DoctorName:       s.DoctorName,
		DateTime:         s.DateTime,
		Teleconsultation: s.Teleconsultation,
	})
}

func containsField(fields []string, field string) bool {
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
