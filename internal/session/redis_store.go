package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// sessionTTL bounds how long an abandoned session survives in Redis.
const sessionTTL = 24 * time.Hour

// RedisStore persists sessions in Redis so conversations survive process
// restarts. Archived sessions and confirmed appointments live in per-user
// lists without expiry.
type RedisStore struct {
	redis       *redis.Client
	tracer      trace.Tracer
	clock       func() time.Time
	idleTimeout time.Duration
	locks       sync.Map // userID -> *sync.Mutex
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisIdleTimeout expires sessions idle for longer than d.
func WithRedisIdleTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithRedisClock overrides the time source.
func WithRedisClock(clock func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRedisTracer overrides the OpenTelemetry tracer.
func WithRedisTracer(tracer trace.Tracer) RedisOption {
	return func(s *RedisStore) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	s := &RedisStore{
		redis:  client,
		tracer: otel.Tracer("heydoc.internal.session"),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(userID string) string {
	return fmt.Sprintf("heydoc:session:%s", userID)
}

func historyKey(userID string) string {
	return fmt.Sprintf("heydoc:history:%s", userID)
}

func appointmentsKey(userID string) string {
	return fmt.Sprintf("heydoc:appointments:%s", userID)
}

func (s *RedisStore) userLock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *RedisStore) StartNewSession(ctx context.Context, userID string) (*UserSession, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "session.start_new")
	defer span.End()

	now := s.clock()
	existing, err := s.loadLive(ctx, userID, now)
	if err != nil && err != ErrNoActiveSession {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		if err := s.archive(ctx, existing, StatusEnded, now); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	sess := &UserSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		Status:       StatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastActiveAt: now,
	}
	sess.Info.Recompute()
	if err := s.save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sess, nil
}

func (s *RedisStore) GetSession(ctx context.Context, userID string) (*UserSession, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	return s.loadLive(ctx, userID, s.clock())
}

func (s *RedisStore) HasActiveSession(ctx context.Context, userID string) (bool, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.loadLive(ctx, userID, s.clock())
	if err == ErrNoActiveSession {
		return false, nil
	}
	return err == nil, err
}

func (s *RedisStore) AddMessage(ctx context.Context, userID string, msg Message) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "session.add_message")
	defer span.End()

	now := s.clock()
	sess, err := s.loadLive(ctx, userID, now)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = now
	sess.LastActiveAt = now
	return s.save(ctx, sess)
}

func (s *RedisStore) UpdateAppointmentInfo(ctx context.Context, userID string, patch AppointmentInfo) (*UserSession, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "session.update_info")
	defer span.End()

	sess, err := s.loadLive(ctx, userID, s.clock())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	sess.Info.Merge(patch)
	sess.UpdatedAt = s.clock()
	if err := s.save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return sess, nil
}

func (s *RedisStore) SetStatus(ctx context.Context, userID string, status Status) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.loadLive(ctx, userID, s.clock())
	if err != nil {
		return err
	}
	sess.Status = status
	sess.UpdatedAt = s.clock()
	return s.save(ctx, sess)
}

func (s *RedisStore) SetSuggestion(ctx context.Context, userID string, suggestion *SuggestedAppointment) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.loadLive(ctx, userID, s.clock())
	if err != nil {
		return err
	}
	sess.Suggestion = suggestion
	sess.UpdatedAt = s.clock()
	return s.save(ctx, sess)
}

func (s *RedisStore) IsReadyForSuggestion(ctx context.Context, userID string) (bool, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := s.loadLive(ctx, userID, s.clock())
	if err != nil {
		return false, err
	}
	return sess.Info.Complete(), nil
}

func (s *RedisStore) ConfirmAppointment(ctx context.Context, userID string) (*ConfirmedAppointment, error) {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "session.confirm")
	defer span.End()

	now := s.clock()
	sess, err := s.loadLive(ctx, userID, now)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if sess.Suggestion == nil {
		return nil, ErrNoSuggestion
	}

	appt := ConfirmedAppointment{
		ID:               uuid.NewString(),
		UserID:           userID,
		SessionID:        sess.ID,
		DoctorID:         sess.Suggestion.DoctorID,
		DoctorName:       sess.Suggestion.DoctorName,
		Specialty:        sess.Suggestion.Specialty,
		Location:         sess.Suggestion.Location,
		DateTime:         sess.Suggestion.DateTime,
		Teleconsultation: sess.Suggestion.Teleconsultation,
		Status:           AppointmentStatusScheduled,
		ConfirmedAt:      now,
	}
	data, err := json.Marshal(appt)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to marshal appointment: %w", err)
	}
	if err := s.redis.RPush(ctx, appointmentsKey(userID), data).Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to persist appointment: %w", err)
	}
	if err := s.archive(ctx, sess, StatusConfirmed, now); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &appt, nil
}

func (s *RedisStore) EndSession(ctx context.Context, userID string, status Status) error {
	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "session.end")
	defer span.End()

	sess, err := s.loadLive(ctx, userID, s.clock())
	if err == ErrNoActiveSession {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !status.Terminal() {
		status = StatusEnded
	}
	return s.archive(ctx, sess, status, s.clock())
}

func (s *RedisStore) History(ctx context.Context, userID string) ([]UserSession, error) {
	ctx, span := s.tracer.Start(ctx, "session.history")
	defer span.End()

	raw, err := s.redis.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load history: %w", err)
	}
	out := make([]UserSession, 0, len(raw))
	for _, item := range raw {
		var sess UserSession
		if err := json.Unmarshal([]byte(item), &sess); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("session: failed to decode archived session: %w", err)
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *RedisStore) Appointments(ctx context.Context, userID string) ([]ConfirmedAppointment, error) {
	ctx, span := s.tracer.Start(ctx, "session.appointments")
	defer span.End()

	raw, err := s.redis.LRange(ctx, appointmentsKey(userID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load appointments: %w", err)
	}
	out := make([]ConfirmedAppointment, 0, len(raw))
	for _, item := range raw {
		var appt ConfirmedAppointment
		if err := json.Unmarshal([]byte(item), &appt); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("session: failed to decode appointment: %w", err)
		}
		out = append(out, appt)
	}
	return out, nil
}

// loadLive fetches the active session and applies idle expiry.
func (s *RedisStore) loadLive(ctx context.Context, userID string, now time.Time) (*UserSession, error) {
	data, err := s.redis.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("session: failed to load session: %w", err)
	}
	var sess UserSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("session: failed to decode session: %w", err)
	}
	if s.idleTimeout > 0 && now.Sub(sess.LastActiveAt) >= s.idleTimeout {
		if err := s.archive(ctx, &sess, StatusExpired, now); err != nil {
			return nil, err
		}
		return nil, ErrNoActiveSession
	}
	return &sess, nil
}

func (s *RedisStore) save(ctx context.Context, sess *UserSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.UserID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) archive(ctx context.Context, sess *UserSession, status Status, now time.Time) error {
	sess.Status = status
	sess.UpdatedAt = now
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: failed to marshal archived session: %w", err)
	}
	if err := s.redis.RPush(ctx, historyKey(sess.UserID), data).Err(); err != nil {
		return fmt.Errorf("session: failed to archive session: %w", err)
	}
	if err := s.redis.Del(ctx, sessionKey(sess.UserID)).Err(); err != nil {
		return fmt.Errorf("session: failed to drop session: %w", err)
	}
	return nil
}
