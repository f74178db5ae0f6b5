package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps sessions in process memory. It is the default backend for
// development and the reference implementation for the Store contract.
type MemoryStore struct {
	clock       func() time.Time
	idleTimeout time.Duration

	mu           sync.Mutex
	active       map[string]*UserSession
	history      map[string][]UserSession
	appointments map[string][]ConfirmedAppointment
}

var _ Store = (*MemoryStore)(nil)

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIdleTimeout expires sessions whose last activity is older than d.
// Zero disables expiry.
func WithIdleTimeout(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		clock:        func() time.Time { return time.Now().UTC() },
		active:       make(map[string]*UserSession),
		history:      make(map[string][]UserSession),
		appointments: make(map[string][]ConfirmedAppointment),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCleanup expires idle sessions periodically until ctx is done.
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	if s.idleTimeout <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				now := s.clock()
				for userID := range s.active {
					s.expireLocked(userID, now)
				}
				s.mu.Unlock()
			}
		}
	}()
}

func (s *MemoryStore) StartNewSession(_ context.Context, userID string) (*UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if existing, ok := s.active[userID]; ok {
		s.archiveLocked(existing, StatusEnded, now)
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
	s.active[userID] = sess
	return cloneSession(sess), nil
}

func (s *MemoryStore) GetSession(_ context.Context, userID string) (*UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(userID)
	if err != nil {
		return nil, err
	}
	return cloneSession(sess), nil
}

func (s *MemoryStore) HasActiveSession(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.liveLocked(userID)
	if err == ErrNoActiveSession {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) AddMessage(_ context.Context, userID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(userID)
	if err != nil {
		return err
	}
	now := s.clock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = now
	sess.LastActiveAt = now
	return nil
}

func (s *MemoryStore) UpdateAppointmentInfo(_ context.Context, userID string, patch AppointmentInfo) (*UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(userID)
	if err != nil {
		return nil, err
	}
	sess.Info.Merge(patch)
	sess.UpdatedAt = s.clock()
	return cloneSession(sess), nil
}

func (s *MemoryStore) SetStatus(_ context.Context, userID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(userID)
	if err != nil {
		return err
	}
	sess.Status = status
	sess.UpdatedAt = s.clock()
	return nil
}

func (s *MemoryStore) SetSuggestion(_ context.Context, userID string, suggestion *SuggestedAppointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(userID)
	if err != nil {
		return err
	}
	sess.Suggestion = suggestion
	sess.UpdatedAt = s.clock()
	return nil
}

func (s *MemoryStore) IsReadyForSuggestion(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(userID)
	if err != nil {
		return false, err
	}
	return sess.Info.Complete(), nil
}

func (s *MemoryStore) ConfirmAppointment(_ context.Context, userID string) (*ConfirmedAppointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.liveLocked(userID)
	if err != nil {
		return nil, err
	}
	if sess.Suggestion == nil {
		return nil, ErrNoSuggestion
	}

	now := s.clock()
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
	s.appointments[userID] = append(s.appointments[userID], appt)
	s.archiveLocked(sess, StatusConfirmed, now)
	return &appt, nil
}

func (s *MemoryStore) EndSession(_ context.Context, userID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.active[userID]
	if !ok {
		return nil
	}
	if !status.Terminal() {
		status = StatusEnded
	}
	s.archiveLocked(sess, status, s.clock())
	return nil
}

func (s *MemoryStore) History(_ context.Context, userID string) ([]UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archived := s.history[userID]
	out := make([]UserSession, 0, len(archived))
	for i := range archived {
		out = append(out, *cloneSession(&archived[i]))
	}
	return out, nil
}

func (s *MemoryStore) Appointments(_ context.Context, userID string) ([]ConfirmedAppointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ConfirmedAppointment(nil), s.appointments[userID]...), nil
}

// liveLocked returns the active session after applying idle expiry.
func (s *MemoryStore) liveLocked(userID string) (*UserSession, error) {
	s.expireLocked(userID, s.clock())
	sess, ok := s.active[userID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return sess, nil
}

func (s *MemoryStore) expireLocked(userID string, now time.Time) {
	if s.idleTimeout <= 0 {
		return
	}
	sess, ok := s.active[userID]
	if !ok {
		return
	}
	if now.Sub(sess.LastActiveAt) >= s.idleTimeout {
		s.archiveLocked(sess, StatusExpired, now)
	}
}

func (s *MemoryStore) archiveLocked(sess *UserSession, status Status, now time.Time) {
	sess.Status = status
	sess.UpdatedAt = now
	s.history[sess.UserID] = append(s.history[sess.UserID], *cloneSession(sess))
	delete(s.active, sess.UserID)
}

func cloneSession(sess *UserSession) *UserSession {
	out := *sess
	out.Messages = append([]Message(nil), sess.Messages...)
	if sess.Suggestion != nil {
		suggestion := *sess.Suggestion
		out.Suggestion = &suggestion
	}
	if sess.Info.DateRange != nil {
		window := *sess.Info.DateRange
		out.Info.DateRange = &window
	}
	out.Info.MissingFields = append([]string(nil), sess.Info.MissingFields...)
	if sess.Metadata != nil {
		meta := make(map[string]string, len(sess.Metadata))
		for k, v := range sess.Metadata {
			meta[k] = v
		}
		out.Metadata = meta
	}
	return &out
}
