package session

import "context"

// Store manages booking sessions and the per-user archive of past sessions
// and confirmed appointments.
//
// Implementations serialize operations per user id, so callers may issue
// store calls for the same user from concurrent goroutines without extra
// locking. Operations against an absent session return ErrNoActiveSession.
type Store interface {
	// StartNewSession opens a fresh session for the user. Any active
	// session is archived first with StatusEnded.
	StartNewSession(ctx context.Context, userID string) (*UserSession, error)

	// GetSession returns a copy of the user's active session.
	GetSession(ctx context.Context, userID string) (*UserSession, error)

	// HasActiveSession reports whether the user has a live session.
	HasActiveSession(ctx context.Context, userID string) (bool, error)

	// AddMessage appends a transcript entry and touches LastActiveAt.
	AddMessage(ctx context.Context, userID string, msg Message) error

	// UpdateAppointmentInfo merges the set fields of patch into the
	// session and returns the updated session.
	UpdateAppointmentInfo(ctx context.Context, userID string, patch AppointmentInfo) (*UserSession, error)

	// SetStatus transitions the session's lifecycle state.
	SetStatus(ctx context.Context, userID string, status Status) error

	// SetSuggestion records (or clears) the proposed appointment.
	SetSuggestion(ctx context.Context, userID string, s *SuggestedAppointment) error

	// IsReadyForSuggestion reports whether every required field is
	// collected.
	IsReadyForSuggestion(ctx context.Context, userID string) (bool, error)

	// ConfirmAppointment turns the current suggestion into a scheduled
	// appointment, archives the session with StatusConfirmed and returns
	// the booking. ErrNoSuggestion when nothing was proposed.
	ConfirmAppointment(ctx context.Context, userID string) (*ConfirmedAppointment, error)

	// EndSession archives the active session with the given terminal
	// status. Ending an absent session is a no-op.
	EndSession(ctx context.Context, userID string, status Status) error

	// History returns the user's archived sessions, oldest first.
	History(ctx context.Context, userID string) ([]UserSession, error)

	// Appointments returns the user's confirmed appointments, oldest
	// first.
	Appointments(ctx context.Context, userID string) ([]ConfirmedAppointment, error)
}
