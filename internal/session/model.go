package session

import (
	"time"

	"github.com/heydoc/booking-platform/internal/dates"
)

// Status is the lifecycle state of a booking session.
type Status string

const (
	StatusNew        Status = "new"
	StatusCollecting Status = "collecting_info"
	StatusReady      Status = "ready_for_suggestion"
	StatusSuggested  Status = "suggested"
	StatusConfirmed  Status = "confirmed"
	StatusDeclined   Status = "declined"
	StatusExpired    Status = "expired"
	StatusEnded      Status = "ended"
)

// Terminal reports whether the status ends the conversation.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusDeclined, StatusExpired, StatusEnded:
		return true
	}
	return false
}

// Field names reported in AppointmentInfo.MissingFields.
const (
	FieldLocation   = "location"
	FieldSpecialist = "specialistType"
	FieldDateRange  = "dateRange"
)

// TimeWindow is a half-open search window. A zero End means the caller's
// default window applies.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// AppointmentInfo accumulates what the user has told us so far.
// MissingFields is derived; it is recomputed on every merge.
type AppointmentInfo struct {
	SpecialistType string          `json:"specialist_type,omitempty"`
	Location       string          `json:"location,omitempty"`
	DateRange      *TimeWindow     `json:"date_range,omitempty"`
	TimeSlot       dates.HourRange `json:"time_slot,omitempty"`
	MissingFields  []string        `json:"missing_fields"`
}

// Merge overlays the set fields of patch onto i and recomputes MissingFields.
// Unset patch fields never erase collected values.
func (i *AppointmentInfo) Merge(patch AppointmentInfo) {
	if patch.SpecialistType != "" {
		i.SpecialistType = patch.SpecialistType
	}
	if patch.Location != "" {
		i.Location = patch.Location
	}
	if patch.DateRange != nil {
		i.DateRange = patch.DateRange
	}
	if !patch.TimeSlot.IsZero() {
		i.TimeSlot = patch.TimeSlot
	}
	i.Recompute()
}

// Recompute refreshes MissingFields from the current field values.
func (i *AppointmentInfo) Recompute() {
	missing := make([]string, 0, 3)
	if i.Location == "" {
		missing = append(missing, FieldLocation)
	}
	if i.SpecialistType == "" {
		missing = append(missing, FieldSpecialist)
	}
	if i.DateRange == nil || i.DateRange.Start.IsZero() {
		missing = append(missing, FieldDateRange)
	}
	i.MissingFields = missing
}

// Complete reports whether every required field has been collected.
func (i *AppointmentInfo) Complete() bool {
	return i.Location != "" && i.SpecialistType != "" &&
		i.DateRange != nil && !i.DateRange.Start.IsZero()
}

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SuggestedAppointment is the slot proposed to the user, pending their
// confirmation.
type SuggestedAppointment struct {
	DoctorID         string    `json:"doctor_id"`
	DoctorName       string    `json:"doctor_name"`
	Specialty        string    `json:"specialty"`
	Location         string    `json:"location"`
	DateTime         time.Time `json:"datetime"`
	Teleconsultation bool      `json:"teleconsultation"`
	Stage            string    `json:"stage,omitempty"`
}

// UserSession is a single booking conversation for one user. At most one
// active session exists per user id.
type UserSession struct {
	ID           string                `json:"id"`
	UserID       string                `json:"user_id"`
	Channel      string                `json:"channel,omitempty"`
	Status       Status                `json:"status"`
	Info         AppointmentInfo       `json:"info"`
	Messages     []Message             `json:"messages"`
	Suggestion   *SuggestedAppointment `json:"suggestion,omitempty"`
	Metadata     map[string]string     `json:"metadata,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	LastActiveAt time.Time             `json:"last_active_at"`
}

// ConfirmedAppointment is the booking produced by a confirmed session.
// Its status is always "scheduled" at creation.
type ConfirmedAppointment struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	SessionID        string    `json:"session_id"`
	DoctorID         string    `json:"doctor_id"`
	DoctorName       string    `json:"doctor_name"`
	Specialty        string    `json:"specialty"`
	Location         string    `json:"location"`
	DateTime         time.Time `json:"datetime"`
	Teleconsultation bool      `json:"teleconsultation"`
	Status           string    `json:"status"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
}

// AppointmentStatusScheduled is the status stamped on confirmed bookings.
const AppointmentStatusScheduled = "scheduled"
