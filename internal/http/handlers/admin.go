package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heydoc/booking-platform/internal/appointments"
	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

const defaultListLimit = 50

// SessionHistory lists archived conversation sessions.
type SessionHistory interface {
	ListSessions(ctx context.Context, userID string, limit int) ([]session.SessionRecord, error)
}

// AppointmentManager exposes read and cancel operations over booked
// appointments.
type AppointmentManager interface {
	Appointment(ctx context.Context, id string) (*appointments.Appointment, error)
	UserAppointments(ctx context.Context, userID string) ([]appointments.Appointment, error)
	UpcomingAppointments(ctx context.Context, userID string) ([]appointments.Appointment, error)
	CancelAppointment(ctx context.Context, id string) error
}

// AdminHandler serves the back-office endpoints for support staff.
type AdminHandler struct {
	history      SessionHistory
	appointments AppointmentManager
	logger       *logging.Logger
}

func NewAdminHandler(history SessionHistory, appts AppointmentManager, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{history: history, appointments: appts, logger: logger}
}

// ListSessions handles GET /admin/users/{userID}/sessions.
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		http.Error(w, "session history not configured", http.StatusNotImplemented)
		return
	}
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	records, err := h.history.ListSessions(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err, "user_id", userID)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

// ListAppointments handles GET /admin/users/{userID}/appointments.
// With ?upcoming=true only future scheduled appointments are returned.
func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if h.appointments == nil {
		http.Error(w, "appointments not configured", http.StatusNotImplemented)
		return
	}
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "user id is required", http.StatusBadRequest)
		return
	}

	var (
		appts []appointments.Appointment
		err   error
	)
	if r.URL.Query().Get("upcoming") == "true" {
		appts, err = h.appointments.UpcomingAppointments(r.Context(), userID)
	} else {
		appts, err = h.appointments.UserAppointments(r.Context(), userID)
	}
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err, "user_id", userID)
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// GetAppointment handles GET /admin/appointments/{appointmentID}.
func (h *AdminHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	if h.appointments == nil {
		http.Error(w, "appointments not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "appointmentID")
	appt, err := h.appointments.Appointment(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get appointment", "error", err, "appointment_id", id)
		http.Error(w, "failed to get appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// CancelAppointment handles POST /admin/appointments/{appointmentID}/cancel.
func (h *AdminHandler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	if h.appointments == nil {
		http.Error(w, "appointments not configured", http.StatusNotImplemented)
		return
	}
	id := chi.URLParam(r, "appointmentID")
	if err := h.appointments.CancelAppointment(r.Context(), id); err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to cancel appointment", "error", err, "appointment_id", id)
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled", "appointment_id": id})
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 500 {
		return defaultListLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
