package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresHistory writes finished sessions and confirmed appointments to
// PostgreSQL for long-term history. The hot session state lives in the Store;
// this is the durable audit trail behind the admin endpoints.
type PostgresHistory struct {
	db *sql.DB
}

// NewPostgresHistory creates a history recorder. Returns nil when db is nil
// so callers can wire it unconditionally.
func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	if db == nil {
		return nil
	}
	return &PostgresHistory{db: db}
}

// SessionRecord is a finished session row.
type SessionRecord struct {
	ID             string
	UserID         string
	Channel        string
	Status         string
	SpecialistType string
	Location       string
	DateStart      *time.Time
	DateEnd        *time.Time
	MessageCount   int
	Transcript     []Message
	CreatedAt      time.Time
	EndedAt        time.Time
}

// RecordSession persists a finished session. Recording the same session twice
// is a no-op.
func (h *PostgresHistory) RecordSession(ctx context.Context, sess *UserSession) error {
	if h == nil || h.db == nil || sess == nil {
		return nil
	}

	transcript, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("session: failed to marshal transcript: %w", err)
	}

	var dateStart, dateEnd any
	if sess.Info.DateRange != nil {
		dateStart = sess.Info.DateRange.Start
		if !sess.Info.DateRange.End.IsZero() {
			dateEnd = sess.Info.DateRange.End
		}
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, user_id, channel, status, specialist_type, location,
			date_start, date_end, message_count, transcript, created_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, sess.ID, sess.UserID, sess.Channel, string(sess.Status),
		sess.Info.SpecialistType, sess.Info.Location,
		dateStart, dateEnd, len(sess.Messages), transcript,
		sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("session: failed to record session: %w", err)
	}
	return nil
}

// RecordAppointment persists a confirmed appointment.
func (h *PostgresHistory) RecordAppointment(ctx context.Context, appt *ConfirmedAppointment) error {
	if h == nil || h.db == nil || appt == nil {
		return nil
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO appointments (
			id, user_id, session_id, doctor_id, doctor_name, specialty,
			location, scheduled_at, teleconsultation, status, confirmed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, appt.ID, appt.UserID, appt.SessionID, appt.DoctorID, appt.DoctorName,
		appt.Specialty, appt.Location, appt.DateTime, appt.Teleconsultation,
		appt.Status, appt.ConfirmedAt,
	)
	if err != nil {
		return fmt.Errorf("session: failed to record appointment: %w", err)
	}
	return nil
}

// ListSessions returns the user's finished sessions, oldest first.
func (h *PostgresHistory) ListSessions(ctx context.Context, userID string, limit int) ([]SessionRecord, error) {
	if h == nil || h.db == nil {
		return nil, nil
	}

	query := `
		SELECT id, user_id, channel, status, specialist_type, location,
			   date_start, date_end, message_count, transcript, created_at, ended_at
		FROM sessions
		WHERE user_id = $1
		ORDER BY ended_at ASC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session: failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var dateStart, dateEnd sql.NullTime
		var transcript []byte
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Channel, &rec.Status,
			&rec.SpecialistType, &rec.Location, &dateStart, &dateEnd,
			&rec.MessageCount, &transcript, &rec.CreatedAt, &rec.EndedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("session: failed to scan session row: %w", err)
		}
		if dateStart.Valid {
			rec.DateStart = &dateStart.Time
		}
		if dateEnd.Valid {
			rec.DateEnd = &dateEnd.Time
		}
		if len(transcript) > 0 {
			if err := json.Unmarshal(transcript, &rec.Transcript); err != nil {
				return nil, fmt.Errorf("session: failed to decode transcript: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListAppointments returns the user's confirmed appointments, oldest first.
func (h *PostgresHistory) ListAppointments(ctx context.Context, userID string, limit int) ([]ConfirmedAppointment, error) {
	if h == nil || h.db == nil {
		return nil, nil
	}

	query := `
		SELECT id, user_id, session_id, doctor_id, doctor_name, specialty,
			   location, scheduled_at, teleconsultation, status, confirmed_at
		FROM appointments
		WHERE user_id = $1
		ORDER BY confirmed_at ASC
	`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("session: failed to list appointments: %w", err)
	}
	defer rows.Close()

	var appts []ConfirmedAppointment
	for rows.Next() {
		var appt ConfirmedAppointment
		err := rows.Scan(
			&appt.ID, &appt.UserID, &appt.SessionID, &appt.DoctorID,
			&appt.DoctorName, &appt.Specialty, &appt.Location, &appt.DateTime,
			&appt.Teleconsultation, &appt.Status, &appt.ConfirmedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("session: failed to scan appointment row: %w", err)
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}
