package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no appointment matches the id.
var ErrNotFound = errors.New("appointments: not found")

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
)

// Appointment is one booked consultation row.
type Appointment struct {
	ID               string
	UserID           string
	SessionID        string
	DoctorID         string
	DoctorName       string
	Specialty        string
	Location         string
	ScheduledAt      time.Time
	Teleconsultation bool
	Status           string
	ConfirmedAt      time.Time
}

type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads and manages booked appointments. The booking write path
// lives in the session history recorder; this repository serves the admin
// and patient-facing management operations.
type Repository struct {
	conn dbConn
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{conn: pool}
}

// NewRepositoryWithConn allows injecting mocks for tests.
func NewRepositoryWithConn(conn dbConn) *Repository {
	if conn == nil {
		panic("appointments: conn required")
	}
	return &Repository{conn: conn}
}

const appointmentColumns = `id, user_id, session_id, doctor_id, doctor_name, specialty,
		location, scheduled_at, teleconsultation, status, confirmed_at`

// GetByID loads a single appointment.
func (r *Repository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var a Appointment
	err := r.conn.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.SessionID, &a.DoctorID, &a.DoctorName, &a.Specialty,
		&a.Location, &a.ScheduledAt, &a.Teleconsultation, &a.Status, &a.ConfirmedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: load: %w", err)
	}
	return &a, nil
}

// ListByUser returns every appointment of the user, oldest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE user_id = $1 ORDER BY scheduled_at ASC`
	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by user: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListUpcoming returns scheduled appointments at or after the given time.
func (r *Repository) ListUpcoming(ctx context.Context, userID string, from time.Time) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE user_id = $1 AND status = $2 AND scheduled_at >= $3
		ORDER BY scheduled_at ASC`
	rows, err := r.conn.Query(ctx, query, userID, StatusScheduled, from)
	if err != nil {
		return nil, fmt.Errorf("appointments: list upcoming: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// Cancel flips a scheduled appointment to cancelled. Cancelling an unknown
// or already cancelled appointment returns ErrNotFound.
func (r *Repository) Cancel(ctx context.Context, id string) error {
	query := `UPDATE appointments SET status = $1 WHERE id = $2 AND status = $3`
	ct, err := r.conn.Exec(ctx, query, StatusCancelled, id, StatusScheduled)
	if err != nil {
		return fmt.Errorf("appointments: cancel: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.SessionID, &a.DoctorID, &a.DoctorName, &a.Specialty,
			&a.Location, &a.ScheduledAt, &a.Teleconsultation, &a.Status, &a.ConfirmedAt,
		); err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}
