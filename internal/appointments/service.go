package appointments

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/heydoc/booking-platform/pkg/logging"
)

// Service wraps the repository with tracing and a clock. It backs the admin
// endpoints and the patient self-service cancel flow.
type Service struct {
	repo   *Repository
	logger *logging.Logger
	tracer trace.Tracer
	clock  func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService wires the appointment management service.
func NewService(repo *Repository, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("appointments: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:   repo,
		logger: logger,
		tracer: otel.Tracer("heydoc.internal.appointments"),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Appointment loads one appointment by id.
func (s *Service) Appointment(ctx context.Context, id string) (*Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.get")
	defer span.End()
	span.SetAttributes(attribute.String("heydoc.appointment_id", id))
	return s.repo.GetByID(ctx, id)
}

// UserAppointments lists every appointment of the user, oldest first.
func (s *Service) UserAppointments(ctx context.Context, userID string) ([]Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.list_user")
	defer span.End()
	return s.repo.ListByUser(ctx, userID)
}

// UpcomingAppointments lists the user's future scheduled appointments.
func (s *Service) UpcomingAppointments(ctx context.Context, userID string) ([]Appointment, error) {
	ctx, span := s.tracer.Start(ctx, "appointments.list_upcoming")
	defer span.End()
	return s.repo.ListUpcoming(ctx, userID, s.clock())
}

// CancelAppointment cancels a scheduled appointment.
func (s *Service) CancelAppointment(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("heydoc.appointment_id", id))

	if err := s.repo.Cancel(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}
	s.logger.Info("appointment cancelled", "appointment_id", id)
	return nil
}
