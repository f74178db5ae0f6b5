package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

// EmailDirectory resolves a user id to an email address. The second return
// is false when the user has no known address.
type EmailDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, bool)
}

// StaticDirectory is an EmailDirectory backed by a fixed map. It serves
// tests and demo configurations.
type StaticDirectory map[string]string

func (d StaticDirectory) EmailFor(_ context.Context, userID string) (string, bool) {
	email, ok := d[userID]
	return email, ok
}

// ConfirmationNotifier emails booking confirmations. Users without a known
// address are skipped silently.
type ConfirmationNotifier struct {
	sender    EmailSender
	directory EmailDirectory
	logger    *logging.Logger
}

// NewConfirmationNotifier wires the notifier. Returns nil when sender or
// directory is missing so the engine hook stays optional.
func NewConfirmationNotifier(sender EmailSender, directory EmailDirectory, logger *logging.Logger) *ConfirmationNotifier {
	if sender == nil || directory == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmationNotifier{
		sender:    sender,
		directory: directory,
		logger:    logger,
	}
}

// SendConfirmation emails the booking summary to the user.
func (n *ConfirmationNotifier) SendConfirmation(ctx context.Context, appt *session.ConfirmedAppointment) error {
	if n == nil {
		return nil
	}
	email, ok := n.directory.EmailFor(ctx, appt.UserID)
	if !ok || email == "" {
		n.logger.Debug("no email on file, skipping confirmation", "user_id", appt.UserID)
		return nil
	}

	mode := "au cabinet"
	if appt.Teleconsultation {
		mode = "en téléconsultation"
	}
	body := fmt.Sprintf(
		"Bonjour,\n\nVotre rendez-vous est confirmé.\n\n"+
			"Praticien : %s (%s)\nLieu : %s\nDate : %s\nMode : %s\n\n"+
			"À bientôt,\nL'équipe HeyDoc",
		appt.DoctorName, appt.Specialty, appt.Location,
		appt.DateTime.Format("02/01/2006 à 15h04"), mode,
	)

	msg := EmailMessage{
		To:      email,
		Subject: fmt.Sprintf("Rendez-vous confirmé avec %s", appt.DoctorName),
		Body:    body,
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: confirmation email: %w", err)
	}
	n.logger.Info("confirmation email sent",
		"user_id", appt.UserID,
		"appointment_id", appt.ID,
		"scheduled_at", appt.DateTime.Format(time.RFC3339),
	)
	return nil
}
