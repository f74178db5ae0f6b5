package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

func sampleAppointment() *session.ConfirmedAppointment {
	return &session.ConfirmedAppointment{
		ID:               "appt-1",
		UserID:           "u1",
		DoctorName:       "Dr Marie Simon",
		Specialty:        "Cardiologue",
		Location:         "Lyon",
		DateTime:         time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC),
		Teleconsultation: true,
		Status:           session.AppointmentStatusScheduled,
	}
}

func TestConfirmationNotifierSends(t *testing.T) {
	sender := NewStubEmailSender(logging.Default())
	n := NewConfirmationNotifier(sender, StaticDirectory{"u1": "u1@example.com"}, logging.Default())

	if err := n.SendConfirmation(context.Background(), sampleAppointment()); err != nil {
		t.Fatalf("SendConfirmation: %v", err)
	}
	if len(sender.Sent) != 1 {
		t.Fatalf("sent = %d", len(sender.Sent))
	}
	msg := sender.Sent[0]
	if msg.To != "u1@example.com" {
		t.Errorf("to = %s", msg.To)
	}
	if !strings.Contains(msg.Subject, "Dr Marie Simon") {
		t.Errorf("subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "téléconsultation") {
		t.Errorf("body = %q", msg.Body)
	}
}

func TestConfirmationNotifierSkipsUnknownUser(t *testing.T) {
	sender := NewStubEmailSender(logging.Default())
	n := NewConfirmationNotifier(sender, StaticDirectory{}, logging.Default())

	if err := n.SendConfirmation(context.Background(), sampleAppointment()); err != nil {
		t.Fatalf("SendConfirmation: %v", err)
	}
	if len(sender.Sent) != 0 {
		t.Fatalf("sent = %d", len(sender.Sent))
	}
}

func TestNewConfirmationNotifierOptional(t *testing.T) {
	if n := NewConfirmationNotifier(nil, StaticDirectory{}, nil); n != nil {
		t.Fatal("expected nil notifier without sender")
	}
}
