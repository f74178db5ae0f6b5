package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

// storeBackends enumerates every Store implementation that must agree on
// semantics. DynamoStore is exercised separately against its fake because it
// shares no test clock hook with miniredis.
func storeBackends(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newTestRedisStore(t),
	}
}

func TestStoreConformanceLifecycle(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.GetSession(ctx, "u1"); !errors.Is(err, ErrNoActiveSession) {
				t.Fatalf("GetSession on empty store = %v, want ErrNoActiveSession", err)
			}
			if err := store.AddMessage(ctx, "u1", Message{Role: "user", Content: "x"}); !errors.Is(err, ErrNoActiveSession) {
				t.Fatalf("AddMessage on empty store = %v, want ErrNoActiveSession", err)
			}

			sess, err := store.StartNewSession(ctx, "u1")
			if err != nil {
				t.Fatalf("StartNewSession: %v", err)
			}
			if sess.Status != StatusNew {
				t.Fatalf("new session status = %s", sess.Status)
			}
			if got := sess.Info.MissingFields; len(got) != 3 {
				t.Fatalf("fresh session missing fields = %v", got)
			}

			ready, err := store.IsReadyForSuggestion(ctx, "u1")
			if err != nil || ready {
				t.Fatalf("fresh session ready = %v, err = %v", ready, err)
			}

			if _, err := store.UpdateAppointmentInfo(ctx, "u1", AppointmentInfo{SpecialistType: "Cardiologue"}); err != nil {
				t.Fatal(err)
			}
			if _, err := store.UpdateAppointmentInfo(ctx, "u1", AppointmentInfo{Location: "Lyon"}); err != nil {
				t.Fatal(err)
			}
			start := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
			updated, err := store.UpdateAppointmentInfo(ctx, "u1", AppointmentInfo{
				DateRange: &TimeWindow{Start: start, End: start.Add(24 * time.Hour)},
			})
			if err != nil {
				t.Fatal(err)
			}
			// Merging one field at a time must not erase the others.
			if updated.Info.SpecialistType != "Cardiologue" || updated.Info.Location != "Lyon" {
				t.Fatalf("merge erased fields: %+v", updated.Info)
			}
			if len(updated.Info.MissingFields) != 0 {
				t.Fatalf("missing fields after full collect = %v", updated.Info.MissingFields)
			}

			ready, err = store.IsReadyForSuggestion(ctx, "u1")
			if err != nil || !ready {
				t.Fatalf("complete session ready = %v, err = %v", ready, err)
			}
		})
	}
}

func TestStoreConformanceConfirmFlow(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.StartNewSession(ctx, "u1"); err != nil {
				t.Fatal(err)
			}
			if _, err := store.ConfirmAppointment(ctx, "u1"); !errors.Is(err, ErrNoSuggestion) {
				t.Fatalf("confirm without suggestion = %v, want ErrNoSuggestion", err)
			}

			slot := time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC)
			if err := store.SetSuggestion(ctx, "u1", &SuggestedAppointment{
				DoctorID:   "doc-001",
				DoctorName: "Dr. Sophie Martin",
				Specialty:  "Cardiologue",
				Location:   "Lyon",
				DateTime:   slot,
			}); err != nil {
				t.Fatal(err)
			}
			if err := store.SetStatus(ctx, "u1", StatusSuggested); err != nil {
				t.Fatal(err)
			}

			appt, err := store.ConfirmAppointment(ctx, "u1")
			if err != nil {
				t.Fatalf("ConfirmAppointment: %v", err)
			}
			if appt.Status != AppointmentStatusScheduled {
				t.Fatalf("appointment status = %s", appt.Status)
			}
			if !appt.DateTime.Equal(slot) || appt.DoctorID != "doc-001" {
				t.Fatalf("appointment = %+v", appt)
			}

			// Confirmation ends the session.
			if has, _ := store.HasActiveSession(ctx, "u1"); has {
				t.Fatal("session still active after confirm")
			}

			history, err := store.History(ctx, "u1")
			if err != nil {
				t.Fatal(err)
			}
			if len(history) != 1 || history[0].Status != StatusConfirmed {
				t.Fatalf("history = %+v", history)
			}

			appts, err := store.Appointments(ctx, "u1")
			if err != nil {
				t.Fatal(err)
			}
			if len(appts) != 1 || appts[0].ID != appt.ID {
				t.Fatalf("appointments = %+v", appts)
			}
		})
	}
}

func TestStoreConformanceEndAndRestart(t *testing.T) {
	for name, store := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.StartNewSession(ctx, "u1"); err != nil {
				t.Fatal(err)
			}
			if err := store.EndSession(ctx, "u1", StatusDeclined); err != nil {
				t.Fatal(err)
			}
			// Ending an absent session is a no-op.
			if err := store.EndSession(ctx, "u1", StatusDeclined); err != nil {
				t.Fatalf("EndSession on empty store = %v", err)
			}

			second, err := store.StartNewSession(ctx, "u1")
			if err != nil {
				t.Fatal(err)
			}
			if err := store.EndSession(ctx, "u1", StatusExpired); err != nil {
				t.Fatal(err)
			}

			history, err := store.History(ctx, "u1")
			if err != nil {
				t.Fatal(err)
			}
			// Oldest first.
			if len(history) != 2 {
				t.Fatalf("history length = %d", len(history))
			}
			if history[0].Status != StatusDeclined || history[1].Status != StatusExpired {
				t.Fatalf("history statuses = %s, %s", history[0].Status, history[1].Status)
			}
			if history[1].ID != second.ID {
				t.Fatalf("history order wrong: %s vs %s", history[1].ID, second.ID)
			}
		})
	}
}
