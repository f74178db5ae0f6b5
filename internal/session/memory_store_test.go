package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.GetSession(ctx, "u1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	sess, err := store.StartNewSession(ctx, "u1")
	if err != nil {
		t.Fatalf("StartNewSession: %v", err)
	}
	if sess.Status != StatusNew {
		t.Fatalf("new session status = %s", sess.Status)
	}
	if len(sess.Info.MissingFields) != 3 {
		t.Fatalf("missing fields = %v", sess.Info.MissingFields)
	}

	ok, err := store.HasActiveSession(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("HasActiveSession = %v, %v", ok, err)
	}

	if err := store.AddMessage(ctx, "u1", Message{Role: "user", Content: "bonjour"}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	updated, err := store.UpdateAppointmentInfo(ctx, "u1", AppointmentInfo{
		SpecialistType: "Cardiologue",
		Location:       "Paris",
	})
	if err != nil {
		t.Fatalf("UpdateAppointmentInfo: %v", err)
	}
	if got := updated.Info.MissingFields; len(got) != 1 || got[0] != FieldDateRange {
		t.Fatalf("missing fields after merge = %v", got)
	}

	ready, err := store.IsReadyForSuggestion(ctx, "u1")
	if err != nil || ready {
		t.Fatalf("ready = %v, %v; want false", ready, err)
	}

	start := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	if _, err := store.UpdateAppointmentInfo(ctx, "u1", AppointmentInfo{
		DateRange: &TimeWindow{Start: start},
	}); err != nil {
		t.Fatalf("UpdateAppointmentInfo: %v", err)
	}
	ready, err = store.IsReadyForSuggestion(ctx, "u1")
	if err != nil || !ready {
		t.Fatalf("ready = %v, %v; want true", ready, err)
	}
}

func TestMemoryStoreMergeDoesNotErase(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.StartNewSession(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.UpdateAppointmentInfo(ctx, "u1", AppointmentInfo{Location: "Lyon"}); err != nil {
		t.Fatal(err)
	}
	sess, err := store.UpdateAppointmentInfo(ctx, "u1", AppointmentInfo{SpecialistType: "Dermatologue"})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Info.Location != "Lyon" {
		t.Fatalf("location erased by later merge: %+v", sess.Info)
	}
}

func TestMemoryStoreConfirmAppointment(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.StartNewSession(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.ConfirmAppointment(ctx, "u1"); !errors.Is(err, ErrNoSuggestion) {
		t.Fatalf("expected ErrNoSuggestion, got %v", err)
	}

	when := time.Date(2025, 3, 18, 10, 0, 0, 0, time.UTC)
	if err := store.SetSuggestion(ctx, "u1", &SuggestedAppointment{
		DoctorID:   "doc-001",
		DoctorName: "Dr Marie Simon",
		Specialty:  "Cardiologue",
		Location:   "Lyon",
		DateTime:   when,
	}); err != nil {
		t.Fatal(err)
	}

	appt, err := store.ConfirmAppointment(ctx, "u1")
	if err != nil {
		t.Fatalf("ConfirmAppointment: %v", err)
	}
	if appt.Status != AppointmentStatusScheduled {
		t.Fatalf("appointment status = %s", appt.Status)
	}
	if appt.DoctorID != "doc-001" || !appt.DateTime.Equal(when) {
		t.Fatalf("unexpected appointment %+v", appt)
	}

	// Confirmation archives the session.
	if ok, _ := store.HasActiveSession(ctx, "u1"); ok {
		t.Fatal("session still active after confirmation")
	}
	hist, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Status != StatusConfirmed {
		t.Fatalf("history = %+v", hist)
	}
	appts, err := store.Appointments(ctx, "u1")
	if err != nil || len(appts) != 1 {
		t.Fatalf("appointments = %+v, %v", appts, err)
	}
}

func TestMemoryStoreStartArchivesPrevious(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.StartNewSession(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.StartNewSession(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == second.ID {
		t.Fatal("expected a fresh session id")
	}

	hist, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].ID != first.ID || hist[0].Status != StatusEnded {
		t.Fatalf("history = %+v", hist)
	}
}

func TestMemoryStoreIdleExpiry(t *testing.T) {
	ctx := context.Background()
	clock, advance := testClock(time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStore(WithIdleTimeout(2*time.Minute), WithClock(clock))

	if _, err := store.StartNewSession(ctx, "u1"); err != nil {
		t.Fatal(err)
	}

	advance(90 * time.Second)
	if err := store.AddMessage(ctx, "u1", Message{Role: "user", Content: "un cardiologue"}); err != nil {
		t.Fatalf("session expired too early: %v", err)
	}

	// Activity resets the idle window.
	advance(90 * time.Second)
	if ok, _ := store.HasActiveSession(ctx, "u1"); !ok {
		t.Fatal("session expired despite recent activity")
	}

	advance(2 * time.Minute)
	if _, err := store.GetSession(ctx, "u1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected expiry, got %v", err)
	}
	hist, err := store.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 || hist[0].Status != StatusExpired {
		t.Fatalf("history = %+v", hist)
	}
}

func TestMemoryStoreEndSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	// Ending an absent session is a no-op.
	if err := store.EndSession(ctx, "ghost", StatusDeclined); err != nil {
		t.Fatalf("EndSession on absent session: %v", err)
	}

	if _, err := store.StartNewSession(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := store.EndSession(ctx, "u1", StatusDeclined); err != nil {
		t.Fatal(err)
	}
	hist, _ := store.History(ctx, "u1")
	if len(hist) != 1 || hist[0].Status != StatusDeclined {
		t.Fatalf("history = %+v", hist)
	}

	// Non-terminal statuses are coerced to ended.
	if _, err := store.StartNewSession(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := store.EndSession(ctx, "u1", StatusCollecting); err != nil {
		t.Fatal(err)
	}
	hist, _ = store.History(ctx, "u1")
	if len(hist) != 2 || hist[1].Status != StatusEnded {
		t.Fatalf("history = %+v", hist)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.StartNewSession(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMessage(ctx, "u1", Message{Role: "user", Content: "bonjour"}); err != nil {
		t.Fatal(err)
	}

	sess, err := store.GetSession(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	sess.Messages[0].Content = "mutated"
	sess.Info.Location = "mutated"

	again, err := store.GetSession(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Messages[0].Content != "bonjour" || again.Info.Location != "" {
		t.Fatalf("store state leaked through returned session: %+v", again)
	}
}
