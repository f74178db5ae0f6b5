package archive

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/heydoc/booking-platform/internal/session"
	"github.com/heydoc/booking-platform/pkg/logging"
)

type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &notFoundErr{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "NoSuchKey: the specified key does not exist" }

func sampleSession() *session.UserSession {
	return &session.UserSession{
		ID:     "sess-1",
		UserID: "u1",
		Status: session.StatusConfirmed,
		Messages: []session.Message{
			{Role: "user", Content: "bonjour"},
			{Role: "assistant", Content: "Quel spécialiste souhaitez-vous consulter ?"},
		},
	}
}

func TestStoreArchiveSession(t *testing.T) {
	s3c := newFakeS3()
	now := time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC)
	store := NewStore(s3c, "heydoc-archive", logging.Default(),
		WithStoreClock(func() time.Time { return now }))

	if err := store.ArchiveSession(context.Background(), sampleSession()); err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}

	data, ok := s3c.objects["sessions/v1/by-date/2025/02/15/sess-1.json"]
	if !ok {
		t.Fatalf("session object missing, keys = %v", keys(s3c.objects))
	}
	var stored session.UserSession
	if err := json.Unmarshal(data, &stored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stored.UserID != "u1" || len(stored.Messages) != 2 {
		t.Errorf("stored = %+v", stored)
	}

	manifest, ok := s3c.objects["sessions/v1/manifests/2025-02.jsonl"]
	if !ok {
		t.Fatal("manifest missing")
	}
	var entry ManifestEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(manifest))), &entry); err != nil {
		t.Fatalf("manifest line: %v", err)
	}
	if entry.SessionID != "sess-1" || entry.MessageCount != 2 {
		t.Errorf("entry = %+v", entry)
	}
}

func TestStoreManifestAppends(t *testing.T) {
	s3c := newFakeS3()
	now := time.Date(2025, 2, 15, 12, 0, 0, 0, time.UTC)
	store := NewStore(s3c, "heydoc-archive", logging.Default(),
		WithStoreClock(func() time.Time { return now }))

	first := sampleSession()
	second := sampleSession()
	second.ID = "sess-2"

	if err := store.ArchiveSession(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if err := store.ArchiveSession(context.Background(), second); err != nil {
		t.Fatal(err)
	}

	manifest := string(s3c.objects["sessions/v1/manifests/2025-02.jsonl"])
	lines := strings.Split(strings.TrimSpace(manifest), "\n")
	if len(lines) != 2 {
		t.Fatalf("manifest lines = %d: %q", len(lines), manifest)
	}
}

func TestStoreDisabledIsNoop(t *testing.T) {
	store := NewStore(nil, "", logging.Default())
	if store.Enabled() {
		t.Fatal("store without bucket must be disabled")
	}
	if err := store.ArchiveSession(context.Background(), sampleSession()); err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
